// Package ot implements the text operation model used for fine-grained
// collaborative edits: insert/delete/retain operations over a rune-indexed
// text, a greedy diff, composition and pairwise transformation.
package ot

import (
	"errors"
	"fmt"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// OpType is the kind of an Operation
type OpType string

const (
	OpInsert OpType = "insert"
	OpDelete OpType = "delete"
	OpRetain OpType = "retain"
)

var (
	ErrOutOfBounds = errors.New("operation out of bounds")
	ErrUnknownType = errors.New("unknown operation type")
)

// Operation is an atomic edit of a text sequence. Position is always expressed
// in the coordinates of the text before the operation is applied. Offsets
// count runes, not bytes.
type Operation struct {
	Type      OpType `json:"type"`
	Position  int    `json:"position"`
	Content   string `json:"content,omitempty"`
	Length    int    `json:"length,omitempty"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// Insert builds an insert operation.
func Insert(position int, content, userID string, timestamp int64) Operation {
	return Operation{Type: OpInsert, Position: position, Content: content, UserID: userID, Timestamp: timestamp}
}

// Delete builds a delete operation.
func Delete(position, length int, userID string, timestamp int64) Operation {
	return Operation{Type: OpDelete, Position: position, Length: length, UserID: userID, Timestamp: timestamp}
}

// Retain builds a retain operation.
func Retain(position int, userID string, timestamp int64) Operation {
	return Operation{Type: OpRetain, Position: position, UserID: userID, Timestamp: timestamp}
}

// contentLen is the number of runes an insert adds
func (op Operation) contentLen() int {
	return utf8.RuneCountInString(op.Content)
}

// Validate checks the shape of an operation received from the wire.
func (op Operation) Validate() error {
	return validation.ValidateStruct(&op,
		validation.Field(&op.Type, validation.Required, validation.In(OpInsert, OpDelete, OpRetain)),
		validation.Field(&op.Position, validation.Min(0)),
		validation.Field(&op.Length, validation.Min(0)),
		validation.Field(&op.Content, validation.When(op.Type == OpInsert, validation.Required)),
	)
}

// ValidateAgainst validates the operation and checks that it fits inside text.
func ValidateAgainst(op Operation, text string) error {
	if err := op.Validate(); err != nil {
		return err
	}
	size := utf8.RuneCountInString(text)
	switch op.Type {
	case OpInsert, OpRetain:
		if op.Position > size {
			return fmt.Errorf("%w: position %d beyond length %d", ErrOutOfBounds, op.Position, size)
		}
	case OpDelete:
		if op.Position+op.Length > size {
			return fmt.Errorf("%w: range [%d,%d) beyond length %d", ErrOutOfBounds, op.Position, op.Position+op.Length, size)
		}
	}
	return nil
}

// Apply returns text with op applied. On error the original text is returned.
func Apply(text string, op Operation) (string, error) {
	if op.Position < 0 || op.Length < 0 {
		return text, fmt.Errorf("%w: negative position or length", ErrOutOfBounds)
	}

	runes := []rune(text)
	switch op.Type {
	case OpRetain:
		return text, nil
	case OpInsert:
		if op.Position > len(runes) {
			return text, fmt.Errorf("%w: insert at %d, length %d", ErrOutOfBounds, op.Position, len(runes))
		}
		out := make([]rune, 0, len(runes)+op.contentLen())
		out = append(out, runes[:op.Position]...)
		out = append(out, []rune(op.Content)...)
		out = append(out, runes[op.Position:]...)
		return string(out), nil
	case OpDelete:
		end := op.Position + op.Length
		if end > len(runes) {
			return text, fmt.Errorf("%w: delete [%d,%d), length %d", ErrOutOfBounds, op.Position, end, len(runes))
		}
		out := make([]rune, 0, len(runes)-op.Length)
		out = append(out, runes[:op.Position]...)
		out = append(out, runes[end:]...)
		return string(out), nil
	default:
		return text, fmt.Errorf("%w: %q", ErrUnknownType, op.Type)
	}
}

// ApplyAll applies ops in order. It stops at the first failing operation and
// returns the original text alongside the error.
func ApplyAll(text string, ops []Operation) (string, error) {
	current := text
	for i, op := range ops {
		next, err := Apply(current, op)
		if err != nil {
			return text, fmt.Errorf("operation %d: %w", i, err)
		}
		current = next
	}
	return current, nil
}
