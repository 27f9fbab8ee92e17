package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/apperr"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/ot"
)

// MaxTextLog is how many operations per block a room keeps for rebasing
const MaxTextLog = 1000

// ErrNotInRoom is returned for room-scoped requests from a connection that is
// not in that page's room.
var ErrNotInRoom = errors.New("connection is not in this page's room")

// TextSource returns the stored plain text of a block. It seeds a block's
// text the first time the block is edited in a room.
type TextSource func(ctx context.Context, pageID, blockID string) (string, error)

// blockText is the sequenced text state of one block. ops[i] produced
// revision start+i+1.
type blockText struct {
	text  string
	ops   []ot.Operation
	start int
}

func (b *blockText) revision() int {
	return b.start + len(b.ops)
}

// apply rebases op, made against revision base, over everything sequenced
// since and applies it.
func (b *blockText) apply(base int, op ot.Operation) (ot.Operation, error) {
	switch {
	case base > b.revision():
		return op, apperr.NewValidationError(fmt.Errorf("base revision %d is ahead of revision %d", base, b.revision()))
	case base < b.start:
		return op, fmt.Errorf("%w: base revision %d is older than the oldest kept revision %d", apperr.ErrConflict, base, b.start)
	}

	rebased := ot.TransformAgainst(op, b.ops[base-b.start:])
	if err := ot.ValidateAgainst(rebased, b.text); err != nil {
		return op, apperr.NewValidationError(err)
	}
	text, err := ot.Apply(b.text, rebased)
	if err != nil {
		return op, apperr.NewValidationError(err)
	}

	b.text = text
	b.ops = append(b.ops, rebased)
	if over := len(b.ops) - MaxTextLog; over > 0 {
		b.ops = append([]ot.Operation(nil), b.ops[over:]...)
		b.start += over
	}
	return rebased, nil
}

// TextOperationResult is the sequenced form of an accepted operation
type TextOperationResult struct {
	Operation ot.Operation
	Revision  int
	Text      string
	Delivered int
}

// ApplyTextOperation sequences a text edit on one block of the page. The
// operation is rebased over every operation accepted since req.BaseRevision,
// checked against the current text and applied. Other occupants receive
// text-operation-applied; the sender receives text-operation-ack.
func (rr *RoomRegistry) ApplyTextOperation(ctx context.Context, c *Client, req TextOperationPayload, source TextSource) (TextOperationResult, error) {
	if err := req.Validate(); err != nil {
		return TextOperationResult{}, err
	}

	room, m, ok := rr.memberOf(c, req.PageID)
	if !ok {
		return TextOperationResult{}, ErrNotInRoom
	}
	room.mutex.RLock()
	userID := m.presence.UserID
	room.mutex.RUnlock()

	op := req.Operation
	op.UserID = userID
	if op.Timestamp == 0 {
		op.Timestamp = rr.now().UnixMilli()
	}

	bt, err := room.textState(ctx, req.BlockID, source)
	if err != nil {
		return TextOperationResult{}, err
	}

	room.textMu.Lock()
	rebased, err := bt.apply(req.BaseRevision, op)
	revision, text := bt.revision(), bt.text
	room.textMu.Unlock()
	if err != nil {
		return TextOperationResult{}, err
	}

	res := TextOperationResult{Operation: rebased, Revision: revision, Text: text}

	if data, err := Encode(EventTextOperationAck, TextOperationAckPayload{
		PageID:    req.PageID,
		BlockID:   req.BlockID,
		Revision:  revision,
		Operation: rebased,
	}); err == nil {
		c.Deliver(data)
	}

	data, err := Encode(EventTextOperationApplied, TextOperationAppliedPayload{
		PageID:       req.PageID,
		BlockID:      req.BlockID,
		ConnectionID: c.ID,
		UserID:       userID,
		Revision:     revision,
		Operation:    rebased,
	})
	if err != nil {
		return res, err
	}
	res.Delivered = rr.relayToOthers(room, c, data)
	return res, nil
}

// textState returns the state of blockID, seeding it from source on first
// use. The source is read without holding the room's locks.
func (r *Room) textState(ctx context.Context, blockID string, source TextSource) (*blockText, error) {
	r.textMu.Lock()
	bt, ok := r.texts[blockID]
	r.textMu.Unlock()
	if ok {
		return bt, nil
	}

	seed := ""
	if source != nil {
		var err error
		if seed, err = source(ctx, r.PageID, blockID); err != nil {
			return nil, fmt.Errorf("load text of block %s: %w", blockID, err)
		}
	}

	r.textMu.Lock()
	defer r.textMu.Unlock()
	if bt, ok := r.texts[blockID]; ok {
		return bt, nil
	}
	if r.texts == nil {
		r.texts = make(map[string]*blockText)
	}
	bt = &blockText{text: seed}
	r.texts[blockID] = bt
	return bt, nil
}
