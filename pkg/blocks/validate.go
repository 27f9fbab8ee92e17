package blocks

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/apperr"
)

// MaxBlockIDLength bounds block ids received from clients
const MaxBlockIDLength = 128

func blockTypes() []interface{} {
	out := make([]interface{}, len(AllTypes))
	for i, t := range AllTypes {
		out[i] = t
	}
	return out
}

// Validate checks a single block and, recursively, its children.
func (b Block) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.ID, validation.Required, validation.Length(1, MaxBlockIDLength)),
		validation.Field(&b.Type, validation.Required, validation.In(blockTypes()...)),
		validation.Field(&b.Order, validation.Min(0)),
		validation.Field(&b.Children),
	)
}

// ValidateTree validates every block of a page and checks that ids are unique
// across the whole tree. Failures match apperr.ErrValidation.
func ValidateTree(list []Block) error {
	for i, b := range list {
		if err := b.Validate(); err != nil {
			return apperr.NewValidationError(fmt.Errorf("block %d (%s): %w", i, b.ID, err))
		}
	}

	seen := make(map[string]struct{})
	var dup string
	Walk(list, func(b Block) {
		if _, ok := seen[b.ID]; ok && dup == "" {
			dup = b.ID
		}
		seen[b.ID] = struct{}{}
	})
	if dup != "" {
		return apperr.NewValidationError(fmt.Errorf("duplicate block id %q", dup))
	}
	return nil
}
