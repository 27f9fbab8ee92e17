package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/apperr"
)

// MaxBodyBytes bounds request bodies
const MaxBodyBytes = 10 << 20

// ParseJSON decodes the request body into dest. Decode failures match
// apperr.ErrValidation.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return apperr.NewValidationError(fmt.Errorf("invalid JSON: %w", err))
	}
	return nil
}
