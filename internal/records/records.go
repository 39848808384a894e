// Package records stores the three Multiplier record kinds: frequency
// arrays, index arrays and presets. Every row belongs to one user.
//
// Frequency arrays and presets are saved into user-local slots
// (preset_number): writing to an occupied slot updates the row in place,
// writing to a free slot inserts a new row. Index arrays are insert-only
// and accumulate.
//
// The params_json payload is JSON text in the database and a decoded
// value (maps, slices, float64, string, bool, nil) everywhere else.
package records

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/multiplier-synth/multiplier-api/internal/database"
)

// Sentinel errors for record operations.
var (
	// ErrWriteFailed wraps a failed insert or update.
	ErrWriteFailed = errors.New("records: write failed")

	// ErrNotLoggedIn is returned by deletes without a logged-in caller.
	ErrNotLoggedIn = errors.New("records: not logged in")
)

// Options tune the stores.
type Options struct {
	// OwnedDeletesOnly limits deletes to rows owned by the caller. When
	// false any logged-in caller may delete any row by id.
	OwnedDeletesOnly bool
}

// Records bundles the three stores over one database.
type Records struct {
	FreqArrays  *FreqArrayStore
	IndexArrays *IndexArrayStore
	Presets     *PresetStore
}

// New creates the three stores.
func New(db *database.DB, opts Options) *Records {
	return &Records{
		FreqArrays:  &FreqArrayStore{db: db, opts: opts},
		IndexArrays: &IndexArrayStore{db: db, opts: opts},
		Presets:     &PresetStore{db: db, opts: opts},
	}
}

// DeleteResult is returned by every delete: the caller's remaining rows.
type DeleteResult[T any] struct {
	Success     bool `json:"success"`
	UpdatedData []T  `json:"updated_data"`
}

// ValidationError reports a missing or malformed input field. Nothing is
// written when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func missing(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "Missing field: " + field}
}

func tooLong(field string, max int) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf("Field too long: %s (max %d characters)", field, max)}
}

func invalid(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "Invalid field: " + field}
}

// encodeParams serializes a decoded payload for storage.
func encodeParams(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("records: encode params: %w", err)
	}
	return string(b), nil
}

// decodeParams turns stored JSON text back into a value. Text that is not
// valid JSON decodes to nil rather than failing the whole listing.
func decodeParams(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

// deleteWhere returns the WHERE clause and args for a delete by id,
// narrowed to the caller's rows when OwnedDeletesOnly is set.
func (o Options) deleteWhere(idColumn string, id, callerID int64) (string, []any) {
	if o.OwnedDeletesOnly {
		return idColumn + ` = $1 AND user_id = $2`, []any{id, callerID}
	}
	return idColumn + ` = $1`, []any{id}
}
