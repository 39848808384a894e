package records

import (
	"context"
	"fmt"

	"github.com/multiplier-synth/multiplier-api/internal/database"
)

// IndexArray is a saved index sequence, e.g. "0,2,4,7".
type IndexArray struct {
	ArrayID      int64  `json:"array_id"`
	PresetNumber int64  `json:"preset_number"`
	Name         string `json:"name"`
	IndexArray   string `json:"index_array"`
	UserID       int64  `json:"user_id"`
}

// IndexArrayInput is the body of an index array write. All fields must
// be present and non-empty; user_id defaults to the caller.
type IndexArrayInput struct {
	IndexArray   Text `json:"index_array"`
	Name         Text `json:"name"`
	PresetNumber Int  `json:"preset_number"`
	UserID       Int  `json:"user_id"`
}

const indexArrayRequired = "required fields: index_array, name, preset_number, user_id"

func (in IndexArrayInput) validate(callerID int64) (IndexArray, error) {
	withList := func(e *ValidationError) *ValidationError {
		e.Message += " (" + indexArrayRequired + ")"
		return e
	}
	if in.IndexArray.Value == "" {
		return IndexArray{}, withList(missing("index_array"))
	}
	if err := checkText("index_array", in.IndexArray, 25); err != nil {
		return IndexArray{}, err
	}
	if in.Name.Value == "" {
		return IndexArray{}, withList(missing("name"))
	}
	if err := checkText("name", in.Name, 50); err != nil {
		return IndexArray{}, err
	}
	if !in.PresetNumber.Set {
		return IndexArray{}, withList(missing("preset_number"))
	}
	if err := checkSlot(in.PresetNumber); err != nil {
		return IndexArray{}, err
	}
	userID, verr := resolveUser(in.UserID, callerID)
	if verr != nil {
		return IndexArray{}, withList(verr)
	}
	return IndexArray{
		PresetNumber: in.PresetNumber.Value,
		Name:         in.Name.Value,
		IndexArray:   in.IndexArray.Value,
		UserID:       userID,
	}, nil
}

// IndexArrayResult is returned by Create.
type IndexArrayResult struct {
	Success     bool         `json:"success"`
	ArrayID     int64        `json:"array_id"`
	UpdatedData []IndexArray `json:"updated_data"`
}

// IndexArrayStore provides index array operations.
type IndexArrayStore struct {
	db   *database.DB
	opts Options
}

const indexArrayColumns = `array_id, preset_number, name, index_array, user_id`

// Create always inserts a new index array; rows are never deduplicated.
func (s *IndexArrayStore) Create(ctx context.Context, in IndexArrayInput, callerID int64) (*IndexArrayResult, error) {
	row, err := in.validate(callerID)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.db.SQL.QueryRowContext(ctx,
		`INSERT INTO multiplier_index_array (preset_number, name, index_array, user_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING array_id`,
		row.PresetNumber, row.Name, row.IndexArray, row.UserID,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("%w: index array: %v", ErrWriteFailed, err)
	}

	list, err := s.ListByUser(ctx, row.UserID)
	if err != nil {
		return nil, err
	}
	return &IndexArrayResult{Success: true, ArrayID: id, UpdatedData: list}, nil
}

// ListByUser returns the index arrays owned by userID.
func (s *IndexArrayStore) ListByUser(ctx context.Context, userID int64) ([]IndexArray, error) {
	rows, err := s.db.SQL.QueryContext(ctx,
		`SELECT `+indexArrayColumns+` FROM multiplier_index_array WHERE user_id = $1 ORDER BY array_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("records: list index arrays of %d: %w", userID, err)
	}
	defer rows.Close()

	out := []IndexArray{}
	for rows.Next() {
		var a IndexArray
		if err := rows.Scan(&a.ArrayID, &a.PresetNumber, &a.Name, &a.IndexArray, &a.UserID); err != nil {
			return nil, fmt.Errorf("records: list index arrays scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes an index array by id and returns the caller's remaining
// index arrays. A missing id is not an error.
func (s *IndexArrayStore) Delete(ctx context.Context, arrayID, callerID int64) (*DeleteResult[IndexArray], error) {
	if callerID <= 0 {
		return nil, ErrNotLoggedIn
	}
	where, args := s.opts.deleteWhere("array_id", arrayID, callerID)
	if _, err := s.db.SQL.ExecContext(ctx, `DELETE FROM multiplier_index_array WHERE `+where, args...); err != nil {
		return nil, fmt.Errorf("records: delete index array %d: %w", arrayID, err)
	}

	list, err := s.ListByUser(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return &DeleteResult[IndexArray]{Success: true, UpdatedData: list}, nil
}
