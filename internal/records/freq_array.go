package records

import (
	"context"
	"fmt"

	"github.com/multiplier-synth/multiplier-api/internal/database"
)

// FrequencyArray is a saved frequency array.
type FrequencyArray struct {
	ArrayID      int64   `json:"array_id"`
	PresetNumber int64   `json:"preset_number"`
	Name         string  `json:"name"`
	BaseFreq     float64 `json:"base_freq"`
	Multiplier   float64 `json:"multiplier"`
	ParamsJSON   any     `json:"params_json"`
	UserID       int64   `json:"user_id"`
}

// FreqArrayInput is the body of a frequency array write. Every field is
// required; user_id defaults to the caller.
type FreqArrayInput struct {
	Name         Text  `json:"name"`
	PresetNumber Int   `json:"preset_number"`
	BaseFreq     Float `json:"base_freq"`
	Multiplier   Float `json:"multiplier"`
	ParamsJSON   any   `json:"params_json"`
	UserID       Int   `json:"user_id"`
}

// validate checks fields in declaration order and returns the row to
// write. The first problem found is reported.
func (in FreqArrayInput) validate(callerID int64) (FrequencyArray, error) {
	if err := checkText("name", in.Name, 50); err != nil {
		return FrequencyArray{}, err
	}
	if err := checkSlot(in.PresetNumber); err != nil {
		return FrequencyArray{}, err
	}
	if err := checkFloat("base_freq", in.BaseFreq); err != nil {
		return FrequencyArray{}, err
	}
	if err := checkFloat("multiplier", in.Multiplier); err != nil {
		return FrequencyArray{}, err
	}
	if in.ParamsJSON == nil {
		return FrequencyArray{}, missing("params_json")
	}
	userID, verr := resolveUser(in.UserID, callerID)
	if verr != nil {
		return FrequencyArray{}, verr
	}
	return FrequencyArray{
		PresetNumber: in.PresetNumber.Value,
		Name:         in.Name.Value,
		BaseFreq:     in.BaseFreq.Value,
		Multiplier:   in.Multiplier.Value,
		ParamsJSON:   in.ParamsJSON,
		UserID:       userID,
	}, nil
}

// FreqArrayResult is returned by Upsert. Row is the slot's previous
// content, nil when the write inserted a new row.
type FreqArrayResult struct {
	Row         *FrequencyArray  `json:"row"`
	Success     bool             `json:"success"`
	ArrayID     int64            `json:"array_id"`
	UpdatedData []FrequencyArray `json:"updated_data"`
}

// FreqArrayStore provides frequency array operations.
type FreqArrayStore struct {
	db   *database.DB
	opts Options
}

const freqArrayColumns = `array_id, preset_number, name, base_freq, multiplier, params_json, user_id`

// Upsert saves a frequency array into its (user_id, preset_number) slot.
// An occupied slot is updated in place, keeping its array_id; a free slot
// gets a new row.
func (s *FreqArrayStore) Upsert(ctx context.Context, in FreqArrayInput, callerID int64) (*FreqArrayResult, error) {
	row, err := in.validate(callerID)
	if err != nil {
		return nil, err
	}
	params, err := encodeParams(row.ParamsJSON)
	if err != nil {
		return nil, err
	}

	existing, err := s.getBySlot(ctx, row.UserID, row.PresetNumber)
	if err != nil {
		return nil, err
	}

	var id int64
	if existing == nil {
		// The conflict clause turns a concurrent insert into the same
		// slot into an update instead of a second row.
		err = s.db.SQL.QueryRowContext(ctx,
			`INSERT INTO multiplier_freq_array (preset_number, name, base_freq, multiplier, params_json, user_id)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (user_id, preset_number) DO UPDATE SET
			   name = excluded.name, base_freq = excluded.base_freq,
			   multiplier = excluded.multiplier, params_json = excluded.params_json
			 RETURNING array_id`,
			row.PresetNumber, row.Name, row.BaseFreq, row.Multiplier, params, row.UserID,
		).Scan(&id)
	} else {
		id = existing.ArrayID
		_, err = s.db.SQL.ExecContext(ctx,
			`UPDATE multiplier_freq_array
			 SET name = $1, base_freq = $2, multiplier = $3, params_json = $4
			 WHERE array_id = $5`,
			row.Name, row.BaseFreq, row.Multiplier, params, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: frequency array: %v", ErrWriteFailed, err)
	}

	list, err := s.ListByUser(ctx, row.UserID)
	if err != nil {
		return nil, err
	}
	return &FreqArrayResult{Row: existing, Success: true, ArrayID: id, UpdatedData: list}, nil
}

// getBySlot returns the row in a slot, or nil when the slot is free.
func (s *FreqArrayStore) getBySlot(ctx context.Context, userID, presetNumber int64) (*FrequencyArray, error) {
	rows, err := s.query(ctx,
		`SELECT `+freqArrayColumns+` FROM multiplier_freq_array
		 WHERE user_id = $1 AND preset_number = $2 ORDER BY array_id LIMIT 1`,
		userID, presetNumber)
	if err != nil {
		return nil, fmt.Errorf("records: frequency array slot %d/%d: %w", userID, presetNumber, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListAll returns every frequency array of every user.
func (s *FreqArrayStore) ListAll(ctx context.Context) ([]FrequencyArray, error) {
	rows, err := s.query(ctx, `SELECT `+freqArrayColumns+` FROM multiplier_freq_array ORDER BY array_id`)
	if err != nil {
		return nil, fmt.Errorf("records: list frequency arrays: %w", err)
	}
	return rows, nil
}

// ListByUser returns the frequency arrays owned by userID.
func (s *FreqArrayStore) ListByUser(ctx context.Context, userID int64) ([]FrequencyArray, error) {
	rows, err := s.query(ctx,
		`SELECT `+freqArrayColumns+` FROM multiplier_freq_array WHERE user_id = $1 ORDER BY array_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("records: list frequency arrays of %d: %w", userID, err)
	}
	return rows, nil
}

// Delete removes a frequency array by id and returns the caller's
// remaining arrays. A missing id is not an error.
func (s *FreqArrayStore) Delete(ctx context.Context, arrayID, callerID int64) (*DeleteResult[FrequencyArray], error) {
	if callerID <= 0 {
		return nil, ErrNotLoggedIn
	}
	where, args := s.opts.deleteWhere("array_id", arrayID, callerID)
	if _, err := s.db.SQL.ExecContext(ctx, `DELETE FROM multiplier_freq_array WHERE `+where, args...); err != nil {
		return nil, fmt.Errorf("records: delete frequency array %d: %w", arrayID, err)
	}

	list, err := s.ListByUser(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return &DeleteResult[FrequencyArray]{Success: true, UpdatedData: list}, nil
}

func (s *FreqArrayStore) query(ctx context.Context, query string, args ...any) ([]FrequencyArray, error) {
	rows, err := s.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []FrequencyArray{} // empty slice, not nil (clean JSON: [] not null)
	for rows.Next() {
		var f FrequencyArray
		var params string
		if err := rows.Scan(&f.ArrayID, &f.PresetNumber, &f.Name, &f.BaseFreq, &f.Multiplier, &params, &f.UserID); err != nil {
			return nil, err
		}
		f.ParamsJSON = decodeParams(params)
		out = append(out, f)
	}
	return out, rows.Err()
}
