package records

import (
	"context"
	"fmt"

	"github.com/multiplier-synth/multiplier-api/internal/database"
)

// Preset is a saved synthesizer preset.
type Preset struct {
	PresetID     int64  `json:"preset_id"`
	PresetNumber int64  `json:"preset_number"`
	Name         string `json:"name"`
	ParamsJSON   any    `json:"params_json"`
	UserID       int64  `json:"user_id"`
}

// PresetInput is the body of a preset write. Every field is required;
// user_id defaults to the caller.
type PresetInput struct {
	Name         Text `json:"name"`
	PresetNumber Int  `json:"preset_number"`
	ParamsJSON   any  `json:"params_json"`
	UserID       Int  `json:"user_id"`
}

func (in PresetInput) validate(callerID int64) (Preset, error) {
	if err := checkText("name", in.Name, 25); err != nil {
		return Preset{}, err
	}
	if err := checkSlot(in.PresetNumber); err != nil {
		return Preset{}, err
	}
	if in.ParamsJSON == nil {
		return Preset{}, missing("params_json")
	}
	userID, verr := resolveUser(in.UserID, callerID)
	if verr != nil {
		return Preset{}, verr
	}
	return Preset{
		PresetNumber: in.PresetNumber.Value,
		Name:         in.Name.Value,
		ParamsJSON:   in.ParamsJSON,
		UserID:       userID,
	}, nil
}

// PresetResult is returned by Upsert. Row is the slot's previous content,
// nil when the write inserted a new row.
type PresetResult struct {
	Row         *Preset  `json:"row"`
	Success     bool     `json:"success"`
	PresetID    int64    `json:"preset_id"`
	UpdatedData []Preset `json:"updated_data"`
}

// PresetStore provides preset operations.
type PresetStore struct {
	db   *database.DB
	opts Options
}

const presetColumns = `preset_id, preset_number, name, params_json, user_id`

// Upsert saves a preset into its (user_id, preset_number) slot, with the
// same in-place rule as frequency arrays.
func (s *PresetStore) Upsert(ctx context.Context, in PresetInput, callerID int64) (*PresetResult, error) {
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
		err = s.db.SQL.QueryRowContext(ctx,
			`INSERT INTO multiplier_preset (preset_number, name, params_json, user_id)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, preset_number) DO UPDATE SET
			   name = excluded.name, params_json = excluded.params_json
			 RETURNING preset_id`,
			row.PresetNumber, row.Name, params, row.UserID,
		).Scan(&id)
	} else {
		id = existing.PresetID
		_, err = s.db.SQL.ExecContext(ctx,
			`UPDATE multiplier_preset SET name = $1, params_json = $2 WHERE preset_id = $3`,
			row.Name, params, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: preset: %v", ErrWriteFailed, err)
	}

	list, err := s.ListByUser(ctx, row.UserID)
	if err != nil {
		return nil, err
	}
	return &PresetResult{Row: existing, Success: true, PresetID: id, UpdatedData: list}, nil
}

func (s *PresetStore) getBySlot(ctx context.Context, userID, presetNumber int64) (*Preset, error) {
	rows, err := s.query(ctx,
		`SELECT `+presetColumns+` FROM multiplier_preset
		 WHERE user_id = $1 AND preset_number = $2 ORDER BY preset_id LIMIT 1`,
		userID, presetNumber)
	if err != nil {
		return nil, fmt.Errorf("records: preset slot %d/%d: %w", userID, presetNumber, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListByUser returns the presets owned by userID.
func (s *PresetStore) ListByUser(ctx context.Context, userID int64) ([]Preset, error) {
	rows, err := s.query(ctx,
		`SELECT `+presetColumns+` FROM multiplier_preset WHERE user_id = $1 ORDER BY preset_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("records: list presets of %d: %w", userID, err)
	}
	return rows, nil
}

// Delete removes a preset by id and returns the caller's remaining
// presets. A missing id is not an error.
func (s *PresetStore) Delete(ctx context.Context, presetID, callerID int64) (*DeleteResult[Preset], error) {
	if callerID <= 0 {
		return nil, ErrNotLoggedIn
	}
	where, args := s.opts.deleteWhere("preset_id", presetID, callerID)
	if _, err := s.db.SQL.ExecContext(ctx, `DELETE FROM multiplier_preset WHERE `+where, args...); err != nil {
		return nil, fmt.Errorf("records: delete preset %d: %w", presetID, err)
	}

	list, err := s.ListByUser(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return &DeleteResult[Preset]{Success: true, UpdatedData: list}, nil
}

func (s *PresetStore) query(ctx context.Context, query string, args ...any) ([]Preset, error) {
	rows, err := s.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Preset{}
	for rows.Next() {
		var p Preset
		var params string
		if err := rows.Scan(&p.PresetID, &p.PresetNumber, &p.Name, &params, &p.UserID); err != nil {
			return nil, err
		}
		p.ParamsJSON = decodeParams(params)
		out = append(out, p)
	}
	return out, rows.Err()
}
