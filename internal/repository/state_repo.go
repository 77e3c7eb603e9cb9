package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"desalination_plant/internal/models"
)

type StateSQLite struct {
	db *sql.DB
}

var _ StateRepo = (*StateSQLite)(nil)

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

const (
	plantStateRowID = 1

	insertOrUpdateStateSQL = `
		INSERT INTO plant_state (id, step, trip_latched, trip_codes, snapshot, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			step=excluded.step,
			trip_latched=excluded.trip_latched,
			trip_codes=excluded.trip_codes,
			snapshot=excluded.snapshot,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT id, trip_latched, trip_codes, snapshot, updated_at
		FROM plant_state WHERE id=?
	`
)

func marshalTripCodes(codes []string) (string, error) {
	if codes == nil {
		codes = []string{}
	}
	b, err := json.Marshal(codes)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalTripCodes(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var codes []string
	if err := json.Unmarshal([]byte(s), &codes); err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}
	return codes, nil
}

// Save writes the plant_state row (id always 1). The full snapshot goes into
// a JSON column. On Load the trip_latched and trip_codes columns win over
// whatever the snapshot says.
func (r *StateSQLite) Save(ctx context.Context, state models.PlantState) error {
	tsUTC := state.UpdatedAt
	if tsUTC.IsZero() {
		tsUTC = time.Now().UTC()
	} else {
		tsUTC = tsUTC.UTC()
	}
	state.ID = plantStateRowID
	state.UpdatedAt = tsUTC

	codes, err := marshalTripCodes(state.TripCodes)
	if err != nil {
		return fmt.Errorf("marshal trip codes: %w", err)
	}
	snap, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal plant state: %w", err)
	}

	_, err = r.db.ExecContext(ctx, insertOrUpdateStateSQL,
		plantStateRowID,
		state.Step,
		state.TripLatched,
		codes,
		string(snap),
		tsUTC,
	)
	if err != nil {
		return fmt.Errorf("save plant state: %w", err)
	}
	return nil
}

// Load returns the zero state and no error when nothing was saved yet.
func (r *StateSQLite) Load(ctx context.Context) (models.PlantState, error) {
	row := r.db.QueryRowContext(ctx, selectStateSQL, plantStateRowID)

	var (
		id        int
		latched   bool
		codesStr  string
		snapStr   string
		updatedAt time.Time
	)
	if err := row.Scan(&id, &latched, &codesStr, &snapStr, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PlantState{}, nil
		}
		return models.PlantState{}, fmt.Errorf("load plant state: %w", err)
	}

	var s models.PlantState
	if err := json.Unmarshal([]byte(snapStr), &s); err != nil {
		return models.PlantState{}, fmt.Errorf("decode plant state: %w", err)
	}
	codes, err := unmarshalTripCodes(codesStr)
	if err != nil {
		return models.PlantState{}, fmt.Errorf("decode trip codes: %w", err)
	}
	s.ID = id
	s.TripLatched = latched
	s.TripCodes = codes
	s.UpdatedAt = updatedAt.UTC()
	return s, nil
}
