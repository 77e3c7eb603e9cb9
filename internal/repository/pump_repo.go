package repository

import (
	"context"
	"fmt"
	"time"

	"desalination_plant/internal/control/pumps"

	"github.com/jmoiron/sqlx"
)

const (
	upsertPumpSQL = `
		INSERT INTO pump_units (pump_group, unit_id, runtime_hours, faulted, fault_code, maintenance_due, updated_at)
		VALUES (:pump_group, :unit_id, :runtime_hours, :faulted, :fault_code, :maintenance_due, :updated_at)
		ON CONFLICT(pump_group, unit_id) DO UPDATE SET
			runtime_hours=excluded.runtime_hours,
			faulted=excluded.faulted,
			fault_code=excluded.fault_code,
			maintenance_due=excluded.maintenance_due,
			updated_at=excluded.updated_at
	`

	selectPumpsSQL = `
		SELECT pump_group, unit_id, runtime_hours, faulted, fault_code, maintenance_due, updated_at
		FROM pump_units ORDER BY pump_group, unit_id
	`
)

type PumpSQLite struct {
	db *sqlx.DB
}

var _ PumpRepo = (*PumpSQLite)(nil)

func NewPumpSQLite(db *sqlx.DB) *PumpSQLite { return &PumpSQLite{db: db} }

// Upsert writes all records in one transaction.
func (r *PumpSQLite) Upsert(ctx context.Context, recs []pumps.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pump upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, rec := range recs {
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = now
		} else {
			rec.UpdatedAt = rec.UpdatedAt.UTC()
		}
		if _, err := tx.NamedExecContext(ctx, upsertPumpSQL, rec); err != nil {
			return fmt.Errorf("upsert pump %s/%d: %w", rec.Group, rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pump upsert: %w", err)
	}
	return nil
}

func (r *PumpSQLite) List(ctx context.Context) ([]pumps.Record, error) {
	var recs []pumps.Record
	if err := r.db.SelectContext(ctx, &recs, selectPumpsSQL); err != nil {
		return nil, fmt.Errorf("select pumps: %w", err)
	}
	for i := range recs {
		recs[i].UpdatedAt = recs[i].UpdatedAt.UTC()
	}
	return recs, nil
}
