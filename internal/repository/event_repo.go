package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"desalination_plant/internal/models"

	"github.com/google/uuid"
)

// timestampLayout sorts lexically, so range filters work on the text column.
const timestampLayout = "2006-01-02 15:04:05.000"

const (
	insertEventSQL = `
		INSERT INTO plant_events (id, occurred_at, type, message, meta)
		VALUES (?, ?, ?, ?, ?)
	`
	selectEventsSQL = `SELECT id, occurred_at, type, message, meta FROM plant_events`
)

type EventSQLite struct {
	db *sql.DB
}

var _ EventRepo = (*EventSQLite)(nil)

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

// Append inserts a new event. A missing EventID or OccurredAt is filled in.
func (r *EventSQLite) Append(ctx context.Context, e models.PlantEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	} else {
		e.OccurredAt = e.OccurredAt.UTC()
	}

	var metaPtr *string
	if e.Metadata != nil {
		if b, err := json.Marshal(e.Metadata); err == nil {
			s := string(b)
			metaPtr = &s
		}
	}

	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.EventID,
		e.OccurredAt.Format(timestampLayout),
		strings.ToUpper(strings.TrimSpace(e.Type)),
		e.Description,
		metaPtr,
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.EventID, err)
	}
	return nil
}

// List returns the events matching q, oldest first. With a Limit only the
// newest Limit events are returned.
func (r *EventSQLite) List(ctx context.Context, q EventQuery) ([]models.PlantEvent, error) {
	var (
		conds []string
		args  []any
	)

	if !q.From.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, q.From.UTC().Format(timestampLayout))
	}
	if !q.To.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, q.To.UTC().Format(timestampLayout))
	}
	if len(q.Types) > 0 {
		marks := make([]string, len(q.Types))
		for i, typ := range q.Types {
			marks[i] = "?"
			args = append(args, strings.ToUpper(strings.TrimSpace(typ)))
		}
		conds = append(conds, "type IN ("+strings.Join(marks, ", ")+")")
	}

	query := selectEventsSQL
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if q.Limit > 0 {
		query += " ORDER BY occurred_at DESC LIMIT ?"
		args = append(args, q.Limit)
	} else {
		query += " ORDER BY occurred_at ASC"
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := make([]models.PlantEvent, 0, 64)
	for rows.Next() {
		var ev models.PlantEvent
		var metaStr sql.NullString
		if err := rows.Scan(&ev.EventID, &ev.OccurredAt, &ev.Type, &ev.Description, &metaStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.OccurredAt = ev.OccurredAt.UTC()

		if metaStr.Valid && metaStr.String != "" {
			var v any
			if err := json.Unmarshal([]byte(metaStr.String), &v); err == nil {
				ev.Metadata = v
			} else {
				ev.Metadata = metaStr.String // keep raw if malformed
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if q.Limit > 0 {
		slices.Reverse(out)
	}
	return out, nil
}
