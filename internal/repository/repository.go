package repository

import (
	"context"
	"database/sql"
	"time"

	"desalination_plant/internal/control/pumps"
	"desalination_plant/internal/models"

	"github.com/jmoiron/sqlx"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

type StateRepo interface {
	Save(ctx context.Context, s models.PlantState) error
	Load(ctx context.Context) (models.PlantState, error)
}

// EventQuery selects plant events. Zero bounds, no Types and Limit 0 mean
// no restriction.
type EventQuery struct {
	From  time.Time // inclusive
	To    time.Time // inclusive
	Types []string
	// Limit keeps the newest N matches.
	Limit int
}

type EventRepo interface {
	Append(ctx context.Context, e models.PlantEvent) error
	List(ctx context.Context, q EventQuery) ([]models.PlantEvent, error)
}

// PumpRepo keeps per-unit runtime and fault state across restarts.
type PumpRepo interface {
	Upsert(ctx context.Context, recs []pumps.Record) error
	List(ctx context.Context) ([]pumps.Record, error)
}

type Repository struct {
	StateRepo StateRepo
	EventRepo EventRepo
	PumpRepo  PumpRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	x := sqlx.NewDb(db, "sqlite")
	return &Repository{
		StateRepo: NewStateSQLite(db),
		EventRepo: NewEventSQLite(db),
		PumpRepo:  NewPumpSQLite(x),
		Auth:      NewOperatorSQLite(x),
	}
}
