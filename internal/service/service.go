package service

import (
	"context"
	"time"

	"desalination_plant/internal/fieldio"
	"desalination_plant/internal/logger"
	"desalination_plant/internal/models"
	"desalination_plant/internal/plant"
	"desalination_plant/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Plant exposes operator commands. Commands are queued for the scan and
// logged; they do not wait for the sequencer to act on them.
type Plant interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Clean(ctx context.Context) error
	Reset(ctx context.Context) error
	SetSetpoints(ctx context.Context, p models.SetpointPatch) error
}

// Monitoring exposes the latest plant snapshot.
type Monitoring interface {
	GetState(ctx context.Context) (models.PlantState, error)
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.PlantEvent, error)
}

// Runner owns the plant state and runs the scan loop.
// Stop via context cancellation in main() for graceful shutdown.
type Runner interface {
	Run(ctx context.Context, period time.Duration)
}

// Publisher receives every snapshot and event the runner produces.
type Publisher interface {
	PublishState(ctx context.Context, s models.PlantState) error
	PublishEvent(ctx context.Context, e models.PlantEvent) error
	Close() error
}

// Deps are the non-repository collaborators of the services.
type Deps struct {
	Plant      *plant.Config
	Device     fieldio.Device
	Publisher  Publisher // optional
	Logger     *logger.Logger
	Scan       ScanOptions
	SigningKey string
}

type Service struct {
	Plant
	Monitoring
	EventLog
	Runner
	Authorization
}

func NewService(repos *repository.Repository, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	runner := NewRunnerService(deps.Plant, deps.Device, repos, deps.Publisher, deps.Logger, deps.Scan)
	mon := NewMonitoringService(runner, repos.StateRepo, deps.Plant)
	return &Service{
		Plant:         NewPlantService(runner, mon, repos.EventRepo, deps.Publisher, deps.Logger, deps.Plant.Limits),
		Monitoring:    mon,
		EventLog:      NewEventLogService(repos.EventRepo),
		Runner:        runner,
		Authorization: NewAuthService(repos.Auth, deps.SigningKey),
	}
}
