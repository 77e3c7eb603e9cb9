package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"desalination_plant/internal/control/sequencer"
	"desalination_plant/internal/logger"
	"desalination_plant/internal/models"
	"desalination_plant/internal/plant"
	"desalination_plant/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrTripLatched      = errors.New("trip latched: reset before starting")
	ErrEmptySetpoint    = errors.New("no setpoint given")
	ErrCleanNotAccepted = errors.New("cleaning only from PRODUCTION or STANDBY")
)

// CommandQueue accepts commands for the next scan.
type CommandQueue interface {
	Enqueue(cmd plant.Command) error
}

type PlantService struct {
	queue     CommandQueue
	mon       Monitoring
	eventRepo repository.EventRepo
	pub       Publisher
	log       *logger.Logger
	limits    plant.Limits
	now       func() time.Time
}

// NewPlantService builds the operator command service. pub and log may be nil.
func NewPlantService(queue CommandQueue, mon Monitoring, eventRepo repository.EventRepo,
	pub Publisher, log *logger.Logger, limits plant.Limits) *PlantService {
	if log == nil {
		log = logger.Nop()
	}
	return &PlantService{
		queue:     queue,
		mon:       mon,
		eventRepo: eventRepo,
		pub:       pub,
		log:       log.Named("plant"),
		limits:    limits,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start requests the production sequence. It is refused while a trip is
// latched since the sequencer would ignore it.
func (s *PlantService) Start(ctx context.Context) error {
	st, err := s.mon.GetState(ctx)
	if err != nil {
		return err
	}
	if st.TripLatched {
		return fmt.Errorf("%w (%s)", ErrTripLatched, st.TripReason)
	}
	return s.command(ctx, plant.CmdStart, "Operator start")
}

func (s *PlantService) Stop(ctx context.Context) error {
	return s.command(ctx, plant.CmdStop, "Operator stop")
}

// Clean requests a membrane cleaning cycle. The sequencer only enters
// CLEANING from PRODUCTION or STANDBY, so anything else is refused here.
func (s *PlantService) Clean(ctx context.Context) error {
	st, err := s.mon.GetState(ctx)
	if err != nil {
		return err
	}
	if st.Step != sequencer.Production.String() && st.Step != sequencer.Standby.String() {
		return fmt.Errorf("%w (step %s)", ErrCleanNotAccepted, st.Step)
	}
	return s.command(ctx, plant.CmdClean, "Operator cleaning request")
}

// Reset acknowledges trips and pump faults. A trip whose cause is still
// present stays latched.
func (s *PlantService) Reset(ctx context.Context) error {
	return s.command(ctx, plant.CmdReset, "Operator reset")
}

// SetSetpoints merges p into the current setpoints. Values outside the
// operator limits are rejected, not clamped.
func (s *PlantService) SetSetpoints(ctx context.Context, p models.SetpointPatch) error {
	if p.Empty() {
		return ErrEmptySetpoint
	}
	st, err := s.mon.GetState(ctx)
	if err != nil {
		return err
	}
	next := p.Apply(st.Setpoints)
	if err := s.limits.Check(next); err != nil {
		return err
	}
	if err := s.queue.Enqueue(plant.Command{Kind: plant.CmdSetpoints, Setpoints: next}); err != nil {
		return err
	}
	return s.record(ctx, models.PlantEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  s.now(),
		Type:        models.EventSetpointChange,
		Description: "Setpoints changed",
		Metadata: withOperator(ctx, map[string]any{
			"from": st.Setpoints,
			"to":   next,
		}),
	})
}

func (s *PlantService) command(ctx context.Context, kind plant.CommandKind, desc string) error {
	if err := s.queue.Enqueue(plant.Command{Kind: kind}); err != nil {
		return err
	}
	return s.record(ctx, models.PlantEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  s.now(),
		Type:        models.EventCommand,
		Description: desc,
		Metadata:    withOperator(ctx, map[string]any{"command": string(kind)}),
	})
}

// record stores e and hands it to the publishers. A publish failure is only
// logged; the command has already been queued.
func (s *PlantService) record(ctx context.Context, e models.PlantEvent) error {
	if err := s.eventRepo.Append(ctx, e); err != nil {
		return err
	}
	if s.pub != nil {
		if err := s.pub.PublishEvent(ctx, e); err != nil {
			s.log.Debugw("event_publish_failed", "type", e.Type, "err", err)
		}
	}
	return nil
}

func withOperator(ctx context.Context, meta map[string]any) map[string]any {
	if id, ok := OperatorFrom(ctx); ok {
		meta["operator_id"] = id
	}
	return meta
}
