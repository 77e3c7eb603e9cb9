package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"desalination_plant/internal/fieldio"
	"desalination_plant/internal/logger"
	"desalination_plant/internal/models"
	"desalination_plant/internal/plant"
	"desalination_plant/internal/repository"

	"github.com/google/uuid"
)

var ErrCommandQueueFull = errors.New("command queue full, try again")

// RunnerService runs the plant scan. Only the goroutine in Run (or a test
// calling Scan) touches the plant state; everything else goes through the
// command queue and Latest.
type RunnerService struct {
	cfg       *plant.Config
	device    fieldio.Device
	stateRepo repository.StateRepo
	eventRepo repository.EventRepo
	pumpRepo  repository.PumpRepo
	pub       Publisher
	log       *logger.Logger
	opts      ScanOptions

	cmds chan plant.Command

	st       *plant.State
	lastIn   plant.Inputs
	failures int
	now      func() time.Time

	mu      sync.RWMutex
	latest  models.PlantState
	hasSnap bool
}

func NewRunnerService(cfg *plant.Config, device fieldio.Device, repos *repository.Repository,
	pub Publisher, log *logger.Logger, opts ScanOptions) *RunnerService {
	opts = opts.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &RunnerService{
		cfg:       cfg,
		device:    device,
		stateRepo: repos.StateRepo,
		eventRepo: repos.EventRepo,
		pumpRepo:  repos.PumpRepo,
		pub:       pub,
		log:       log.Named("runner"),
		opts:      opts,
		cmds:      make(chan plant.Command, opts.CommandQueue),
		st:        plant.NewState(cfg),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue hands a command to the next scan. It never blocks.
func (r *RunnerService) Enqueue(cmd plant.Command) error {
	select {
	case r.cmds <- cmd:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// Latest returns the snapshot of the last completed scan.
func (r *RunnerService) Latest() (models.PlantState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.hasSnap
}

// Run restores persisted state, then scans at the given period until ctx is
// canceled. The final state is persisted on the way out.
func (r *RunnerService) Run(ctx context.Context, period time.Duration) {
	if err := r.Restore(ctx); err != nil {
		r.log.Errorw("restore_failed", "err", err)
	}
	r.log.Infow("scan_started", "period", period.String())

	t := time.NewTicker(period)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			// ctx is gone; give the final save its own deadline
			saveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			r.persist(saveCtx)
			cancel()
			r.log.Infow("scan_stopped", "scans", r.st.Scans)
			return
		case now := <-t.C:
			r.Scan(ctx, now.Sub(last))
			last = now
		}
	}
}

// Restore loads the persisted snapshot and pump records into the plant state.
// A missing snapshot leaves the defaults in place.
func (r *RunnerService) Restore(ctx context.Context) error {
	snap, err := r.stateRepo.Load(ctx)
	if err != nil {
		return err
	}
	recs, err := r.pumpRepo.List(ctx)
	if err != nil {
		return err
	}
	r.st.Restore(r.cfg, snap, recs)
	if snap.TripLatched {
		r.log.Warnw("trip_restored", "reason", snap.TripReason, "codes", snap.TripCodes)
	}
	r.log.Infow("plant_restored", "step", r.st.Seq.Step().String(), "pump_records", len(recs),
		"produced_m3", r.st.ProducedM3)
	r.publishSnapshot(ctx)
	return nil
}

// Scan runs one read-tick-write cycle.
func (r *RunnerService) Scan(ctx context.Context, dt time.Duration) {
	in := r.readInputs(ctx)
	cmds := r.drain()

	scan := plant.Tick(r.st, r.cfg, in, cmds, dt)

	if err := r.device.WriteOutputs(ctx, scan.Outputs); err != nil {
		r.log.Warnw("scan_write_failed", "err", err)
	}

	now := r.now()
	for _, e := range scan.Events {
		r.record(ctx, now, e)
	}

	snap := r.publishSnapshot(ctx)
	if len(scan.Events) > 0 || r.st.Scans%uint64(r.opts.PersistEvery) == 0 {
		r.persistSnapshot(ctx, snap)
	}
}

func (r *RunnerService) readInputs(ctx context.Context) plant.Inputs {
	in, err := r.device.ReadInputs(ctx)
	if err == nil {
		if r.failures >= r.opts.CommLossScans {
			r.log.Infow("comm_restored", "failed_scans", r.failures)
		}
		r.failures = 0
		r.lastIn = in
		return in
	}

	r.failures++
	r.log.Warnw("scan_read_failed", "err", err, "consecutive", r.failures)
	// hold the last good values until the comm-loss threshold
	in = r.lastIn
	if r.failures >= r.opts.CommLossScans {
		in.CommOK = false
	}
	return in
}

func (r *RunnerService) drain() []plant.Command {
	var out []plant.Command
	for {
		select {
		case c := <-r.cmds:
			out = append(out, c)
		default:
			return out
		}
	}
}

func (r *RunnerService) record(ctx context.Context, now time.Time, e plant.Event) {
	ev := models.PlantEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  now,
		Type:        e.Type,
		Description: e.Description,
	}
	if len(e.Metadata) > 0 {
		ev.Metadata = e.Metadata
	}

	switch e.Type {
	case models.EventTrip, models.EventFault, models.EventSensorFault:
		r.log.Warnw("plant_event", "type", e.Type, "description", e.Description)
	default:
		r.log.Infow("plant_event", "type", e.Type, "description", e.Description)
	}

	if err := r.eventRepo.Append(ctx, ev); err != nil {
		r.log.Errorw("event_append_failed", "type", e.Type, "err", err)
	}
	if r.pub != nil {
		if err := r.pub.PublishEvent(ctx, ev); err != nil {
			r.log.Debugw("event_publish_failed", "err", err)
		}
	}
}

func (r *RunnerService) publishSnapshot(ctx context.Context) models.PlantState {
	snap := plant.Snapshot(r.st)
	snap.UpdatedAt = r.now()

	r.mu.Lock()
	r.latest = snap
	r.hasSnap = true
	r.mu.Unlock()

	if r.pub != nil {
		if err := r.pub.PublishState(ctx, snap); err != nil {
			r.log.Debugw("state_publish_failed", "err", err)
		}
	}
	return snap
}

func (r *RunnerService) persist(ctx context.Context) {
	snap, ok := r.Latest()
	if !ok {
		return
	}
	r.persistSnapshot(ctx, snap)
}

func (r *RunnerService) persistSnapshot(ctx context.Context, snap models.PlantState) {
	if err := r.stateRepo.Save(ctx, snap); err != nil {
		r.log.Errorw("state_save_failed", "err", err)
	}
	now := r.now()
	recs := append(r.st.Feed.Records(), r.st.HP.Records()...)
	for i := range recs {
		recs[i].UpdatedAt = now
	}
	if err := r.pumpRepo.Upsert(ctx, recs); err != nil {
		r.log.Errorw("pump_save_failed", "err", err)
	}
}
