package service

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"desalination_plant/internal/control/pumps"
	"desalination_plant/internal/models"
	"desalination_plant/internal/plant"
	"desalination_plant/internal/repository"
)

type memStateRepo struct {
	state   models.PlantState
	loadErr error
	saveErr error
	saves   int
}

func (r *memStateRepo) Load(ctx context.Context) (models.PlantState, error) {
	return r.state, r.loadErr
}

func (r *memStateRepo) Save(ctx context.Context, s models.PlantState) error {
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.state = s
	return nil
}

type memEventRepo struct {
	mu        sync.Mutex
	events    []models.PlantEvent
	appendErr error
}

func (r *memEventRepo) Append(ctx context.Context, e models.PlantEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.events = append(r.events, e)
	return nil
}

func (r *memEventRepo) List(ctx context.Context, q repository.EventQuery) ([]models.PlantEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PlantEvent
	for _, e := range r.events {
		if len(q.Types) == 0 || slices.Contains(q.Types, e.Type) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEventRepo) ofType(typ string) []models.PlantEvent {
	out, _ := r.List(context.Background(), repository.EventQuery{Types: []string{typ}})
	return out
}

type memPumpRepo struct {
	recs map[string]pumps.Record
}

func recKey(r pumps.Record) string { return fmt.Sprintf("%s/%d", r.Group, r.ID) }

func (r *memPumpRepo) Upsert(ctx context.Context, recs []pumps.Record) error {
	if r.recs == nil {
		r.recs = map[string]pumps.Record{}
	}
	for _, rec := range recs {
		r.recs[recKey(rec)] = rec
	}
	return nil
}

func (r *memPumpRepo) List(ctx context.Context) ([]pumps.Record, error) {
	out := make([]pumps.Record, 0, len(r.recs))
	for _, rec := range r.recs {
		out = append(out, rec)
	}
	return out, nil
}

// fakeDevice is a healthy plant whose pumps follow the last outputs and
// whose membrane pressure is set by the test.
type fakeDevice struct {
	cfg      *plant.Config
	membrane float64
	readErr  error
	writes   []plant.Outputs
	last     plant.Outputs
}

func newFakeDevice(cfg *plant.Config) *fakeDevice {
	return &fakeDevice{cfg: cfg, last: plant.SafeOutputs(cfg.FeedPumps.Units, cfg.HPPumps.Units)}
}

func (d *fakeDevice) ReadInputs(ctx context.Context) (plant.Inputs, error) {
	if d.readErr != nil {
		return plant.Inputs{}, d.readErr
	}
	return plant.Inputs{
		MembranePressureBar:      d.membrane,
		FeedPressureBar:          3,
		SuctionPressureBar:       1.5,
		DifferentialPressureBar:  1,
		FeedTemperatureC:         22,
		TankLevelPct:             50,
		PermeateFlowM3h:          40,
		PermeateConductivityUScm: 250,
		PH:                       7.5,
		ChlorineMgL:              0.5,
		CommOK:                   true,
		FeedPumps:                pumpFeedback(d.last.FeedPumps, d.cfg.FeedPumps.NominalFlowM3h, 3, 30),
		HPPumps:                  pumpFeedback(d.last.HPPumps, d.cfg.HPPumps.NominalFlowM3h, d.membrane, 100),
	}, nil
}

func (d *fakeDevice) WriteOutputs(ctx context.Context, out plant.Outputs) error {
	d.writes = append(d.writes, out)
	d.last = out
	return nil
}

func pumpFeedback(cmds []plant.PumpCommand, nominal, discharge, current float64) []pumps.Feedback {
	fb := make([]pumps.Feedback, len(cmds))
	for i, c := range cmds {
		if c.Run {
			fb[i] = pumps.Feedback{
				Running:              true,
				FlowM3h:              nominal * c.SpeedPct / 100,
				DischargePressureBar: discharge,
				CurrentA:             current,
			}
		}
	}
	return fb
}

type fakePublisher struct {
	mu     sync.Mutex
	states []models.PlantState
	events []models.PlantEvent
	closed bool
}

func (p *fakePublisher) PublishState(ctx context.Context, s models.PlantState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s)
	return nil
}

func (p *fakePublisher) PublishEvent(ctx context.Context, e models.PlantEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

type fakeQueue struct {
	cmds []plant.Command
	err  error
}

func (q *fakeQueue) Enqueue(cmd plant.Command) error {
	if q.err != nil {
		return q.err
	}
	q.cmds = append(q.cmds, cmd)
	return nil
}

type fakeMonitoring struct {
	state models.PlantState
	err   error
}

func (m *fakeMonitoring) GetState(ctx context.Context) (models.PlantState, error) {
	return m.state, m.err
}
