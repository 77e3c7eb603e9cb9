package service

import (
	"context"
	"time"

	"desalination_plant/internal/control/sequencer"
	"desalination_plant/internal/models"
	"desalination_plant/internal/plant"
	"desalination_plant/internal/repository"
)

// SnapshotSource is implemented by the runner.
type SnapshotSource interface {
	Latest() (models.PlantState, bool)
}

type MonitoringService struct {
	source    SnapshotSource
	stateRepo repository.StateRepo
	cfg       *plant.Config
}

func NewMonitoringService(source SnapshotSource, stateRepo repository.StateRepo, cfg *plant.Config) *MonitoringService {
	return &MonitoringService{source: source, stateRepo: stateRepo, cfg: cfg}
}

// GetState returns the snapshot of the last scan. Before the first scan it
// falls back to the persisted snapshot, and on an empty database to a
// baseline IDLE snapshot.
func (s *MonitoringService) GetState(ctx context.Context) (models.PlantState, error) {
	if s.source != nil {
		if snap, ok := s.source.Latest(); ok {
			return snap, nil
		}
	}
	state, err := s.stateRepo.Load(ctx)
	if err != nil {
		return models.PlantState{}, err
	}
	if state.ID == 0 {
		return s.baselineState(), nil
	}
	state.UpdatedAt = toUTC(state.UpdatedAt)
	return state, nil
}

func (s *MonitoringService) baselineState() models.PlantState {
	st := models.PlantState{
		ID:        1, // single-row state
		Step:      sequencer.Idle.String(),
		Safe:      true,
		UpdatedAt: time.Now().UTC(),
	}
	if s.cfg != nil {
		st.Setpoints = s.cfg.Limits.Clamp(s.cfg.Setpoints)
	}
	return st
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
