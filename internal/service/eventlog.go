package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"desalination_plant/internal/models"
	"desalination_plant/internal/repository"
)

const (
	defaultLogLimit = 500
	maxLogLimit     = 5000
)

var (
	ErrInvalidTimeRange = errors.New("invalid time range: from must be <= to")
	ErrUnknownEventType = errors.New("unknown event type")
)

// eventCategories group the plant event types for the HMI history views.
// Together they cover every type the plant emits.
var eventCategories = map[string][]string{
	"ALARMS":    {models.EventTrip, models.EventAlarm, models.EventAlarmCleared, models.EventSensorFault},
	"EQUIPMENT": {models.EventFault, models.EventMaintenance, models.EventRotation},
	"OPERATOR":  {models.EventCommand, models.EventSetpointChange},
	"SEQUENCE":  {models.EventStepChange},
}

func knownEventType(typ string) bool {
	for _, types := range eventCategories {
		if slices.Contains(types, typ) {
			return true
		}
	}
	return false
}

// parseEventTypes turns "trip, operator" into the sorted set of event types
// it names. Categories expand to their members; empty input means all.
func parseEventTypes(s string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(s, ",") {
		name := strings.ToUpper(strings.TrimSpace(part))
		switch {
		case name == "":
			continue
		case eventCategories[name] != nil:
			out = append(out, eventCategories[name]...)
		case knownEventType(name):
			out = append(out, name)
		default:
			return nil, fmt.Errorf("%w %q", ErrUnknownEventType, name)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultLogLimit
	case n > maxLogLimit:
		return maxLogLimit
	}
	return n
}

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

// query validates f and builds the repository query for it.
func (f LogFilter) query() (repository.EventQuery, error) {
	var q repository.EventQuery
	if !f.From.IsZero() {
		q.From = f.From.UTC()
	}
	if !f.To.IsZero() {
		q.To = f.To.UTC()
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return q, ErrInvalidTimeRange
	}
	types, err := parseEventTypes(f.Type)
	if err != nil {
		return q, err
	}
	q.Types = types
	q.Limit = clampLimit(f.Limit)
	return q, nil
}

// List returns the newest matching events, oldest first.
func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.PlantEvent, error) {
	q, err := f.query()
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, q)
}
