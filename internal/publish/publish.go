// Package publish forwards plant snapshots and events to external systems
// and takes HMI commands from MQTT.
package publish

import (
	"context"
	"errors"

	"desalination_plant/internal/logger"
	"desalination_plant/internal/models"
	"desalination_plant/internal/service"
)

// Fanout sends every snapshot and event to all publishers. Failures are
// logged and never returned to the scan.
type Fanout struct {
	pubs []service.Publisher
	log  *logger.Logger
}

var _ service.Publisher = (*Fanout)(nil)

func NewFanout(log *logger.Logger, pubs ...service.Publisher) *Fanout {
	if log == nil {
		log = logger.Nop()
	}
	out := &Fanout{log: log.Named("publish")}
	for _, p := range pubs {
		if p != nil {
			out.pubs = append(out.pubs, p)
		}
	}
	return out
}

// Len is the number of attached publishers.
func (f *Fanout) Len() int { return len(f.pubs) }

func (f *Fanout) PublishState(ctx context.Context, s models.PlantState) error {
	for _, p := range f.pubs {
		if err := p.PublishState(ctx, s); err != nil {
			f.log.Debugw("state_publish_failed", "err", err)
		}
	}
	return nil
}

func (f *Fanout) PublishEvent(ctx context.Context, e models.PlantEvent) error {
	for _, p := range f.pubs {
		if err := p.PublishEvent(ctx, e); err != nil {
			f.log.Warnw("event_publish_failed", "type", e.Type, "err", err)
		}
	}
	return nil
}

// Close closes every publisher and joins their errors.
func (f *Fanout) Close() error {
	var errs []error
	for _, p := range f.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
