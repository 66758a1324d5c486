package core

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/firesat/internal/logging"
	"github.com/signalsfoundry/firesat/model"
)

// StatusSink delivers satellite status reports, typically to the message bus.
type StatusSink interface {
	PublishStatus(ctx context.Context, status model.SatelliteStatus) error
}

// StatusSinks fans a report out to several sinks. Every sink is tried.
type StatusSinks []StatusSink

func (s StatusSinks) PublishStatus(ctx context.Context, status model.SatelliteStatus) error {
	var errs []error
	for _, sink := range s {
		if err := sink.PublishStatus(ctx, status); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StatusPublisher periodically reports the position, sensor footprint and
// ground-link availability of every satellite. It reads the committed state
// of the constellation and is driven from the engine's tock hook, so it runs
// on the simulation goroutine.
type StatusPublisher struct {
	constellation *Constellation
	sink          StatusSink
	interval      time.Duration
	log           logging.Logger

	last      time.Time
	published bool
}

// NewStatusPublisher reports at most once per interval of simulation time.
// A non-positive interval reports on every tock.
func NewStatusPublisher(c *Constellation, sink StatusSink, interval time.Duration, log logging.Logger) *StatusPublisher {
	if log == nil {
		log = logging.Noop()
	}
	return &StatusPublisher{
		constellation: c,
		sink:          sink,
		interval:      interval,
		log:           log,
	}
}

// Statuses builds one status per satellite from the committed state.
func (p *StatusPublisher) Statuses(now time.Time) []model.SatelliteStatus {
	c := p.constellation
	positions := c.Positions()
	minElevations := c.MinElevations()
	grounds := c.Grounds().List()

	out := make([]model.SatelliteStatus, 0, len(positions))
	for i, s := range c.Satellites() {
		pos := positions[i]
		inRange, _ := InRange(pos, grounds)
		out = append(out, model.SatelliteStatus{
			ID:        s.ID,
			NoradID:   s.NoradID,
			Name:      s.Name,
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
			Altitude:  pos.Altitude,
			Radius:    SensorRadius(pos.Altitude, minElevations[i]),
			CommRange: inRange,
			Time:      now,
		})
	}
	return out
}

// OnTock publishes statuses when at least one interval has passed since the
// previous report. Sink errors are logged and do not stop the remaining
// satellites from being reported.
func (p *StatusPublisher) OnTock(ctx context.Context, now time.Time) {
	if p.published && p.interval > 0 && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	p.published = true

	for _, status := range p.Statuses(now) {
		if err := p.sink.PublishStatus(ctx, status); err != nil {
			p.log.Warn(ctx, "failed to publish satellite status",
				logging.String("satellite", status.Name),
				logging.Err(err),
			)
		}
	}
}
