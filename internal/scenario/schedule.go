package scenario

import (
	"context"
	"time"

	"github.com/signalsfoundry/firesat/internal/logging"
	"github.com/signalsfoundry/firesat/model"
)

// FirePublisher announces ignitions.
type FirePublisher interface {
	PublishFireStarted(ctx context.Context, evt model.FireStarted) error
}

// GroundPublisher announces ground stations.
type GroundPublisher interface {
	PublishGroundLocation(ctx context.Context, evt model.GroundLocation) error
}

// FireSchedule replays a fire scenario. On every tock it publishes each
// fire whose ignition falls in (previous tock, now]. The first tock
// publishes every fire already burning.
type FireSchedule struct {
	fires []model.FireStarted
	pub   FirePublisher
	log   logging.Logger

	// fires before next have been handled
	next int
}

// NewFireSchedule takes fires sorted by ignition, as LoadFires returns them.
func NewFireSchedule(fires []model.FireStarted, pub FirePublisher, log logging.Logger) *FireSchedule {
	if log == nil {
		log = logging.Noop()
	}
	return &FireSchedule{fires: fires, pub: pub, log: log}
}

// OnTock publishes the fires ignited since the previous call.
func (s *FireSchedule) OnTock(ctx context.Context, now time.Time) {
	for s.next < len(s.fires) {
		fire := s.fires[s.next]
		if fire.Start.After(now) {
			break
		}
		s.next++
		if err := s.pub.PublishFireStarted(ctx, fire); err != nil {
			s.log.Error(ctx, "failed to publish fire ignition",
				logging.Int("fire_id", fire.FireID),
				logging.Err(err),
			)
			continue
		}
		s.log.Info(ctx, "fire ignited",
			logging.Int("fire_id", fire.FireID),
			logging.Time("start", fire.Start),
		)
	}
}

// Remaining returns how many fires have not ignited yet.
func (s *FireSchedule) Remaining() int {
	return len(s.fires) - s.next
}

// PublishGrounds announces every ground station once, in file order. It
// stops at the first failure.
func PublishGrounds(ctx context.Context, grounds []model.GroundLocation, pub GroundPublisher, log logging.Logger) error {
	if log == nil {
		log = logging.Noop()
	}
	for _, g := range grounds {
		if err := pub.PublishGroundLocation(ctx, g); err != nil {
			return err
		}
	}
	log.Info(ctx, "published ground stations", logging.Int("count", len(grounds)))
	return nil
}
