package messaging

import (
	"context"

	"github.com/signalsfoundry/firesat/internal/logging"
	"github.com/signalsfoundry/firesat/internal/observability"
	"github.com/signalsfoundry/firesat/model"
)

// MessageObserver counts bus traffic, typically the Prometheus collector.
type MessageObserver interface {
	ObserveMessage(topic, result string)
}

type noopObserver struct{}

func (noopObserver) ObserveMessage(string, string) {}

// Publisher forwards constellation notifications and satellite status
// reports to the bus. It implements core.FireListener and core.StatusSink.
type Publisher struct {
	bus     Bus
	topics  Topics
	log     logging.Logger
	metrics MessageObserver
}

// NewPublisher returns a publisher writing to bus under topics.
func NewPublisher(bus Bus, topics Topics, log logging.Logger, metrics MessageObserver) *Publisher {
	if log == nil {
		log = logging.Noop()
	}
	if metrics == nil {
		metrics = noopObserver{}
	}
	return &Publisher{bus: bus, topics: topics, log: log, metrics: metrics}
}

func (p *Publisher) OnDetected(ctx context.Context, evt model.FireDetected) {
	p.publishLogged(ctx, p.topics.Detected(), evt, logging.Int("fire_id", evt.FireID))
}

func (p *Publisher) OnReported(ctx context.Context, evt model.FireReported) {
	p.publishLogged(ctx, p.topics.Reported(), evt, logging.Int("fire_id", evt.FireID))
}

// PublishStatus sends one satellite status report.
func (p *Publisher) PublishStatus(ctx context.Context, status model.SatelliteStatus) error {
	return p.publish(ctx, p.topics.SatelliteLocation(), status)
}

// PublishFireStarted announces an ignition on the fire topic.
func (p *Publisher) PublishFireStarted(ctx context.Context, evt model.FireStarted) error {
	return p.publish(ctx, p.topics.FireLocation(), evt)
}

// PublishGroundLocation announces a ground station.
func (p *Publisher) PublishGroundLocation(ctx context.Context, evt model.GroundLocation) error {
	return p.publish(ctx, p.topics.GroundLocation(), evt)
}

func (p *Publisher) publish(ctx context.Context, topic string, v any) error {
	if err := p.bus.Publish(ctx, topic, v); err != nil {
		p.metrics.ObserveMessage(topic, observability.ResultError)
		return err
	}
	p.metrics.ObserveMessage(topic, observability.ResultPublished)
	return nil
}

// publishLogged is used from listener callbacks, which cannot return errors.
func (p *Publisher) publishLogged(ctx context.Context, topic string, v any, fields ...logging.Field) {
	if err := p.publish(ctx, topic, v); err != nil {
		fields = append(fields, logging.String("topic", topic), logging.Err(err))
		p.log.Error(ctx, "failed to publish notification", fields...)
	}
}
