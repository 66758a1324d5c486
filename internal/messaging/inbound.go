package messaging

import (
	"context"
	"errors"

	"github.com/signalsfoundry/firesat/internal/logging"
	"github.com/signalsfoundry/firesat/internal/observability"
	"github.com/signalsfoundry/firesat/model"
)

// Enqueuer accepts work for the simulation goroutine.
type Enqueuer interface {
	Enqueue(fn func(ctx context.Context))
}

// EventSink receives the inbound events that change constellation state.
type EventSink interface {
	OnFireStarted(ctx context.Context, evt model.FireStarted)
	OnGroundUpdate(ctx context.Context, evt model.GroundLocation)
}

// Inbound subscribes to fire and ground announcements and hands them to the
// simulation goroutine. Messages that fail to decode are dropped.
type Inbound struct {
	bus     Bus
	topics  Topics
	queue   Enqueuer
	sink    EventSink
	log     logging.Logger
	metrics MessageObserver

	subs []Subscription
}

// NewInbound wires bus deliveries to sink through queue.
func NewInbound(bus Bus, topics Topics, queue Enqueuer, sink EventSink, log logging.Logger, metrics MessageObserver) *Inbound {
	if log == nil {
		log = logging.Noop()
	}
	if metrics == nil {
		metrics = noopObserver{}
	}
	return &Inbound{bus: bus, topics: topics, queue: queue, sink: sink, log: log, metrics: metrics}
}

// Start subscribes to the inbound topics.
func (in *Inbound) Start() error {
	fireSub, err := in.bus.Subscribe(in.topics.FireLocation(), in.handleFire)
	if err != nil {
		return err
	}
	in.subs = append(in.subs, fireSub)

	groundSub, err := in.bus.Subscribe(in.topics.GroundLocation(), in.handleGround)
	if err != nil {
		_ = in.Stop()
		return err
	}
	in.subs = append(in.subs, groundSub)
	return nil
}

// Stop removes the subscriptions created by Start.
func (in *Inbound) Stop() error {
	var errs []error
	for _, s := range in.subs {
		if err := s.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	in.subs = nil
	return errors.Join(errs...)
}

func (in *Inbound) handleFire(ctx context.Context, msg Message) {
	var evt model.FireStarted
	if err := msg.Decode(&evt); err != nil {
		in.drop(ctx, msg, err)
		return
	}
	in.metrics.ObserveMessage(msg.Topic, observability.ResultReceived)
	in.queue.Enqueue(func(ctx context.Context) {
		in.sink.OnFireStarted(ctx, evt)
	})
}

func (in *Inbound) handleGround(ctx context.Context, msg Message) {
	var evt model.GroundLocation
	if err := msg.Decode(&evt); err != nil {
		in.drop(ctx, msg, err)
		return
	}
	in.metrics.ObserveMessage(msg.Topic, observability.ResultReceived)
	in.queue.Enqueue(func(ctx context.Context) {
		in.sink.OnGroundUpdate(ctx, evt)
	})
}

func (in *Inbound) drop(ctx context.Context, msg Message, err error) {
	in.metrics.ObserveMessage(msg.Topic, observability.ResultDropped)
	in.log.Warn(ctx, "dropping undecodable message",
		logging.String("topic", msg.Topic),
		logging.String("message_id", msg.ID),
		logging.Err(err),
	)
}
