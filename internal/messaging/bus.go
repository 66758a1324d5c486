package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrClosed is returned when publishing to or subscribing on a closed bus.
var ErrClosed = errors.New("message bus closed")

// Message is one delivery on a topic.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s message %s: %w", m.Topic, m.ID, err)
	}
	return nil
}

// Handler consumes deliveries. Handlers may run on transport goroutines and
// must not touch simulation state directly.
type Handler func(ctx context.Context, msg Message)

// Subscription is an active topic subscription.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the publish/subscribe transport between the simulator and the other
// applications. Payloads are JSON documents; every published message gets a
// fresh id.
type Bus interface {
	Publish(ctx context.Context, topic string, v any) error
	Subscribe(topic string, h Handler) (Subscription, error)
	Close() error
}

// encode marshals v and assigns a message id.
func encode(topic string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s message: %w", topic, err)
	}
	return Message{ID: uuid.NewString(), Topic: topic, Data: data}, nil
}
