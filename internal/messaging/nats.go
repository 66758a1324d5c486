package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/signalsfoundry/firesat/internal/logging"
)

// NATSConfig describes the broker connection.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	ConnectWait   time.Duration `yaml:"connect_wait"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// NATSBus publishes and subscribes through a NATS connection. The message id
// travels in the Nats-Msg-Id header so broker-side deduplication can use it.
type NATSBus struct {
	conn *nats.Conn
	log  logging.Logger
}

// ConnectNATS dials the broker described by cfg.
func ConnectNATS(cfg NATSConfig, log logging.Logger) (*NATSBus, error) {
	if log == nil {
		log = logging.Noop()
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn(context.Background(), "nats disconnected", logging.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info(context.Background(), "nats reconnected", logging.String("url", c.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error(context.Background(), "nats async error", logging.String("subject", subject), logging.Err(err))
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.ConnectWait > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectWait))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	log.Info(context.Background(), "connected to nats", logging.String("url", conn.ConnectedUrl()))
	return NewNATSBus(conn, log), nil
}

// NewNATSBus wraps an established connection.
func NewNATSBus(conn *nats.Conn, log logging.Logger) *NATSBus {
	if log == nil {
		log = logging.Noop()
	}
	return &NATSBus{conn: conn, log: log}
}

func (b *NATSBus) Publish(ctx context.Context, topic string, v any) error {
	if b.conn.IsClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := encode(topic, v)
	if err != nil {
		return err
	}

	out := nats.NewMsg(topic)
	out.Data = msg.Data
	out.Header.Set(nats.MsgIdHdr, msg.ID)
	if err := b.conn.PublishMsg(out); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(topic string, h Handler) (Subscription, error) {
	if b.conn.IsClosed() {
		return nil, ErrClosed
	}
	sub, err := b.conn.Subscribe(topic, func(m *nats.Msg) {
		id := ""
		if m.Header != nil {
			id = m.Header.Get(nats.MsgIdHdr)
		}
		h(context.Background(), Message{ID: id, Topic: m.Subject, Data: m.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	return sub, nil
}

// Close flushes pending publishes and closes the connection.
func (b *NATSBus) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
