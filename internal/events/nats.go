package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/smallbiznis/obrapay/internal/config"
	"go.uber.org/zap"
)

// NATSPublisher publishes envelopes to JetStream under "<prefix>.<type>".
type NATSPublisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string
	log    *zap.Logger
}

func NewNATSPublisher(ctx context.Context, cfg config.NATSConfig, log *zap.Logger) (*NATSPublisher, error) {
	log = log.Named("events.nats")
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	prefix := strings.Trim(strings.TrimSpace(cfg.SubjectPrefix), ".")
	if prefix == "" {
		prefix = "obrapay"
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      strings.ToUpper(strings.ReplaceAll(prefix, ".", "_")) + "_EVENTS",
		Subjects:  []string{prefix + ".>"},
		MaxAge:    7 * 24 * time.Hour,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensuring event stream: %w", err)
	}

	log.Info("nats connection established", zap.String("url", conn.ConnectedUrl()))
	return &NATSPublisher{conn: conn, js: js, prefix: prefix, log: log}, nil
}

func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

func (p *NATSPublisher) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	subject := p.Subject(env.Type)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.ID)); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	p.log.Debug("event published",
		zap.String("event_id", env.ID),
		zap.String("type", env.Type),
		zap.String("subject", subject),
	)
	return nil
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
