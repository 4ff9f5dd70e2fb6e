package events

import (
	"context"
	"time"

	"github.com/smallbiznis/obrapay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

// NewPublisher connects to NATS when NATS_URL is set and falls back to a no-op publisher.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Publisher, error) {
	if cfg.NATS.URL == "" {
		log.Info("NATS_URL not set, settlement events are not published")
		return NoopPublisher{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pub, err := NewNATSPublisher(ctx, cfg.NATS, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pub.Close()
			return nil
		},
	})
	return pub, nil
}
