package observability

import (
	"github.com/smallbiznis/obrapay/internal/observability/logger"
	"github.com/smallbiznis/obrapay/internal/observability/metrics"
	"github.com/smallbiznis/obrapay/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(LoadConfig),
	fx.Provide(
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
	),
	fx.Provide(
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.WebhookWithConfig,
	),
	// The tracer provider is only consumed through the otel globals.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
