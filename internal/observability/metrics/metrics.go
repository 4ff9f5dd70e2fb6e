package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
	Interval         time.Duration
}

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentEvents   metric.Int64Counter
	settlementSteps metric.Int64Counter
	liveRateUpdates metric.Int64Counter
	summaryRequests metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Duration("interval", interval),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "obrapay"
	}
	meter := provider.Meter(name)

	paymentEvents, err := meter.Int64Counter("obrapay_payment_events_total")
	if err != nil {
		return nil, err
	}
	settlementSteps, err := meter.Int64Counter("obrapay_settlement_steps_total")
	if err != nil {
		return nil, err
	}
	liveRateUpdates, err := meter.Int64Counter("obrapay_live_rate_updates_total")
	if err != nil {
		return nil, err
	}
	summaryRequests, err := meter.Int64Counter("obrapay_financial_summaries_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		paymentEvents:   paymentEvents,
		settlementSteps: settlementSteps,
		liveRateUpdates: liveRateUpdates,
		summaryRequests: summaryRequests,
	}, nil
}

// RecordPaymentEvent increments payment event counts.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSettlementStep counts one dispatcher step with its outcome.
func (m *Metrics) RecordSettlementStep(ctx context.Context, productType, step, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("product_type", strings.TrimSpace(productType)),
		attribute.String("step", strings.TrimSpace(step)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.settlementSteps.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordLiveRateUpdate(ctx context.Context, orgID, currencyCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("currency_code", strings.ToUpper(strings.TrimSpace(currencyCode))),
	)
	m.liveRateUpdates.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordSummary(ctx context.Context, mode, groupBy string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("mode", strings.TrimSpace(mode)),
		attribute.String("group_by", strings.TrimSpace(groupBy)),
	)
	m.summaryRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"org_id":        {},
	"provider":      {},
	"event_type":    {},
	"product_type":  {},
	"step":          {},
	"outcome":       {},
	"currency_code": {},
	"mode":          {},
	"group_by":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
