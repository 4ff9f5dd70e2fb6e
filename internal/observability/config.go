package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/obrapay/internal/config"
	"github.com/smallbiznis/obrapay/internal/observability/logger"
	"github.com/smallbiznis/obrapay/internal/observability/metrics"
	"github.com/smallbiznis/obrapay/internal/observability/tracing"
)

// Config is the resolved telemetry setup shared by the logger, tracer and meter.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel    string
	LogFormat   string
	LogSampling bool

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
	MetricInterval       time.Duration
}

func LoadConfig(cfg config.Config) Config {
	t := cfg.Telemetry

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "obrapay"
	}
	environment := strings.TrimSpace(t.DeploymentEnv)
	if environment == "" {
		environment = strings.TrimSpace(cfg.Environment)
	}
	level := strings.TrimSpace(t.LogLevel)
	if level == "" {
		level = "info"
	}
	ratio := t.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          environment,
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             level,
		LogFormat:            strings.TrimSpace(t.LogFormat),
		LogSampling:          t.LogSampling,
		OtelEnabled:          t.OTLPEnabled,
		OtelExporterEndpoint: strings.TrimSpace(t.OTLPEndpoint),
		OtelExporterProtocol: strings.TrimSpace(t.OTLPProtocol),
		OtelSamplingRatio:    ratio,
		MetricInterval:       t.MetricInterval,
	}
}

// Debug turns on stack traces in request logs and verbose GORM logging.
func (c Config) Debug() bool {
	if strings.EqualFold(c.LogLevel, "debug") {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func (c Config) Logger() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               c.Debug(),
		Sampling:            c.LogSampling,
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
		Interval:         c.MetricInterval,
	}
}
