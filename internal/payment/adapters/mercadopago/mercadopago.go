package mercadopago

import (
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/obrapay/internal/payment/domain"
)

const (
	ConfigAccessToken        = "access_token"
	ConfigSandboxAccessToken = "sandbox_access_token"
	ConfigBaseURL            = "base_url"
	ConfigTimeout            = "timeout"

	defaultBaseURL = "https://api.mercadopago.com"
	defaultTimeout = 3 * time.Second
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return domain.ProviderMercadoPago
}

func (f *Factory) NewResolver(cfg domain.ResolverConfig) (domain.StatusResolver, error) {
	production, _ := readString(cfg.Config, ConfigAccessToken)
	sandbox, _ := readString(cfg.Config, ConfigSandboxAccessToken)
	production = strings.TrimSpace(production)
	sandbox = strings.TrimSpace(sandbox)
	if production == "" && sandbox == "" {
		return nil, domain.ErrInvalidConfig
	}

	baseURL, ok := readString(cfg.Config, ConfigBaseURL)
	if !ok || strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}

	timeout := defaultTimeout
	if value, ok := cfg.Config[ConfigTimeout].(time.Duration); ok && value > 0 {
		timeout = value
	}

	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		tokens: map[domain.Environment]string{
			domain.EnvironmentProduction: production,
			domain.EnvironmentSandbox:    sandbox,
		},
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	cast, ok := value.(string)
	return cast, ok
}
