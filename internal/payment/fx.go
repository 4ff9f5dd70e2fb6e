package payment

import (
	"github.com/smallbiznis/obrapay/internal/config"
	"github.com/smallbiznis/obrapay/internal/payment/adapters"
	"github.com/smallbiznis/obrapay/internal/payment/adapters/mercadopago"
	"github.com/smallbiznis/obrapay/internal/payment/domain"
	"github.com/smallbiznis/obrapay/internal/payment/eventlog"
	"github.com/smallbiznis/obrapay/internal/payment/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistry),
	fx.Provide(NewProviderSettings),
	fx.Provide(eventlog.New),
)

func NewRegistry(log *zap.Logger) *adapters.Registry {
	registry := adapters.NewRegistry(
		mercadopago.NewFactory(),
	)
	log.Named("payment").Info("payment providers registered", zap.Strings("providers", registry.Providers()))
	return registry
}

func NewProviderSettings(cfg config.Config) adapters.ProviderSettings {
	mp := cfg.MercadoPago
	return adapters.ProviderSettings{
		domain.ProviderMercadoPago: {
			mercadopago.ConfigAccessToken:        mp.AccessToken,
			mercadopago.ConfigSandboxAccessToken: mp.SandboxAccessToken,
			mercadopago.ConfigBaseURL:            mp.APIBaseURL,
			mercadopago.ConfigTimeout:            mp.LookupTimeout,
		},
	}
}
