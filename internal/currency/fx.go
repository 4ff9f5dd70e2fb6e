package currency

import (
	"github.com/smallbiznis/obrapay/internal/currency/ratecache"
	"github.com/smallbiznis/obrapay/internal/currency/repository"
	"github.com/smallbiznis/obrapay/internal/currency/service"
	"go.uber.org/fx"
)

var Module = fx.Module("currency",
	fx.Provide(repository.Provide),
	fx.Provide(ratecache.New),
	fx.Provide(service.NewService),
)
