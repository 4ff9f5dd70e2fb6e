package settlement

import (
	"github.com/smallbiznis/obrapay/internal/settlement/repository"
	"github.com/smallbiznis/obrapay/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
