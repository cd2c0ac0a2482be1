package strategy

import (
	"go.uber.org/fx"

	"scalp_engine/internal/modules/strategy/service"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			service.NewStrategy,      // service.Strategy
			service.ParamsFromConfig, // service.Params для MarketContext
		),
	)
}
