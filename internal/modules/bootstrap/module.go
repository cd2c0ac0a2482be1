package bootstrap

import (
	"go.uber.org/fx"

	bclient "scalp_engine/internal/modules/binance_client/service"
	bootstrap "scalp_engine/internal/modules/bootstrap/service"
	"scalp_engine/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			bootstrap.NewRankerConfig,
			func(cfg bootstrap.RankerConfig, c *bclient.Client, cache *bclient.SymbolCache) *bootstrap.Ranker {
				return bootstrap.NewRanker(cfg, c, cache)
			},
			func(cfg *config.Config, c *bclient.Client) *bootstrap.Warmuper {
				return bootstrap.NewWarmuper(cfg, c)
			},
		),
	)
}
