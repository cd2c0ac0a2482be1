package binance_client

import (
	"context"

	"go.uber.org/fx"

	"scalp_engine/internal/modules/binance_client/service"
	"scalp_engine/internal/modules/config"
	"scalp_engine/pkg/logger"
)

func newSymbolCache(c *service.Client, cfg *config.Config) *service.SymbolCache {
	return service.NewSymbolCache(c, cfg.Binance.SymbolsTTL)
}

// Module — REST-клиент Binance и кэш фильтров символов.
func Module() fx.Option {
	return fx.Module("binance_client",
		fx.Provide(
			service.NewClient,
			newSymbolCache,
		),
		fx.Invoke(func(lc fx.Lifecycle, cache *service.SymbolCache) {
			runCtx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					// без фильтров ордера не провалидировать; сеть может быть недоступна,
					// тогда EnsureFresh повторит попытку перед ранжированием
					if err := cache.Refresh(ctx); err != nil {
						logger.Warn("[SYMBOLS] initial refresh failed: %v", err)
					}
					go cache.Run(runCtx)
					return nil
				},
				OnStop: func(ctx context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
