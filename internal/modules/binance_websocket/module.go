package binance_websocket

import (
	"go.uber.org/fx"

	bclient "scalp_engine/internal/modules/binance_client/service"
	"scalp_engine/internal/modules/binance_websocket/service"
	"scalp_engine/internal/modules/config"
)

func newUserStream(cfg *config.Config, c *bclient.Client) *service.UserStream {
	return service.NewUserStream(cfg, c)
}

// Module отдаёт стримы; запускает их оркестратор, когда навешаны обработчики.
func Module() fx.Option {
	return fx.Module("binance_websocket",
		fx.Provide(
			service.NewMarketStream,
			newUserStream,
		),
	)
}
