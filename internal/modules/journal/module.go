package journal

import (
	"context"

	"go.uber.org/fx"

	"scalp_engine/internal/modules/journal/service"
	"scalp_engine/pkg/db"
	"scalp_engine/pkg/logger"
)

// NewSink — Postgres, если база сконфигурирована, иначе сделки пишутся в лог.
func NewSink(lc fx.Lifecycle, tm *db.PgTxManager) service.Sink {
	if tm == nil {
		logger.Info("[JOURNAL] no database configured, trades go to log")
		return service.NewLogSink()
	}
	store := service.NewPgStore(tm)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return store.Migrate(ctx)
		},
	})
	return store
}

func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(NewSink),
	)
}
