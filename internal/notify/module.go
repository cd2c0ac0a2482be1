package notify

import (
	"context"

	"go.uber.org/fx"

	"scalp_engine/internal/modules/config"
	"scalp_engine/pkg/logger"
)

// NewNotifier — Telegram, если задан токен, иначе лог.
func NewNotifier(lc fx.Lifecycle, cfg *config.Config) Notifier {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		return NewStdout()
	}
	tg, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
	if err != nil {
		logger.Warn("[NOTIFY] telegram unavailable, falling back to log: %v", err)
		return NewStdout()
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			tg.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			tg.Stop()
			return nil
		},
	})
	return tg
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(NewNotifier),
	)
}
