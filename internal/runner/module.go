package runner

import (
	"go.uber.org/fx"

	bclient "scalp_engine/internal/modules/binance_client/service"
	ws "scalp_engine/internal/modules/binance_websocket/service"
	bootstrap "scalp_engine/internal/modules/bootstrap/service"
	"scalp_engine/internal/modules/config"
	health "scalp_engine/internal/modules/health/service"
	journal "scalp_engine/internal/modules/journal/service"
	strategy "scalp_engine/internal/modules/strategy/service"
	"scalp_engine/internal/notify"
	"scalp_engine/internal/runner/executor"
	"scalp_engine/internal/runner/risk"
	"scalp_engine/internal/runner/scheduler"
)

func newConfig(cfg *config.Config, c *bclient.Client) Config {
	return ConfigFrom(cfg, c.HasCredentials())
}

func newExecutor(cfg *config.Config, c *bclient.Client, cache *bclient.SymbolCache) *executor.Executor {
	return executor.New(c, cache, cfg.TradingMode(), cfg.Trading.DryRun)
}

func newRiskManager(cfg *config.Config) *risk.Manager {
	return risk.NewManager(cfg.Trading.MaxPositions, cfg.Trading.CapitalPerTrade)
}

type runnerParams struct {
	fx.In

	Config    Config
	Client    *bclient.Client
	Symbols   *bclient.SymbolCache
	Exec      *executor.Executor
	Risk      *risk.Manager
	Strategy  strategy.Strategy
	Params    strategy.Params
	Ranker    *bootstrap.Ranker
	Warmup    *bootstrap.Warmuper
	Stream    *ws.MarketStream
	User      *ws.UserStream
	Journal   journal.Sink
	Notifier  notify.Notifier
	Health    *health.State
	Scheduler *scheduler.Scheduler
}

func newRunner(p runnerParams) *Runner {
	return New(p.Config, Deps{
		Market:    p.Client,
		Account:   p.Client,
		Exec:      p.Exec,
		Risk:      p.Risk,
		Strategy:  p.Strategy,
		Params:    p.Params,
		Ranker:    p.Ranker,
		Warmup:    p.Warmup,
		Symbols:   p.Symbols,
		Leverage:  p.Client,
		Stream:    p.Stream,
		User:      p.User,
		Journal:   p.Journal,
		Notifier:  p.Notifier,
		Health:    p.Health,
		Scheduler: p.Scheduler,
	})
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			newConfig,
			newExecutor,
			newRiskManager,
			scheduler.New,
			newRunner,
		),
		fx.Invoke(func(lc fx.Lifecycle, r *Runner, n notify.Notifier) {
			if tg, ok := n.(*notify.Telegram); ok {
				tg.SetStatusProvider(r)
			}
			lc.Append(fx.Hook{
				OnStart: r.Start,
				OnStop:  r.Stop,
			})
		}),
	)
}
