package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"scalp_engine/internal/exchange"
	"scalp_engine/internal/helper"
	"scalp_engine/internal/models"
	ws "scalp_engine/internal/modules/binance_websocket/service"
	bootstrap "scalp_engine/internal/modules/bootstrap/service"
	"scalp_engine/internal/modules/config"
	health "scalp_engine/internal/modules/health/service"
	journal "scalp_engine/internal/modules/journal/service"
	strategy "scalp_engine/internal/modules/strategy/service"
	"scalp_engine/internal/notify"
	"scalp_engine/internal/runner/executor"
	"scalp_engine/internal/runner/fsm"
	"scalp_engine/internal/runner/risk"
	"scalp_engine/internal/runner/scheduler"
	"scalp_engine/pkg/logger"
)

type MarketStream interface {
	OnCandle(h ws.CandleHandler)
	OnStatus(h ws.StatusHandler)
	SetSymbols(symbols []string)
	Connected() bool
	Run(ctx context.Context)
}

type UserStream interface {
	OnOrderUpdate(h ws.OrderUpdateHandler)
	OnAccountUpdate(h ws.AccountUpdateHandler)
	OnStatus(h ws.StatusHandler)
	Run(ctx context.Context)
}

type Ranker interface {
	Rank(ctx context.Context) ([]models.RankedSymbol, error)
}

type Warmuper interface {
	Warmup(ctx context.Context, symbols []string, sink bootstrap.CandleSink) error
}

type SymbolRefresher interface {
	EnsureFresh(ctx context.Context) error
}

type LeverageSetter interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

type Config struct {
	Mode             models.Mode
	DryRun           bool
	QuoteAsset       string
	StartingBankroll float64
	Cooldown         time.Duration
	Leverage         int
	QueueSize        int

	LossStreakRetention time.Duration
	RankInterval        time.Duration
	ReconcileInterval   time.Duration
	PollInterval        time.Duration
	CleanupInterval     time.Duration
	PollSymbols         int

	FastInterval models.Interval
	SlowInterval models.Interval

	// user data stream нужен только живой торговле с ключами
	UserStream bool
}

func ConfigFrom(cfg *config.Config, hasCredentials bool) Config {
	return Config{
		Mode:                cfg.TradingMode(),
		DryRun:              cfg.Trading.DryRun,
		QuoteAsset:          strings.ToUpper(cfg.Trading.QuoteAsset),
		StartingBankroll:    cfg.Trading.StartingBankroll,
		Cooldown:            cfg.Trading.Cooldown,
		Leverage:            cfg.Trading.Leverage,
		QueueSize:           cfg.Trading.QueueSize,
		LossStreakRetention: cfg.Trading.LossStreakRetention,
		RankInterval:        cfg.Schedule.RankRefreshInterval,
		ReconcileInterval:   cfg.Schedule.ReconcileInterval,
		PollInterval:        cfg.Schedule.PollInterval,
		CleanupInterval:     cfg.Schedule.StreakCleanupInterval,
		PollSymbols:         cfg.Schedule.PollSymbols,
		FastInterval:        cfg.FastInterval(),
		SlowInterval:        cfg.SlowInterval(),
		UserStream:          !cfg.Trading.DryRun && hasCredentials,
	}
}

// Deps — всё, с чем работает оркестратор. Leverage и User могут быть nil.
type Deps struct {
	Market    exchange.MarketData
	Account   exchange.Account
	Exec      *executor.Executor
	Risk      *risk.Manager
	Strategy  strategy.Strategy
	Params    strategy.Params
	Ranker    Ranker
	Warmup    Warmuper
	Symbols   SymbolRefresher
	Leverage  LeverageSetter
	Stream    MarketStream
	User      UserStream
	Journal   journal.Sink
	Notifier  notify.Notifier
	Health    *health.State
	Scheduler *scheduler.Scheduler
}

type Option func(*Runner)

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner связывает потоки данных, стратегию, риск и исполнение.
// Всё, что касается одного символа, выполняется воркером его Instrument.
type Runner struct {
	cfg Config
	d   Deps
	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	reg    *Registry

	bankMu   sync.Mutex
	bankroll float64

	refreshMu   sync.Mutex
	lastRefresh time.Time
}

func New(cfg Config, d Deps, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		d:        d,
		now:      time.Now,
		bankroll: cfg.StartingBankroll,
	}
	for _, o := range opts {
		o(r)
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.reg = NewRegistry(r.ctx, r.newInstrument)
	return r
}

func (r *Runner) newInstrument(symbol string) *Instrument {
	return newInstrument(
		symbol,
		fsm.New(symbol, r.cfg.Cooldown, fsm.WithClock(r.now)),
		strategy.NewMarketContext(symbol, r.d.Params),
		r.cfg.QueueSize,
	)
}

func (r *Runner) Registry() *Registry { return r.reg }

// Start не блокируется: ранжирование и прогрев идут в фоне,
// готовность выставляется по их завершении.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.d.Symbols.EnsureFresh(ctx); err != nil {
		logger.Warn("[RUNNER] symbol cache not ready: %v", err)
	}
	r.initBankroll(ctx)

	r.d.Stream.OnCandle(r.dispatchCandle)
	r.d.Stream.OnStatus(r.d.Health.SetWSConnected)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.d.Stream.Run(r.ctx)
	}()

	if r.cfg.UserStream && r.d.User != nil {
		r.d.User.OnOrderUpdate(r.dispatchOrderUpdate)
		r.d.User.OnAccountUpdate(func(u models.AccountUpdate) {
			if bal, ok := u.Balances[r.cfg.QuoteAsset]; ok {
				logger.Info("[ACCOUNT] %s balance %s", r.cfg.QuoteAsset, helper.FormatDecimal(bal))
			}
		})
		r.d.User.OnStatus(r.d.Health.SetUserStreamConnected)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.d.User.Run(r.ctx)
		}()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.boot()
	}()

	logger.Info("[RUNNER] started mode=%s dry_run=%v bankroll=%s %s",
		r.cfg.Mode, r.cfg.DryRun, helper.FormatDecimal(r.Bankroll()), r.cfg.QuoteAsset)
	return nil
}

func (r *Runner) boot() {
	if err := r.refreshAdmitted(r.ctx); err != nil {
		logger.Warn("[RUNNER] initial ranking failed: %v", err)
	}
	if r.ctx.Err() != nil {
		return
	}

	s := r.d.Scheduler
	s.SchedulePeriodic("rank_refresh", r.cfg.RankInterval, r.refreshAdmitted)
	s.SchedulePeriodic("reconcile", r.cfg.ReconcileInterval, r.reconcileAll)
	s.SchedulePeriodic("poll_klines", r.cfg.PollInterval, r.pollKlines)
	s.SchedulePeriodic("streak_cleanup", r.cfg.CleanupInterval, r.cleanupStreaks)
	s.Start(r.ctx)

	r.d.Health.SetReady(true)
	r.d.Notifier.SendService(r.ctx, "🚀 Движок запущен\nРежим: %s%s\nИнструментов: %d\nБанкролл: %s %s",
		r.cfg.Mode, dryRunSuffix(r.cfg.DryRun), len(r.reg.Admitted()),
		helper.FormatDecimal(r.Bankroll()), r.cfg.QuoteAsset)
}

// Stop: фоновые задачи, потоки, воркеры. Позиции на бирже не трогаем.
func (r *Runner) Stop(context.Context) error {
	r.cancel()
	r.wg.Wait()
	r.d.Scheduler.Stop()
	r.reg.Close()
	r.d.Health.SetReady(false)
	logger.Info("[RUNNER] stopped, open positions: %d", r.d.Risk.ActiveCount())
	return nil
}

func (r *Runner) initBankroll(ctx context.Context) {
	if r.cfg.DryRun || r.d.Account == nil {
		r.setBankroll(r.cfg.StartingBankroll)
		return
	}
	bal, err := r.d.Account.Balance(ctx, r.cfg.QuoteAsset)
	if err != nil || bal <= 0 {
		logger.Warn("[RUNNER] balance %s unavailable (%v), using configured %s",
			r.cfg.QuoteAsset, err, helper.FormatDecimal(r.cfg.StartingBankroll))
		r.setBankroll(r.cfg.StartingBankroll)
		return
	}
	r.setBankroll(bal)
}

func (r *Runner) Bankroll() float64 {
	r.bankMu.Lock()
	defer r.bankMu.Unlock()
	return r.bankroll
}

func (r *Runner) setBankroll(v float64) {
	r.bankMu.Lock()
	defer r.bankMu.Unlock()
	r.bankroll = v
}

// applyPnL: bankroll *= 1 + pnl/100.
func (r *Runner) applyPnL(pnlPercent float64) float64 {
	r.bankMu.Lock()
	defer r.bankMu.Unlock()
	r.bankroll *= 1 + pnlPercent/100
	return r.bankroll
}

func (r *Runner) syncHealth() {
	r.d.Health.SetOpenPositions(r.d.Risk.ActiveCount())
}

// StatusReport — текст для /status в Telegram. Читает только FSM, рынок не трогает.
func (r *Runner) StatusReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Статус\nРежим: %s%s\nБанкролл: %s %s\nДопущено: %d\nПозиций: %d\n",
		r.cfg.Mode, dryRunSuffix(r.cfg.DryRun),
		helper.FormatDecimal(r.Bankroll()), r.cfg.QuoteAsset,
		len(r.reg.Admitted()), r.d.Risk.ActiveCount())

	var lines []string
	for _, in := range r.reg.All() {
		st := in.FSM.State()
		switch st {
		case fsm.StateIdle:
			continue
		case fsm.StatePosition, fsm.StateExiting:
			pos, _ := in.FSM.Position()
			lines = append(lines, fmt.Sprintf("• %s %s вход %s TP %s SL %s",
				in.Symbol, st, helper.FormatDecimal(pos.EntryPrice),
				helper.FormatDecimal(pos.TakeProfit), helper.FormatDecimal(pos.StopLoss)))
		case fsm.StateCooldown:
			lines = append(lines, fmt.Sprintf("• %s %s до %s",
				in.Symbol, st, in.FSM.CooldownUntil().UTC().Format("15:04:05")))
		default:
			lines = append(lines, fmt.Sprintf("• %s %s", in.Symbol, st))
		}
	}
	sort.Strings(lines)
	if len(lines) == 0 {
		b.WriteString("Активных инструментов нет")
	} else {
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}

func dryRunSuffix(dry bool) string {
	if dry {
		return " (dry-run)"
	}
	return ""
}
