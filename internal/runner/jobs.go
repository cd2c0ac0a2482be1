package runner

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"scalp_engine/internal/models"
	bootstrap "scalp_engine/internal/modules/bootstrap/service"
	"scalp_engine/internal/runner/executor"
	"scalp_engine/internal/runner/fsm"
	"scalp_engine/pkg/logger"
)

const (
	pollKlinesLimit = 20
	pollDispatch    = 5
)

// refreshAdmitted пересобирает допущенный набор. Планировщик вызывает задачу
// сразу при старте, поэтому повтор раньше половины интервала пропускается.
func (r *Runner) refreshAdmitted(ctx context.Context) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	if !r.lastRefresh.IsZero() && r.now().Sub(r.lastRefresh) < r.cfg.RankInterval/2 {
		return nil
	}

	if err := r.d.Symbols.EnsureFresh(ctx); err != nil {
		logger.Warn("[RANK] symbol cache refresh failed: %v", err)
	}
	ranked, err := r.d.Ranker.Rank(ctx)
	if err != nil {
		if len(ranked) == 0 {
			return errors.Wrap(err, "rank")
		}
		logger.Warn("[RANK] ranking failed, using previous result: %v", err)
	}
	r.lastRefresh = r.now()
	if len(ranked) == 0 {
		logger.Warn("[RANK] no eligible symbols, keeping %d admitted", len(r.reg.Admitted()))
		return nil
	}

	symbols := bootstrap.Symbols(ranked)
	added, dropped := r.reg.Admit(symbols)

	for _, rs := range ranked {
		in, ok := r.reg.Get(rs.Symbol)
		if !ok {
			continue
		}
		spread := rs.SpreadPercent
		_ = in.Submit(ctx, func(_ context.Context, in *Instrument) {
			in.Market.SetSpread(spread)
		})
	}
	for _, in := range dropped {
		_ = in.Submit(ctx, r.retire)
	}

	if len(added) > 0 {
		names := make([]string, 0, len(added))
		for _, in := range added {
			names = append(names, in.Symbol)
		}
		r.setLeverage(ctx, names)
		if err := r.d.Warmup.Warmup(ctx, names, r.warmupSink); err != nil {
			logger.Warn("[WARMUP] incomplete: %v", err)
		}
	}

	r.d.Stream.SetSymbols(r.reg.Subscribed())
	r.d.Health.SetAdmitted(len(symbols))

	logger.Info("[RANK] admitted %d symbols (+%d / -%d): %s",
		len(symbols), len(added), len(dropped), strings.Join(symbols, ","))
	if len(added) > 0 || len(dropped) > 0 {
		r.d.Notifier.SendService(ctx, "🔄 Список инструментов обновлён (%d)\n%s",
			len(symbols), strings.Join(symbols, ", "))
	}
	return nil
}

func (r *Runner) setLeverage(ctx context.Context, symbols []string) {
	if r.d.Leverage == nil || r.cfg.DryRun || !r.cfg.Mode.IsFutures() {
		return
	}
	for _, s := range symbols {
		if err := r.d.Leverage.SetLeverage(ctx, s, r.cfg.Leverage); err != nil {
			logger.Warn("[RANK] %s leverage x%d not set: %v", s, r.cfg.Leverage, err)
		}
	}
}

// retire выполняется воркером снимаемого инструмента: состояние FSM
// проверяется в том же потоке, где оно меняется.
func (r *Runner) retire(_ context.Context, in *Instrument) {
	r.retireIdle(in)
}

// retireIdle снимает невыбранный инструмент, если цикл по нему закрыт.
// Вызывать только из воркера инструмента.
func (r *Runner) retireIdle(in *Instrument) {
	in.FSM.IsInCooldown()
	if in.FSM.State() != fsm.StateIdle {
		return
	}
	if _, ok := r.d.Exec.Active(in.Symbol); ok {
		return
	}
	if r.reg.Retire(in) {
		r.d.Stream.SetSymbols(r.reg.Subscribed())
		logger.Info("[REG] %s retired", in.Symbol)
	}
}

// reconcileAll ставит сверку в очередь каждого инструмента с незакрытым циклом.
func (r *Runner) reconcileAll(ctx context.Context) error {
	if r.cfg.DryRun {
		return nil
	}
	for _, in := range r.reg.All() {
		_, hasOrder := r.d.Exec.Active(in.Symbol)
		if in.FSM.State() == fsm.StateIdle && !hasOrder {
			continue
		}
		if err := in.Submit(ctx, r.reconcile); err != nil {
			logger.Debug("[RECONCILE] %s skipped: %v", in.Symbol, err)
		}
	}
	return nil
}

func (r *Runner) reconcile(ctx context.Context, in *Instrument) {
	res := r.d.Exec.Reconcile(ctx, in.Symbol)
	if !res.OK {
		return
	}
	order, hasOrder := r.d.Exec.Active(in.Symbol)

	switch in.FSM.State() {
	case fsm.StateBuying:
		r.reconcileBuying(ctx, in, res, order, hasOrder)

	case fsm.StatePosition:
		if !r.cfg.Mode.IsFutures() || res.PositionAmount() > 0 {
			return
		}
		pos, _ := in.FSM.Position()
		price := res.MarkPrice
		if price <= 0 {
			price = in.Market.CurrentPrice()
		}
		if price <= 0 {
			price = pos.EntryPrice
		}
		logger.Warn("[RECONCILE] %s position closed at venue", in.Symbol)
		if err := in.FSM.StartExiting(); err != nil {
			return
		}
		r.d.Exec.CancelProtective(ctx, in.Symbol, 0)
		r.finalize(ctx, in, pos, price, "venue_closed")

	case fsm.StateIdle, fsm.StateCooldown:
		if !hasOrder {
			return
		}
		if res.TrackedOpen(order) {
			r.d.Exec.CancelOrder(ctx, in.Symbol)
			return
		}
		logger.Info("[RECONCILE] %s stale order %s dropped", in.Symbol, order.ClientOrderID)
		r.d.Exec.Drop(in.Symbol)
	}
}

func (r *Runner) reconcileBuying(ctx context.Context, in *Instrument, res executor.ReconcileResult, order models.ActiveOrder, hasOrder bool) {
	if !hasOrder {
		r.abortEntry(in, "no_active_order")
		return
	}
	if res.TrackedOpen(order) {
		return
	}
	if r.cfg.Mode.IsFutures() {
		if amt := res.PositionAmount(); amt > 0 {
			var price float64
			if len(res.Positions) > 0 {
				price = res.Positions[0].EntryPrice
			}
			r.confirmEntry(ctx, in, amt, price)
			return
		}
	}
	if st := res.Tracked; st != nil {
		price := st.AvgPrice
		if price <= 0 {
			price = st.Price
		}
		if st.Status.Terminal() || st.ExecutedQty > 0 {
			r.applyEntryFill(ctx, in, st.Status, st.ExecutedQty, price)
			return
		}
		logger.Debug("[RECONCILE] %s order %s still %s", in.Symbol, st.ClientOrderID, st.Status)
		return
	}
	r.abortEntry(in, "order_not_found")
}

func (r *Runner) pollKlines(ctx context.Context) error {
	if r.d.Stream.Connected() {
		return nil
	}
	symbols := r.reg.Admitted()
	if r.cfg.PollSymbols > 0 && len(symbols) > r.cfg.PollSymbols {
		symbols = symbols[:r.cfg.PollSymbols]
	}
	for _, s := range symbols {
		candles, err := r.d.Market.Klines(ctx, s, r.cfg.FastInterval, pollKlinesLimit)
		if err != nil {
			logger.Warn("[POLL] %s klines: %v", s, err)
			continue
		}
		closed := make([]models.Candle, 0, len(candles))
		for _, c := range candles {
			if c.Closed {
				closed = append(closed, c)
			}
		}
		if len(closed) > pollDispatch {
			closed = closed[len(closed)-pollDispatch:]
		}
		for _, c := range closed {
			r.dispatchCandle(ctx, c)
		}
	}
	return nil
}

func (r *Runner) cleanupStreaks(context.Context) error {
	if n := r.d.Risk.CleanupOldStreaks(r.cfg.LossStreakRetention); n > 0 {
		logger.Info("[RISK] cleared %d stale loss streaks", n)
	}
	return nil
}
