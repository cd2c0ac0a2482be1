package runner

import (
	"context"

	"scalp_engine/internal/helper"
	"scalp_engine/internal/models"
	"scalp_engine/pkg/logger"
)

// dispatchCandle — вход из WS и поллинга: свеча уходит в очередь инструмента.
func (r *Runner) dispatchCandle(ctx context.Context, c models.Candle) {
	in, ok := r.reg.Get(c.Symbol)
	if !ok {
		return
	}
	if err := in.Submit(ctx, func(ctx context.Context, in *Instrument) {
		r.onCandle(ctx, in, c, true)
	}); err != nil {
		logger.Debug("[CANDLE] %s dropped: %v", c.Symbol, err)
	}
}

// warmupSink — исторические свечи только наполняют контекст.
func (r *Runner) warmupSink(ctx context.Context, c models.Candle) {
	in, ok := r.reg.Get(c.Symbol)
	if !ok {
		return
	}
	_ = in.Submit(ctx, func(ctx context.Context, in *Instrument) {
		r.onCandle(ctx, in, c, false)
	})
}

func (r *Runner) onCandle(ctx context.Context, in *Instrument, c models.Candle, live bool) {
	if !c.Closed {
		return
	}
	// дубль из поллинга или повтор после реконнекта
	if last := in.Market.LastOpenTime(c.Interval); !last.IsZero() && !c.OpenTime.After(last) {
		return
	}
	if !in.Market.Update(c, c.Interval) {
		return
	}
	if !live {
		return
	}
	r.d.Health.TouchTick(r.now())

	if in.FSM.IsInPosition() {
		r.evaluateExit(ctx, in)
		return
	}
	// выбыл из ранжирования: новых входов нет, снимаем после кулдауна
	if !r.reg.IsAdmitted(in.Symbol) {
		r.retireIdle(in)
		return
	}
	r.evaluateEntry(ctx, in)
}

func (r *Runner) evaluateEntry(ctx context.Context, in *Instrument) {
	if !in.FSM.CanEnter() {
		return
	}
	if err := r.d.Risk.CanOpenPosition(in.Symbol); err != nil {
		logger.Debug("[ENTRY] %s blocked: %v", in.Symbol, err)
		return
	}
	ok, sig := r.d.Strategy.ShouldEnter(in.Market)
	if !ok {
		return
	}
	price := in.Market.CurrentPrice()
	if price <= 0 {
		return
	}
	qty := r.d.Risk.PositionSize(r.Bankroll(), price)
	tp, sl := r.d.Strategy.CalculateTpSl(in.Market, price)

	if err := r.d.Risk.TryOpen(in.Symbol); err != nil {
		logger.Debug("[ENTRY] %s blocked: %v", in.Symbol, err)
		return
	}

	ack, err := r.d.Exec.EnterLong(ctx, in.Symbol, price, qty, tp, sl)
	if err != nil {
		r.d.Risk.Release(in.Symbol)
		logger.Warn("[ENTRY] %s not placed: %v", in.Symbol, err)
		return
	}

	ref := ack.ClientOrderID
	if ref == "" {
		if order, ok := r.d.Exec.Active(in.Symbol); ok {
			ref = order.ClientOrderID
		}
	}
	if err := in.FSM.StartBuying(ref); err != nil {
		r.d.Exec.CancelOrder(ctx, in.Symbol)
		r.d.Exec.Drop(in.Symbol)
		r.d.Risk.Release(in.Symbol)
		return
	}
	in.entry = entrySnapshot{spread: sig.Spread, atrPct: sig.ATRPercent}
	logger.Info("[ENTRY] %s %s qty=%s @ %s status=%s",
		in.Symbol, sig.Reason, helper.FormatDecimal(qty), helper.FormatDecimal(price), ack.Status)

	r.applyEntryFill(ctx, in, ack.Status, ack.ExecutedQty, ack.FillPrice())
}

// applyEntryFill — общий разбор исполнения входа: ответ на ордер, событие
// user stream или сверка.
func (r *Runner) applyEntryFill(ctx context.Context, in *Instrument, status models.OrderStatus, execQty, price float64) {
	switch {
	case status == models.OrderStatusFilled, status.Terminal() && execQty > 0:
		r.confirmEntry(ctx, in, execQty, price)
	case status.Terminal():
		r.abortEntry(in, string(status))
	default:
		logger.Debug("[ENTRY] %s waiting, status=%s", in.Symbol, status)
	}
}

func (r *Runner) confirmEntry(ctx context.Context, in *Instrument, qty, price float64) {
	order, _ := r.d.Exec.Active(in.Symbol)
	if qty <= 0 {
		qty = order.Qty
	}
	if price <= 0 {
		price = order.Price
	}
	r.d.Exec.MarkFilled(in.Symbol, qty, price)

	pos := models.Position{
		Symbol:     in.Symbol,
		EntryPrice: price,
		Qty:        qty,
		EntryTime:  r.now(),
		TakeProfit: order.TakeProfit,
		StopLoss:   order.StopLoss,
	}
	if err := in.FSM.EnterPosition(pos); err != nil {
		return
	}
	r.d.Risk.RegisterOpened(in.Symbol)
	r.syncHealth()

	logger.Info("[ENTRY] %s filled qty=%s @ %s tp=%s sl=%s", in.Symbol,
		helper.FormatDecimal(qty), helper.FormatDecimal(price),
		helper.FormatDecimal(pos.TakeProfit), helper.FormatDecimal(pos.StopLoss))
	r.d.Notifier.SendService(ctx, "🟢 Вход %s%s\nЦена: %s\nКол-во: %s\nTP: %s\nSL: %s",
		in.Symbol, dryRunSuffix(r.cfg.DryRun), helper.FormatDecimal(price), helper.FormatDecimal(qty),
		helper.FormatDecimal(pos.TakeProfit), helper.FormatDecimal(pos.StopLoss))
}

// abortEntry — вход не состоялся: FSM в IDLE, резерв снят, ордер забыт.
func (r *Runner) abortEntry(in *Instrument, reason string) {
	in.FSM.Reset()
	r.d.Risk.Release(in.Symbol)
	r.d.Exec.Drop(in.Symbol)
	in.entry = entrySnapshot{}
	r.syncHealth()
	logger.Info("[ENTRY] %s aborted: %s", in.Symbol, reason)
	if !r.reg.IsAdmitted(in.Symbol) {
		r.retireIdle(in)
	}
}

func (r *Runner) evaluateExit(ctx context.Context, in *Instrument) {
	pos, ok := in.FSM.Position()
	if !ok {
		return
	}
	price := in.Market.CurrentPrice()
	if price <= 0 {
		return
	}

	var reason string
	// на фьючерсах TP/SL стоят на бирже
	if !r.cfg.Mode.IsFutures() {
		switch {
		case pos.TakeProfit > 0 && price >= pos.TakeProfit:
			reason = "take_profit"
		case pos.StopLoss > 0 && price <= pos.StopLoss:
			reason = "stop_loss"
		}
	}
	if reason == "" {
		exit, why := r.d.Strategy.ShouldExit(in.Market, pos.EntryPrice, price)
		if !exit {
			return
		}
		reason = why
	}

	ack, err := r.d.Exec.ExitPosition(ctx, in.Symbol, price, reason)
	if err != nil {
		logger.Error("[EXIT] %s %s failed, position kept: %v", in.Symbol, reason, err)
		return
	}
	if ack.Status.Terminal() && ack.ExecutedQty == 0 {
		logger.Warn("[EXIT] %s sell %s without fill, check venue balance", in.Symbol, ack.Status)
	}

	exitPrice := ack.FillPrice()
	if exitPrice <= 0 {
		exitPrice = price
	}
	r.finalize(ctx, in, pos, exitPrice, reason)
}
