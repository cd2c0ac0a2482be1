package runner

import (
	"context"

	"scalp_engine/internal/helper"
	"scalp_engine/internal/models"
	"scalp_engine/internal/runner/fsm"
	"scalp_engine/pkg/logger"
	"scalp_engine/pkg/retry"
)

// finalize — единственное место, где сделка попадает в журнал и FSM уходит в COOLDOWN.
func (r *Runner) finalize(ctx context.Context, in *Instrument, pos models.Position, exitPrice float64, reason string) {
	if st := in.FSM.State(); st != fsm.StatePosition && st != fsm.StateExiting {
		logger.Warn("[EXIT] %s finalize skipped in %s", in.Symbol, st)
		return
	}

	var pnl float64
	if pos.EntryPrice > 0 {
		pnl = (exitPrice - pos.EntryPrice) / pos.EntryPrice * 100
	}
	rec := models.TradeRecord{
		OpenTime:          pos.EntryTime,
		CloseTime:         r.now(),
		Symbol:            in.Symbol,
		Side:              models.SideBuy,
		Qty:               pos.Qty,
		EntryPrice:        pos.EntryPrice,
		ExitPrice:         exitPrice,
		PnLPercent:        pnl,
		SpreadAtEntry:     in.entry.spread,
		ATRPercentAtEntry: in.entry.atrPct,
		Result:            models.ResultFromPnL(pnl),
		Reason:            reason,
	}

	err := retry.Do(ctx, retry.DefaultPolicy(), nil, func(ctx context.Context) error {
		return r.d.Journal.SaveTrade(ctx, rec)
	})
	if err != nil {
		logger.Error("[JOURNAL] %s trade not saved: %v", in.Symbol, err)
	}

	r.d.Risk.RegisterClosed(in.Symbol, pnl)
	bank := r.applyPnL(pnl)
	if err := in.FSM.ExitPosition(); err != nil {
		logger.Error("[EXIT] %s: %v", in.Symbol, err)
	}
	r.d.Exec.Drop(in.Symbol)
	in.entry = entrySnapshot{}

	r.d.Health.IncTradesClosed()
	r.syncHealth()

	logger.Info("[EXIT] %s %s entry=%s exit=%s pnl=%.2f%% bankroll=%s",
		in.Symbol, reason, helper.FormatDecimal(pos.EntryPrice), helper.FormatDecimal(exitPrice),
		pnl, helper.FormatDecimal(bank))

	icon := "🔴"
	if pnl > 0 {
		icon = "✅"
	}
	r.d.Notifier.SendService(ctx, "%s Выход %s%s\nПричина: %s\nВход: %s\nВыход: %s\nPnL: %.2f%%\nБанкролл: %s %s",
		icon, in.Symbol, dryRunSuffix(r.cfg.DryRun), reason,
		helper.FormatDecimal(pos.EntryPrice), helper.FormatDecimal(exitPrice), pnl,
		helper.FormatDecimal(bank), r.cfg.QuoteAsset)
}
