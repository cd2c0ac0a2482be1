package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scalp_engine/internal/helper"
	"scalp_engine/internal/models"
	journalsvc "scalp_engine/internal/modules/journal/service"
	"scalp_engine/pkg/db"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print daily trading statistics from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseDay(day)
		if err != nil {
			return err
		}
		reader, closeReader, err := openReader(cmd.Context())
		if err != nil {
			return err
		}
		defer closeReader()

		st, err := reader.DailyStats(cmd.Context(), date)
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), st)
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Print the journaled trades of one symbol for one day",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseDay(day)
		if err != nil {
			return err
		}
		reader, closeReader, err := openReader(cmd.Context())
		if err != nil {
			return err
		}
		defer closeReader()

		sym := strings.ToUpper(symbol)
		trades, err := reader.TradesBySymbol(cmd.Context(), sym, date)
		if err != nil {
			return err
		}
		printReplay(cmd.OutOrStdout(), sym, date, trades)
		return nil
	},
}

// openReader открывает журнал только на чтение отчётов.
func openReader(ctx context.Context) (journalsvc.Reader, func(), error) {
	if cfg.DB == "" {
		return nil, nil, fmt.Errorf("journal needs a database: set db_dsn or DATABASE_DSN")
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB})
	if err != nil {
		return nil, nil, err
	}
	tm := db.NewPgTxManager(pool)
	return journalsvc.NewPgStore(tm), tm.Close, nil
}

// parseDay — пустая строка означает сегодня (UTC).
func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	parsed, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --date: %w", err)
	}
	return parsed, nil
}

func printStats(out io.Writer, st models.DailyStats) {
	fmt.Fprintf(out, "Date:      %s\n", st.Date)
	fmt.Fprintf(out, "Trades:    %d (wins %d, losses %d)\n", st.Trades, st.Wins, st.Losses)
	fmt.Fprintf(out, "Winrate:   %.1f%%\n", st.Winrate)
	fmt.Fprintf(out, "Gross PnL: %.2f%%\n", st.GrossPnL)
	fmt.Fprintf(out, "Net PnL:   %.2f%%\n", st.NetPnL)
	fmt.Fprintf(out, "Max DD:    %.2f%%\n", st.MaxDrawdown)
	if st.Trades > 0 {
		fmt.Fprintf(out, "Best:      %s\n", strings.Join(st.BestSymbols, ", "))
		fmt.Fprintf(out, "Worst:     %s\n", strings.Join(st.WorstSymbols, ", "))
	}
}

func printReplay(out io.Writer, sym string, date time.Time, trades []models.TradeRecord) {
	fmt.Fprintf(out, "=== Replay: %s %s ===\n", sym, date.Format(time.DateOnly))
	fmt.Fprintf(out, "Trades: %d\n", len(trades))
	for i, tr := range trades {
		fmt.Fprintf(out, "\nTrade %d:\n", i+1)
		fmt.Fprintf(out, "  Entry:  %s @ %s\n", helper.FormatDecimal(tr.EntryPrice), tr.OpenTime.UTC().Format(time.RFC3339))
		fmt.Fprintf(out, "  Exit:   %s @ %s\n", helper.FormatDecimal(tr.ExitPrice), tr.CloseTime.UTC().Format(time.RFC3339))
		fmt.Fprintf(out, "  PnL:    %.2f%%\n", tr.PnLPercent)
		fmt.Fprintf(out, "  Result: %s (%s)\n", tr.Result, tr.Reason)
	}
}
