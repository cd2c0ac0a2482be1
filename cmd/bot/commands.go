package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"scalp_engine/internal/helper"
	bclientmod "scalp_engine/internal/modules/binance_client"
	bclient "scalp_engine/internal/modules/binance_client/service"
	"scalp_engine/internal/modules/binance_websocket"
	"scalp_engine/internal/modules/bootstrap"
	bootstrapsvc "scalp_engine/internal/modules/bootstrap/service"
	"scalp_engine/internal/modules/config"
	"scalp_engine/internal/modules/health"
	"scalp_engine/internal/modules/journal"
	"scalp_engine/internal/modules/postgres"
	"scalp_engine/internal/modules/strategy"
	"scalp_engine/internal/notify"
	"scalp_engine/internal/runner"
	"scalp_engine/pkg/logger"
	"scalp_engine/pkg/tracing"
)

const serviceName = "scalp_engine"

var (
	cfgFile string
	dryRun  bool
	day     string
	symbol  string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "bot",
	Short:         "Scalping execution engine for Binance spot and USDⓈ-M futures",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
				return err
			}
		}
		// флаг должен успеть до валидации: без ключей допустим только dry-run
		if dryRun {
			if err := os.Setenv("DRY_RUN", "true"); err != nil {
				return err
			}
		}

		loaded, err := config.NewConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		if err := logger.Init(cfg.Log.Level); err != nil {
			return err
		}
		logger.SetServiceName(serviceName)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		tracing.SetServiceName(serviceName)
		_, closeTracer, err := tracing.InitTracer(tracing.Config{
			Enabled: cfg.Tracing.Enabled,
			Host:    cfg.Tracing.Host,
			Port:    cfg.Tracing.Port,
		})
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer closeTracer()

		app := fx.New(
			fx.Provide(
				func() context.Context {
					return context.Background()
				},
			),
			config.Module(cfg),
			postgres.Module(),
			journal.Module(),
			notify.Module(),
			health.Module(),
			bclientmod.Module(),
			binance_websocket.Module(),
			strategy.Module(),
			bootstrap.Module(),
			runner.Module(),
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Print the current instrument ranking",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		client := bclient.NewClient(cfg)
		cache := bclient.NewSymbolCache(client, cfg.Binance.SymbolsTTL)
		if err := cache.Refresh(ctx); err != nil {
			return err
		}
		ranked, err := bootstrapsvc.NewRanker(bootstrapsvc.NewRankerConfig(cfg), client, cache).Rank(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s ranking, %d symbols\n", cfg.TradingMode(), len(ranked))
		for i, r := range ranked {
			fmt.Fprintf(out, "%2d. %-14s score=%.4f vol=%s chg=%.2f%% atr=%.3f%% spread=%.4f%%\n",
				i+1, r.Symbol, r.Score, helper.FormatDecimal(r.QuoteVolume),
				r.PriceChangePercent, r.ATRPercent*100, r.SpreadPercent*100)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file under configs/ or absolute path (default $CONFIG_FILE or values_local.yaml)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate orders without touching the venue")
	statsCmd.Flags().StringVar(&day, "date", "", "UTC day as YYYY-MM-DD (default today)")
	replayCmd.Flags().StringVar(&symbol, "symbol", "", "symbol to replay, e.g. BTCUSDT")
	replayCmd.Flags().StringVar(&day, "date", "", "UTC day as YYYY-MM-DD (default today)")
	_ = replayCmd.MarkFlagRequired("symbol")

	rootCmd.AddCommand(runCmd, rankCmd, statsCmd, replayCmd)
}
