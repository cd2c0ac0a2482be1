package service

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"

	"scalp_engine/internal/exchange"
	"scalp_engine/internal/models"
	"scalp_engine/internal/modules/config"
	strategy "scalp_engine/internal/modules/strategy/service"
	"scalp_engine/pkg/logger"
)

const (
	rankConcurrency   = 8
	rankDepth         = 5
	rankKlines        = 50
	defaultSpread     = 0.001
	volumeNormalizer  = 1e9
	atrNormalizer     = 0.01
	changeNormalizer  = 5.0
	spreadNormalizer  = 0.001
	rankSnapshotStamp = "20060102T150405"

	// исторического винрейта пока нет, берём 50%
	baseWinrate   = 0.5
	winrateWeight = 0.1
)

type RankerConfig struct {
	QuoteAsset     string
	MinVolume      float64
	MinDailyChange float64 // доля; сравнивается с priceChangePercent/100
	TopN           int
	ATRPeriod      int
	ATRInterval    models.Interval
	SnapshotDir    string
	Mode           models.Mode
}

// Ranker отбирает инструменты для торговли по обороту, волатильности и спреду.
type Ranker struct {
	md      exchange.MarketData
	filters exchange.FilterSource
	cfg     RankerConfig
	now     func() time.Time

	mu   sync.RWMutex
	last []models.RankedSymbol
}

func NewRankerConfig(cfg *config.Config) RankerConfig {
	return RankerConfig{
		QuoteAsset:     strings.ToUpper(cfg.Trading.QuoteAsset),
		MinVolume:      cfg.MinVolume(),
		MinDailyChange: cfg.Eligibility.MinDailyChangePercent,
		TopN:           cfg.Trading.TopN,
		ATRPeriod:      cfg.Strategy.ATRPeriod,
		ATRInterval:    models.Interval5m,
		SnapshotDir:    cfg.Log.Path,
		Mode:           cfg.TradingMode(),
	}
}

func NewRanker(cfg RankerConfig, md exchange.MarketData, filters exchange.FilterSource) *Ranker {
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.ATRInterval == "" {
		cfg.ATRInterval = models.Interval5m
	}
	return &Ranker{md: md, filters: filters, cfg: cfg, now: time.Now}
}

// Last — последний успешный результат ранжирования.
func (r *Ranker) Last() []models.RankedSymbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.RankedSymbol, len(r.last))
	copy(out, r.last)
	return out
}

// Rank возвращает top-N кандидатов. При ошибке биржи — предыдущий результат и ошибку.
func (r *Ranker) Rank(ctx context.Context) ([]models.RankedSymbol, error) {
	tickers, err := r.md.Ticker24h(ctx)
	if err != nil {
		return r.Last(), errors.Wrap(err, "rank: tickers")
	}

	cands := r.eligible(tickers)
	logger.Info("[RANK] %d of %d tickers pass volume/change filters", len(cands), len(tickers))

	scored := make([]models.RankedSymbol, len(cands))
	ok := make([]bool, len(cands))

	var g errgroup.Group
	g.SetLimit(rankConcurrency)
	for i, t := range cands {
		g.Go(func() error {
			rs, err := r.score(ctx, t)
			if err != nil {
				logger.Debug("[RANK] skip %s: %v", t.Symbol, err)
				return nil
			}
			scored[i], ok[i] = rs, true
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return r.Last(), ctx.Err()
	}

	ranked := make([]models.RankedSymbol, 0, len(cands))
	for i := range scored {
		if ok[i] {
			ranked = append(ranked, scored[i])
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].QuoteVolume > ranked[j].QuoteVolume
	})
	if r.cfg.TopN > 0 && len(ranked) > r.cfg.TopN {
		ranked = ranked[:r.cfg.TopN]
	}

	r.mu.Lock()
	r.last = ranked
	r.mu.Unlock()

	if err := r.writeSnapshot(ranked); err != nil {
		logger.Warn("[RANK] snapshot not written: %v", err)
	}
	return ranked, nil
}

func (r *Ranker) eligible(tickers []models.Ticker24h) []models.Ticker24h {
	out := make([]models.Ticker24h, 0, len(tickers))
	for _, t := range tickers {
		if r.cfg.QuoteAsset != "" && !strings.HasSuffix(t.Symbol, r.cfg.QuoteAsset) {
			continue
		}
		f, ok := r.filters.Filters(t.Symbol)
		if !ok || !f.Tradable() {
			continue
		}
		if t.QuoteVolume < r.cfg.MinVolume {
			continue
		}
		if math.Abs(t.PriceChangePercent) < r.cfg.MinDailyChange*100 {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (r *Ranker) score(ctx context.Context, t models.Ticker24h) (models.RankedSymbol, error) {
	spread := defaultSpread
	if top, err := r.md.BookTop(ctx, t.Symbol, rankDepth); err == nil {
		if s, ok := top.SpreadPercent(); ok {
			spread = s
		}
	}

	candles, err := r.md.Klines(ctx, t.Symbol, r.cfg.ATRInterval, rankKlines)
	if err != nil {
		return models.RankedSymbol{}, err
	}
	atr, ok := strategy.ATR(candles, r.cfg.ATRPeriod)
	if !ok {
		return models.RankedSymbol{}, errors.Errorf("not enough klines: %d", len(candles))
	}
	lastClose := candles[len(candles)-1].Close
	if lastClose <= 0 {
		return models.RankedSymbol{}, errors.New("zero close price")
	}
	atrPct := atr / lastClose

	return models.RankedSymbol{
		Symbol:             t.Symbol,
		Score:              Score(t.QuoteVolume, atrPct, t.PriceChangePercent, spread),
		QuoteVolume:        t.QuoteVolume,
		PriceChangePercent: t.PriceChangePercent,
		SpreadPercent:      spread,
		ATRPercent:         atrPct,
	}, nil
}

// Score: объём, волатильность и движение за сутки в плюс, спред в минус.
// atrPct и spread — доли, changePct — проценты.
func Score(quoteVolume, atrPct, changePct, spread float64) float64 {
	return 0.3*math.Min(quoteVolume/volumeNormalizer, 1) +
		0.3*math.Min(atrPct/atrNormalizer, 1) +
		0.2*math.Min(math.Abs(changePct)/changeNormalizer, 1) -
		0.2*math.Min(spread/spreadNormalizer, 1) +
		winrateWeight*baseWinrate
}

type rankSnapshot struct {
	GeneratedAt string                `yaml:"generated_at"`
	Mode        string                `yaml:"mode"`
	Symbols     []models.RankedSymbol `yaml:"symbols"`
}

func (r *Ranker) writeSnapshot(ranked []models.RankedSymbol) error {
	if r.cfg.SnapshotDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.cfg.SnapshotDir, 0o755); err != nil {
		return errors.Wrap(err, "mkdir")
	}
	now := r.now().UTC()
	data, err := yaml.Marshal(rankSnapshot{
		GeneratedAt: now.Format(time.RFC3339),
		Mode:        string(r.cfg.Mode),
		Symbols:     ranked,
	})
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	name := filepath.Join(r.cfg.SnapshotDir, "rank_"+now.Format(rankSnapshotStamp)+".yaml")
	return errors.Wrap(os.WriteFile(name, data, 0o644), "write")
}

// Symbols — только тикеры из результата ранжирования.
func Symbols(ranked []models.RankedSymbol) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Symbol
	}
	return out
}
