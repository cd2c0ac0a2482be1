package service

import (
	"fmt"

	"scalp_engine/internal/models"
	"scalp_engine/internal/modules/config"
)

func NewStrategy(cfg *config.Config) (Strategy, error) {
	switch cfg.Strategy.Name {
	case "", pullbackName:
		return NewBasicPullback(PullbackConfig{
			PullbackCandles:    cfg.Strategy.PullbackCandles,
			MinPullbackPercent: cfg.Strategy.MinPullbackPercent,
			MinVolatility:      cfg.Eligibility.MinVolatilityPercent,
			MaxSpread:          cfg.Eligibility.MaxSpreadPercent,
			VolumeRatio:        cfg.Strategy.VolumeRatio,
			TakeProfitPercent:  cfg.Strategy.TakeProfitPercent,
			StopLossPercent:    cfg.Strategy.StopLossPercent,
		}), nil
	case donchianName:
		return NewDonchianBreakout(DonchianConfig{
			Period:            cfg.Strategy.DonchianPeriod,
			MaxSpread:         cfg.Eligibility.MaxSpreadPercent,
			TakeProfitPercent: cfg.Strategy.TakeProfitPercent,
			StopLossPercent:   cfg.Strategy.StopLossPercent,
		}), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy.Name)
	}
}

func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		FastInterval: models.Interval(cfg.Strategy.FastInterval),
		SlowInterval: models.Interval(cfg.Strategy.SlowInterval),
		EMAFast:      cfg.Strategy.EMAFast,
		EMASlow:      cfg.Strategy.EMASlow,
		T3Period:     cfg.Strategy.T3Period,
		ATRPeriod:    cfg.Strategy.ATRPeriod,
		BufferSize:   cfg.Strategy.BufferSize,
	}
}
