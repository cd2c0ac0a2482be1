package service

// Signal — подробности сигнала на вход (для логов и уведомлений).
type Signal struct {
	Trend      Trend
	Pullback   float64
	ATRPercent float64
	Spread     float64
	Reason     string
}

type Strategy interface {
	Name() string
	// ok==true когда есть сигнал на вход в лонг
	ShouldEnter(mc *MarketContext) (bool, Signal)
	CalculateTpSl(mc *MarketContext, entry float64) (tp, sl float64)
	// reason — причина выхода, если ok==true
	ShouldExit(mc *MarketContext, entry, current float64) (bool, string)
}
