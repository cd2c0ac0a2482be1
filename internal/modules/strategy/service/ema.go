package service

import (
	"math"

	"scalp_engine/internal/models"
)

// emaSeries — EMA по всему окну, затравка — первая цена окна (не SMA).
// Пустой результат, если точек меньше периода.
func emaSeries(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}
	k := 2.0 / (float64(period) + 1)
	out := make([]float64, len(prices))
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = (prices[i]-out[i-1])*k + out[i-1]
	}
	return out
}

func lastEMA(prices []float64, period int) (float64, bool) {
	s := emaSeries(prices, period)
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// t3 — тройное сглаживание: EMA(EMA(EMA(closes))).
func t3(prices []float64, period int) (float64, bool) {
	e1 := emaSeries(prices, period)
	e2 := emaSeries(e1, period)
	e3 := emaSeries(e2, period)
	if len(e3) == 0 {
		return 0, false
	}
	return e3[len(e3)-1], true
}

func trueRange(c, prev models.Candle) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev.Close), math.Abs(c.Low-prev.Close)))
}

// atr — простое среднее последних period значений true range (без сглаживания Уайлдера).
func atr(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, trueRange(candles[i], candles[i-1]))
	}
	var sum float64
	for _, tr := range trs[len(trs)-period:] {
		sum += tr
	}
	return sum / float64(period), true
}

// ATR — то же самое для внешних потребителей (ранжирование).
func ATR(candles []models.Candle, period int) (float64, bool) {
	return atr(candles, period)
}

func closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
