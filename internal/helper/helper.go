package helper

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// биржа режет clientOrderId длиннее 36 символов
const maxClientOrderIDLen = 36

func NormTF(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "kline_")
	switch s {
	case "60m", "1h":
		return "1h"
	case "1min":
		return "1m"
	case "5min":
		return "5m"
	default:
		return s
	}
}

// TFDuration: "1m" -> time.Minute. Неизвестный таймфрейм -> 0.
func TFDuration(tf string) time.Duration {
	switch NormTF(tf) {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	default:
		return 0
	}
}

// RoundToStep округляет к ближайшему кратному step: round(v/step)*step.
func RoundToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	d := decimal.NewFromFloat(v)
	s := decimal.NewFromFloat(step)
	return d.Div(s).Round(0).Mul(s).InexactFloat64()
}

func RoundDownToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	d := decimal.NewFromFloat(v)
	s := decimal.NewFromFloat(step)
	return d.Div(s).Floor().Mul(s).InexactFloat64()
}

// FormatDecimal — число для REST-параметров без экспоненты и хвостовых нулей.
func FormatDecimal(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// NewClientOrderID: SYMBOL_<uuid8>_<unix ms>.
func NewClientOrderID(symbol string, now time.Time) string {
	id := fmt.Sprintf("%s_%s_%d", symbol, uuid.NewString()[:8], now.UnixMilli())
	if len(id) > maxClientOrderIDLen {
		id = id[len(id)-maxClientOrderIDLen:]
	}
	return id
}
