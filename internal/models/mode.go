package models

import (
	"fmt"
	"strings"
)

// Mode — режим торговли: спот или USDⓈ-M фьючерсы.
type Mode string

const (
	ModeSpot    Mode = "SPOT"
	ModeFutures Mode = "FUTURES"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(raw))) {
	case ModeSpot:
		return ModeSpot, nil
	case ModeFutures:
		return ModeFutures, nil
	default:
		return "", fmt.Errorf("unknown trading mode %q", raw)
	}
}

func (m Mode) IsFutures() bool { return m == ModeFutures }
