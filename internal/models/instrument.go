package models

import (
	"errors"
	"fmt"

	"scalp_engine/internal/helper"
)

var ErrFilterViolation = errors.New("order filter violation")

const (
	ConstraintMinPrice    = "min_price"
	ConstraintMaxPrice    = "max_price"
	ConstraintMinQty      = "min_qty"
	ConstraintMaxQty      = "max_qty"
	ConstraintMinNotional = "min_notional"
)

// FilterError — какое именно ограничение биржи нарушено.
type FilterError struct {
	Symbol     string
	Constraint string
	Value      float64
	Limit      float64
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("%s: %s violated (value=%g limit=%g)", e.Symbol, e.Constraint, e.Value, e.Limit)
}

func (e *FilterError) Unwrap() error { return ErrFilterViolation }

// SymbolFilters — PRICE_FILTER / LOT_SIZE / (MIN_)NOTIONAL.
// Max* == 0 значит «без ограничения», TickSize/StepSize == 0 — без округления.
type SymbolFilters struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Status     string

	HasPrice bool
	MinPrice float64
	MaxPrice float64
	TickSize float64

	HasLot   bool
	MinQty   float64
	MaxQty   float64
	StepSize float64

	HasNotional bool
	MinNotional float64
}

func (f SymbolFilters) Tradable() bool {
	return f.Status == "" || f.Status == "TRADING"
}

// ValidatePrice проверяет границы и округляет к ближайшему тику.
func (f SymbolFilters) ValidatePrice(price float64) (float64, error) {
	if !f.HasPrice {
		return price, nil
	}
	if price < f.MinPrice {
		return 0, &FilterError{Symbol: f.Symbol, Constraint: ConstraintMinPrice, Value: price, Limit: f.MinPrice}
	}
	if f.MaxPrice > 0 && price > f.MaxPrice {
		return 0, &FilterError{Symbol: f.Symbol, Constraint: ConstraintMaxPrice, Value: price, Limit: f.MaxPrice}
	}
	return helper.RoundToStep(price, f.TickSize), nil
}

// ValidateQuantity проверяет [minQty, maxQty] и округляет к ближайшему шагу.
func (f SymbolFilters) ValidateQuantity(qty float64) (float64, error) {
	if !f.HasLot {
		return qty, nil
	}
	if qty < f.MinQty {
		return 0, &FilterError{Symbol: f.Symbol, Constraint: ConstraintMinQty, Value: qty, Limit: f.MinQty}
	}
	if f.MaxQty > 0 && qty > f.MaxQty {
		return 0, &FilterError{Symbol: f.Symbol, Constraint: ConstraintMaxQty, Value: qty, Limit: f.MaxQty}
	}
	return helper.RoundToStep(qty, f.StepSize), nil
}

func (f SymbolFilters) ValidateNotional(price, qty float64) error {
	if !f.HasNotional {
		return nil
	}
	if n := price * qty; n < f.MinNotional {
		return &FilterError{Symbol: f.Symbol, Constraint: ConstraintMinNotional, Value: n, Limit: f.MinNotional}
	}
	return nil
}

// Validate — полный прогон: цена, количество, затем notional по округлённым значениям.
func (f SymbolFilters) Validate(price, qty float64) (float64, float64, error) {
	p, err := f.ValidatePrice(price)
	if err != nil {
		return 0, 0, err
	}
	q, err := f.ValidateQuantity(qty)
	if err != nil {
		return 0, 0, err
	}
	if err := f.ValidateNotional(p, q); err != nil {
		return 0, 0, err
	}
	return p, q, nil
}
