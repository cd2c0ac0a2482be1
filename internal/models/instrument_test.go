package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFilters() SymbolFilters {
	return SymbolFilters{
		Symbol:      "XYZUSDT",
		HasPrice:    true,
		MinPrice:    0.01,
		MaxPrice:    1000,
		TickSize:    0.01,
		HasLot:      true,
		MinQty:      0.001,
		MaxQty:      100,
		StepSize:    0.001,
		HasNotional: true,
		MinNotional: 5,
	}
}

func TestValidatePrice(t *testing.T) {
	f := testFilters()

	_, err := f.ValidatePrice(0.001)
	var fe *FilterError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ConstraintMinPrice, fe.Constraint)
	assert.ErrorIs(t, err, ErrFilterViolation)

	_, err = f.ValidatePrice(1000.5)
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ConstraintMaxPrice, fe.Constraint)

	p, err := f.ValidatePrice(118.237)
	require.NoError(t, err)
	assert.InDelta(t, 118.24, p, 1e-9)
}

func TestValidatePriceUnboundedMax(t *testing.T) {
	f := testFilters()
	f.MaxPrice = 0
	p, err := f.ValidatePrice(5_000_000)
	require.NoError(t, err)
	assert.InDelta(t, 5_000_000, p, 1e-6)
}

func TestValidateQuantity(t *testing.T) {
	f := testFilters()

	_, err := f.ValidateQuantity(0.0001)
	var fe *FilterError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ConstraintMinQty, fe.Constraint)

	_, err = f.ValidateQuantity(101)
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ConstraintMaxQty, fe.Constraint)

	q, err := f.ValidateQuantity(0.08474)
	require.NoError(t, err)
	assert.InDelta(t, 0.085, q, 1e-12)
}

func TestValidateNotional(t *testing.T) {
	f := testFilters()

	_, _, err := f.Validate(100, 0.04)
	var fe *FilterError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ConstraintMinNotional, fe.Constraint)
	assert.InDelta(t, 4, fe.Value, 1e-9)

	p, q, err := f.Validate(100.004, 0.0604)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, p, 1e-9)
	assert.InDelta(t, 0.06, q, 1e-12)
}

func TestValidateWithoutFilters(t *testing.T) {
	p, q, err := SymbolFilters{Symbol: "ABC"}.Validate(1.23456, 0.000001)
	require.NoError(t, err)
	assert.Equal(t, 1.23456, p)
	assert.Equal(t, 0.000001, q)
}
