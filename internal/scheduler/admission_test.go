package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingOracle reports a fixed price or error and counts calls.
type countingOracle struct {
	price decimal.Decimal
	err   error
	calls atomic.Int32
}

func (o *countingOracle) CurrentGasPrice(ctx context.Context, network string) (decimal.Decimal, error) {
	o.calls.Add(1)
	if o.err != nil {
		return decimal.Zero, o.err
	}
	return o.price, nil
}

func TestAdmissionAllowsBelowThreshold(t *testing.T) {
	oracle := &countingOracle{price: decimal.NewFromInt(30)}
	ac := NewAdmissionController(oracle, "ethereum", decimal.NewFromInt(150), zerolog.Nop())

	assert.True(t, ac.ShouldExecute(context.Background()))
	assert.Equal(t, int32(1), oracle.calls.Load())
}

func TestAdmissionDeniesAboveThreshold(t *testing.T) {
	oracle := &countingOracle{price: decimal.NewFromInt(200)}
	ac := NewAdmissionController(oracle, "ethereum", decimal.NewFromInt(150), zerolog.Nop())

	assert.False(t, ac.ShouldExecute(context.Background()))
}

func TestAdmissionAllowsAtThreshold(t *testing.T) {
	oracle := &countingOracle{price: decimal.NewFromInt(150)}
	ac := NewAdmissionController(oracle, "ethereum", decimal.NewFromInt(150), zerolog.Nop())

	assert.True(t, ac.ShouldExecute(context.Background()), "only strictly greater denies")
}

func TestAdmissionFailsSafeOnOracleError(t *testing.T) {
	oracle := &countingOracle{err: errors.New("oracle unreachable")}
	ac := NewAdmissionController(oracle, "ethereum", decimal.NewFromInt(150), zerolog.Nop())

	assert.False(t, ac.ShouldExecute(context.Background()), "unknown price must deny, not allow")
}

func TestAdmissionBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	oracle := &countingOracle{err: errors.New("oracle unreachable")}
	ac := NewAdmissionController(oracle, "ethereum", decimal.NewFromInt(150), zerolog.Nop())

	for i := 0; i < 5; i++ {
		assert.False(t, ac.ShouldExecute(context.Background()))
	}
	callsAtTrip := oracle.calls.Load()
	require.Equal(t, int32(5), callsAtTrip)

	// Breaker is open: further checks deny without touching the oracle.
	assert.False(t, ac.ShouldExecute(context.Background()))
	assert.Equal(t, callsAtTrip, oracle.calls.Load())
}

func TestAdmissionGasPrice(t *testing.T) {
	oracle := &countingOracle{price: decimal.RequireFromString("42.5")}
	ac := NewAdmissionController(oracle, "ethereum", decimal.NewFromInt(150), zerolog.Nop())

	price, err := ac.GasPrice(context.Background())
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("42.5")))
}
