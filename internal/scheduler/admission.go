package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// GasOracle reports the current gas price for a network. Implemented by the
// risk manager collaborator.
type GasOracle interface {
	CurrentGasPrice(ctx context.Context, network string) (decimal.Decimal, error)
}

// GasOracleFunc adapts a function to the GasOracle interface.
type GasOracleFunc func(ctx context.Context, network string) (decimal.Decimal, error)

// CurrentGasPrice calls f.
func (f GasOracleFunc) CurrentGasPrice(ctx context.Context, network string) (decimal.Decimal, error) {
	return f(ctx, network)
}

// AdmissionController is the network-wide circuit breaker consulted once per
// scheduling wave. It denies all new work while gas is above the configured
// emergency threshold, and fails safe: an unreachable oracle counts as a
// denial, never as permission.
type AdmissionController struct {
	oracle    GasOracle
	network   string
	threshold decimal.Decimal
	breaker   *gobreaker.CircuitBreaker
	log       zerolog.Logger
}

// NewAdmissionController creates an AdmissionController for the given network
// and gas threshold in Gwei. The oracle is called through a circuit breaker
// so a flapping price feed is not hammered every wave.
func NewAdmissionController(oracle GasOracle, network string, thresholdGwei decimal.Decimal, log zerolog.Logger) *AdmissionController {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gas-oracle-" + network,
		MaxRequests: 3,                // Allow 3 test requests in half-open state
		Interval:    0,                // Don't clear counts automatically
		Timeout:     30 * time.Second, // Stay open for 30s before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip after 5 consecutive oracle failures
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("gas oracle circuit breaker state change")
		},
	})

	return &AdmissionController{
		oracle:    oracle,
		network:   network,
		threshold: thresholdGwei,
		breaker:   breaker,
		log:       log,
	}
}

// ShouldExecute reports whether new tasks may start this wave. False when gas
// exceeds the threshold, the oracle errors, or the breaker is open.
func (a *AdmissionController) ShouldExecute(ctx context.Context) bool {
	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.oracle.CurrentGasPrice(ctx, a.network)
	})
	if err != nil {
		// Unknown price: deny. Fail safe, not fail open.
		a.log.Warn().Err(err).Str("network", a.network).Msg("gas price unavailable, denying execution")
		return false
	}

	price := result.(decimal.Decimal)
	if price.GreaterThan(a.threshold) {
		a.log.Warn().
			Str("network", a.network).
			Str("gas_gwei", price.String()).
			Str("threshold_gwei", a.threshold.String()).
			Msg("gas price above emergency stop threshold")
		return false
	}

	return true
}

// GasPrice exposes the breaker-protected oracle read, for logging and the CLI.
func (a *AdmissionController) GasPrice(ctx context.Context) (decimal.Decimal, error) {
	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.oracle.CurrentGasPrice(ctx, a.network)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return result.(decimal.Decimal), nil
}
