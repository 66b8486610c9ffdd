// Package protocol defines the boundary to protocol-specific action
// implementations. The scheduler treats every protocol as a black box behind
// the Executor interface and dispatches by name through a Registry.
package protocol

import (
	"context"
)

// Receipt is the result of a successful protocol action.
type Receipt struct {
	TxHash  string // Transaction identifier
	GasUsed int64
}

// Executor performs one protocol's actions. Implementations live outside the
// scheduling core (bridge/swap/lend calls against contracts). A call may
// return an error, time out via ctx, or panic-free fail; the engine treats
// all of those as a failed attempt.
type Executor interface {
	Execute(ctx context.Context, action, wallet string, params map[string]any) (Receipt, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, action, wallet string, params map[string]any) (Receipt, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, action, wallet string, params map[string]any) (Receipt, error) {
	return f(ctx, action, wallet, params)
}
