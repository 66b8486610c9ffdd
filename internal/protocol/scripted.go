package protocol

import (
	"context"
	"fmt"
	"sync"
)

// Outcome is one scripted step: either a receipt or an error.
type Outcome struct {
	Receipt Receipt
	Err     error
}

// ScriptedExecutor replays a fixed sequence of outcomes. Used by tests and by
// the CLI's simulated run, where no real protocol call should be made.
// Once the script is exhausted it keeps returning the last outcome.
type ScriptedExecutor struct {
	mu     sync.Mutex
	script []Outcome
	calls  int
}

// NewScriptedExecutor creates an executor that replays the given outcomes.
func NewScriptedExecutor(script ...Outcome) *ScriptedExecutor {
	return &ScriptedExecutor{script: script}
}

// AlwaysSucceed returns an executor whose every call succeeds with a
// synthetic receipt.
func AlwaysSucceed(gasUsed int64) *ScriptedExecutor {
	return NewScriptedExecutor(Outcome{Receipt: Receipt{TxHash: "0xsimulated", GasUsed: gasUsed}})
}

// Execute returns the next scripted outcome, honoring context cancellation.
func (s *ScriptedExecutor) Execute(ctx context.Context, action, wallet string, params map[string]any) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.script) == 0 {
		return Receipt{}, fmt.Errorf("scripted executor has no outcomes")
	}

	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++

	out := s.script[idx]
	if out.Err != nil {
		return Receipt{}, out.Err
	}
	return out.Receipt, nil
}

// Calls returns how many times Execute has been invoked.
func (s *ScriptedExecutor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
