package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/onchainops/chainsched/internal/events"
	"github.com/onchainops/chainsched/internal/protocol"
)

// EngineConfig bounds the retry policy and per-attempt timeout.
type EngineConfig struct {
	MaxRetries  int           // Maximum total attempts per task (>= 0; 0 means a single attempt)
	RetryDelay  time.Duration // Fixed wait between attempts
	TaskTimeout time.Duration // Per-attempt deadline on the protocol call
}

// Engine drives one task through its lifecycle: dispatch, result handling,
// retry-or-terminate, and collaborator notification. Retries happen inside a
// single ExecuteTask call so the task keeps its identity and history.
type Engine struct {
	registry    *protocol.Registry
	walletLocks *WalletLocks
	sink        MetricsSink
	notifier    FailureNotifier
	bus         *events.Bus
	clock       Clock
	cfg         EngineConfig
	log         zerolog.Logger
}

// NewEngine creates an Engine. Nil sink, notifier, or bus are replaced with
// no-op implementations.
func NewEngine(registry *protocol.Registry, cfg EngineConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:    registry,
		walletLocks: NewWalletLocks(),
		sink:        NopSink{},
		notifier:    NopNotifier{},
		clock:       NewClock(),
		cfg:         cfg,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMetricsSink sets the metrics sink.
func WithMetricsSink(sink MetricsSink) EngineOption {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithFailureNotifier sets the terminal-failure notifier.
func WithFailureNotifier(n FailureNotifier) EngineOption {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithEventBus sets the event bus for lifecycle events.
func WithEventBus(bus *events.Bus) EngineOption {
	return func(e *Engine) { e.bus = bus }
}

// WithEngineClock sets the clock used for retry waits and durations.
func WithEngineClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// ExecuteTask runs the task through its full retry cycle and returns its
// Result. Task errors are reported in the Result, never as a returned error;
// the error return is reserved for bookkeeping faults (unknown task ID) and
// context cancellation.
func (e *Engine) ExecuteTask(ctx context.Context, dag *DAG, taskID string) (Result, error) {
	task, exists := dag.Get(taskID)
	if !exists {
		return Result{}, fmt.Errorf("task %q not found", taskID)
	}

	result := Result{
		TaskID:   task.ID,
		Protocol: task.Protocol,
		Action:   task.Action,
		Wallet:   task.Wallet,
	}

	if task.Wallet == "" {
		err := fmt.Errorf("task %q has no wallet bound", task.ID)
		return e.failTerminal(ctx, dag, task, result, err), nil
	}

	exec, err := e.registry.Get(task.Protocol)
	if err != nil {
		return e.failTerminal(ctx, dag, task, result, err), nil
	}

	// Serialize tasks on the same wallet for the whole retry cycle.
	e.walletLocks.Lock(task.Wallet)
	defer e.walletLocks.Unlock(task.Wallet)

	// Fixed retry_delay per attempt; MaxRetries bounds total attempts.
	retries := uint64(0)
	if e.cfg.MaxRetries > 1 {
		retries = uint64(e.cfg.MaxRetries - 1)
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(e.cfg.RetryDelay), retries)

	start := e.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Attempts++
		if err := dag.MarkRunning(task.ID); err != nil {
			return result, err
		}
		e.publishTask(events.TaskStartedEvent{
			ID:        task.ID,
			Protocol:  task.Protocol,
			Action:    task.Action,
			Wallet:    task.Wallet,
			Attempt:   result.Attempts,
			Timestamp: e.clock.Now(),
		})

		receipt, execErr := e.executeAttempt(ctx, exec, task)
		if execErr == nil {
			result.Status = StatusCompleted
			result.TxHash = receipt.TxHash
			result.GasUsed = receipt.GasUsed
			result.Duration = e.clock.Now().Sub(start)

			_ = dag.MarkCompleted(task.ID)
			e.publishTask(events.TaskCompletedEvent{
				ID:        task.ID,
				TxHash:    receipt.TxHash,
				GasUsed:   receipt.GasUsed,
				Duration:  result.Duration,
				Timestamp: e.clock.Now(),
			})
			e.record(ctx, result)
			return result, nil
		}

		next := policy.NextBackOff()
		if next == backoff.Stop {
			result.Duration = e.clock.Now().Sub(start)
			return e.failTerminal(ctx, dag, task, result, execErr), nil
		}

		retryCount, err := dag.MarkRetrying(task.ID, execErr)
		if err != nil {
			return result, err
		}
		e.publishTask(events.TaskRetryingEvent{
			ID:        task.ID,
			Attempt:   result.Attempts,
			Err:       execErr,
			NextDelay: next,
			Timestamp: e.clock.Now(),
		})
		e.log.Debug().
			Str("task", task.ID).
			Int("retry_count", retryCount).
			Dur("delay", next).
			Err(execErr).
			Msg("task attempt failed, retrying")

		if err := e.clock.Sleep(ctx, next); err != nil {
			return result, err
		}
	}
}

// executeAttempt dispatches one attempt with the per-attempt timeout.
// A timeout is indistinguishable from a returned failure.
func (e *Engine) executeAttempt(ctx context.Context, exec protocol.Executor, task *Task) (protocol.Receipt, error) {
	attemptCtx := ctx
	if e.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
		defer cancel()
	}

	return exec.Execute(attemptCtx, task.Action, task.Wallet, task.Params)
}

// failTerminal marks the task terminally failed and notifies collaborators.
func (e *Engine) failTerminal(ctx context.Context, dag *DAG, task *Task, result Result, taskErr error) Result {
	result.Status = StatusFailed
	result.Err = taskErr

	_ = dag.MarkFailed(task.ID, taskErr)
	failed, _ := dag.Get(task.ID)
	if failed == nil {
		failed = task
	}

	e.publishTask(events.TaskFailedEvent{
		ID:        task.ID,
		Err:       taskErr,
		Attempts:  result.Attempts,
		Timestamp: e.clock.Now(),
	})
	e.record(ctx, result)
	if err := e.notifier.HandleTaskFailure(ctx, failed, taskErr); err != nil {
		e.log.Warn().Err(err).Str("task", task.ID).Msg("failure notifier error")
	}
	return result
}

// record hands the outcome to the metrics sink.
func (e *Engine) record(ctx context.Context, result Result) {
	errStr := ""
	if result.Err != nil {
		errStr = result.Err.Error()
	}
	rec := ExecutionRecord{
		TaskID:   result.TaskID,
		Protocol: result.Protocol,
		Action:   result.Action,
		Wallet:   result.Wallet,
		Status:   result.Status,
		Attempts: result.Attempts,
		TxHash:   result.TxHash,
		GasUsed:  result.GasUsed,
		Duration: result.Duration,
		Err:      errStr,
	}
	if err := e.sink.RecordTaskExecution(ctx, rec); err != nil {
		e.log.Warn().Err(err).Str("task", result.TaskID).Msg("metrics sink error")
	}
}

func (e *Engine) publishTask(event events.Event) {
	if e.bus != nil {
		e.bus.PublishTask(event)
	}
}
