package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainops/chainsched/internal/protocol"
)

// recordingSink captures execution records.
type recordingSink struct {
	mu      sync.Mutex
	records []ExecutionRecord
}

func (s *recordingSink) RecordTaskExecution(_ context.Context, rec ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) all() []ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ExecutionRecord(nil), s.records...)
}

// recordingNotifier captures terminal failures.
type recordingNotifier struct {
	mu       sync.Mutex
	failures []string
}

func (n *recordingNotifier) HandleTaskFailure(_ context.Context, task *Task, _ error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, task.ID)
	return nil
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.failures...)
}

type engineHarness struct {
	engine   *Engine
	registry *protocol.Registry
	clock    *fakeClock
	sink     *recordingSink
	notifier *recordingNotifier
}

func newEngineHarness(maxRetries int) *engineHarness {
	h := &engineHarness{
		registry: protocol.NewRegistry(),
		clock:    newFakeClock(),
		sink:     &recordingSink{},
		notifier: &recordingNotifier{},
	}
	h.engine = NewEngine(h.registry, EngineConfig{
		MaxRetries:  maxRetries,
		RetryDelay:  30 * time.Second,
		TaskTimeout: time.Minute,
	},
		WithMetricsSink(h.sink),
		WithFailureNotifier(h.notifier),
		WithEngineClock(h.clock),
	)
	return h
}

func pendingTask(id string) *Task {
	return &Task{
		ID:       id,
		Protocol: "scroll",
		Action:   "swap_tokens",
		Wallet:   "0xaaa",
		Status:   StatusPending,
	}
}

func TestEngineSuccessFirstAttempt(t *testing.T) {
	h := newEngineHarness(3)
	exec := protocol.NewScriptedExecutor(protocol.Outcome{
		Receipt: protocol.Receipt{TxHash: "0xabc", GasUsed: 21000},
	})
	h.registry.Register("scroll", exec)

	dag := NewDAG()
	require.NoError(t, dag.Add(pendingTask("t1")))

	result, err := h.engine.ExecuteTask(context.Background(), dag, "t1")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "0xabc", result.TxHash)
	assert.Equal(t, int64(21000), result.GasUsed)
	assert.Equal(t, 1, exec.Calls())
	assert.Empty(t, h.clock.sleeps())

	task, _ := dag.Get("t1")
	assert.Equal(t, StatusCompleted, task.Status)

	records := h.sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, StatusCompleted, records[0].Status)
	assert.Empty(t, h.notifier.all())
}

func TestEngineRetryExhaustion(t *testing.T) {
	h := newEngineHarness(3)
	exec := protocol.NewScriptedExecutor(protocol.Outcome{Err: errors.New("insufficient liquidity")})
	h.registry.Register("scroll", exec)

	dag := NewDAG()
	require.NoError(t, dag.Add(pendingTask("t1")))

	result, err := h.engine.ExecuteTask(context.Background(), dag, "t1")
	require.NoError(t, err)

	// max_retries = 3 means exactly 3 attempts, never a 4th.
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, exec.Calls())
	assert.EqualError(t, result.Err, "insufficient liquidity")

	// Two fixed-delay waits between the three attempts.
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, h.clock.sleeps())

	task, _ := dag.Get("t1")
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, 3, task.RetryCount)

	assert.Equal(t, []string{"t1"}, h.notifier.all())
	records := h.sink.all()
	require.Len(t, records, 1, "sink records terminal attempts only")
	assert.Equal(t, StatusFailed, records[0].Status)
}

func TestEngineRetryThenSuccess(t *testing.T) {
	h := newEngineHarness(3)
	exec := protocol.NewScriptedExecutor(
		protocol.Outcome{Err: errors.New("network error")},
		protocol.Outcome{Err: errors.New("network error")},
		protocol.Outcome{Receipt: protocol.Receipt{TxHash: "0xdef", GasUsed: 50000}},
	)
	h.registry.Register("scroll", exec)

	dag := NewDAG()
	require.NoError(t, dag.Add(pendingTask("t1")))

	result, err := h.engine.ExecuteTask(context.Background(), dag, "t1")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, exec.Calls())
	assert.Empty(t, h.notifier.all())

	task, _ := dag.Get("t1")
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, 2, task.RetryCount)
}

func TestEngineSingleAttemptWhenRetriesDisabled(t *testing.T) {
	h := newEngineHarness(0)
	exec := protocol.NewScriptedExecutor(protocol.Outcome{Err: errors.New("reverted")})
	h.registry.Register("scroll", exec)

	dag := NewDAG()
	require.NoError(t, dag.Add(pendingTask("t1")))

	result, err := h.engine.ExecuteTask(context.Background(), dag, "t1")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, exec.Calls())
}

func TestEngineUnknownProtocol(t *testing.T) {
	h := newEngineHarness(3)

	dag := NewDAG()
	require.NoError(t, dag.Add(pendingTask("t1")))

	result, err := h.engine.ExecuteTask(context.Background(), dag, "t1")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.ErrorIs(t, result.Err, protocol.ErrUnknownProtocol)
	assert.Equal(t, []string{"t1"}, h.notifier.all())
}

func TestEngineNoWalletBound(t *testing.T) {
	h := newEngineHarness(3)
	h.registry.Register("scroll", protocol.AlwaysSucceed(21000))

	dag := NewDAG()
	task := pendingTask("t1")
	task.Wallet = ""
	require.NoError(t, dag.Add(task))

	result, err := h.engine.ExecuteTask(context.Background(), dag, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "no wallet")
}

func TestEngineTimeoutTreatedAsFailure(t *testing.T) {
	h := newEngineHarness(2)
	h.engine.cfg.TaskTimeout = 10 * time.Millisecond

	// Executor that never returns until its context expires.
	exec := protocol.ExecutorFunc(func(ctx context.Context, action, wallet string, params map[string]any) (protocol.Receipt, error) {
		<-ctx.Done()
		return protocol.Receipt{}, ctx.Err()
	})
	h.registry.Register("scroll", exec)

	dag := NewDAG()
	require.NoError(t, dag.Add(pendingTask("t1")))

	result, err := h.engine.ExecuteTask(context.Background(), dag, "t1")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 2, result.Attempts, "a timeout is retried like any other failure")
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
}

func TestEngineContextCancellationStopsRetries(t *testing.T) {
	h := newEngineHarness(5)
	exec := protocol.NewScriptedExecutor(protocol.Outcome{Err: errors.New("network error")})
	h.registry.Register("scroll", exec)

	dag := NewDAG()
	require.NoError(t, dag.Add(pendingTask("t1")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.ExecuteTask(ctx, dag, "t1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, exec.Calls())
}

func TestEngineSerializesSameWallet(t *testing.T) {
	h := newEngineHarness(1)

	var (
		mu      sync.Mutex
		running int
		maxSeen int
	)
	exec := protocol.ExecutorFunc(func(ctx context.Context, action, wallet string, params map[string]any) (protocol.Receipt, error) {
		mu.Lock()
		running++
		if running > maxSeen {
			maxSeen = running
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return protocol.Receipt{TxHash: "0x1", GasUsed: 1}, nil
	})
	h.registry.Register("scroll", exec)

	dag := NewDAG()
	require.NoError(t, dag.Add(pendingTask("a")))
	require.NoError(t, dag.Add(pendingTask("b")))

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(taskID string) {
			defer wg.Done()
			_, _ = h.engine.ExecuteTask(context.Background(), dag, taskID)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "tasks on the same wallet must not overlap")
}
