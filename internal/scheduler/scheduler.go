package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/onchainops/chainsched/internal/events"
)

// Scheduler is the façade composing resolution, admission control, wallet
// balancing, and the execution engine. One Scheduler drives one batch at a
// time; the DAG it builds is owned by the run and torn down with it.
type Scheduler struct {
	engine        *Engine
	admission     *AdmissionController
	balancer      *Balancer
	bus           *events.Bus
	clock         Clock
	maxConcurrent int
	log           zerolog.Logger
}

// NewScheduler creates a Scheduler. maxConcurrent bounds the worker pool and
// must be >= 1 (validated at config load; clamped here as a last resort).
func NewScheduler(engine *Engine, admission *AdmissionController, balancer *Balancer, maxConcurrent int, opts ...SchedulerOption) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	s := &Scheduler{
		engine:        engine,
		admission:     admission,
		balancer:      balancer,
		clock:         NewClock(),
		maxConcurrent: maxConcurrent,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerEventBus sets the event bus for run-level events.
func WithSchedulerEventBus(bus *events.Bus) SchedulerOption {
	return func(s *Scheduler) { s.bus = bus }
}

// WithSchedulerClock sets the clock used for event timestamps.
func WithSchedulerClock(clock Clock) SchedulerOption {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(log zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = log }
}

// Run executes the batch to completion and returns one Result per task, in
// resolver order. A cyclic or inconsistent batch is rejected wholesale before
// any task runs. Individual task failures never surface as a Run error: they
// appear in the results and go to the failure notifier.
//
// When the admission gate denies execution mid-run, in-flight tasks finish,
// no new tasks start, and the remaining tasks are returned still pending for
// the caller's next cycle.
func (s *Scheduler) Run(ctx context.Context, batch []*Task) ([]Result, error) {
	dag := NewDAG()
	for _, task := range batch {
		if err := dag.Add(task); err != nil {
			return nil, fmt.Errorf("rejecting batch: %w", err)
		}
	}

	order, err := dag.Resolve()
	if err != nil {
		return nil, fmt.Errorf("rejecting batch: %w", err)
	}

	var (
		mu       sync.Mutex
		results  = make(map[string]Result, len(order))
		released = make(map[string]bool, len(order))
	)

	for {
		if err := ctx.Err(); err != nil {
			return s.collectResults(dag, order, results), err
		}

		// Gas is a network-wide condition: one check per wave, not per task.
		if !s.admission.ShouldExecute(ctx) {
			s.publishHalt(dag)
			break
		}

		wave := s.nextWave(dag, order, released)
		if len(wave) == 0 {
			// Nothing runnable: the batch is done, or remaining tasks are
			// stranded behind a terminal failure.
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.maxConcurrent)

		for _, task := range wave {
			released[task.ID] = true
			s.balancer.Assign(task)
			if err := s.bindWallet(dag, task); err != nil {
				return s.collectResults(dag, order, results), err
			}

			t := task
			g.Go(func() error {
				res, err := s.engine.ExecuteTask(gctx, dag, t.ID)
				mu.Lock()
				results[t.ID] = res
				mu.Unlock()
				return err
			})
		}

		if err := g.Wait(); err != nil {
			return s.collectResults(dag, order, results), err
		}

		s.publishProgress(dag)
	}

	return s.collectResults(dag, order, results), nil
}

// nextWave selects not-yet-released tasks whose dependencies have all
// completed, preserving resolver order.
func (s *Scheduler) nextWave(dag *DAG, order []string, released map[string]bool) []*Task {
	var wave []*Task
	for _, id := range order {
		if released[id] {
			continue
		}
		task, ok := dag.Get(id)
		if !ok || task.Status != StatusPending {
			continue
		}

		ready := true
		for _, depID := range task.DependsOn {
			dep, exists := dag.Get(depID)
			if !exists || dep.Status != StatusCompleted {
				ready = false
				break
			}
		}
		if ready {
			wave = append(wave, task)
		}
	}
	return wave
}

// bindWallet writes the balancer's wallet choice into the DAG's task so the
// binding is immutable once execution starts.
func (s *Scheduler) bindWallet(dag *DAG, task *Task) error {
	dag.mu.Lock()
	defer dag.mu.Unlock()

	live, exists := dag.tasks[task.ID]
	if !exists {
		return fmt.Errorf("task %q not found", task.ID)
	}
	if live.Wallet == "" {
		live.Wallet = task.Wallet
	}
	return nil
}

// collectResults builds the per-task result list in resolver order. Tasks the
// engine never reached report their current status (pending for stranded or
// halted work).
func (s *Scheduler) collectResults(dag *DAG, order []string, results map[string]Result) []Result {
	out := make([]Result, 0, len(order))
	for _, id := range order {
		if res, ok := results[id]; ok {
			out = append(out, res)
			continue
		}

		task, exists := dag.Get(id)
		if !exists {
			continue
		}
		out = append(out, Result{
			TaskID:   task.ID,
			Protocol: task.Protocol,
			Action:   task.Action,
			Wallet:   task.Wallet,
			Status:   task.Status,
			Attempts: task.RetryCount,
			Err:      task.Err,
		})
	}
	return out
}

func (s *Scheduler) publishHalt(dag *DAG) {
	pending := 0
	for _, task := range dag.Tasks() {
		if task.Status == StatusPending {
			pending++
		}
	}
	s.log.Warn().Int("pending", pending).Msg("admission gate denied execution, halting run")
	if s.bus != nil {
		s.bus.PublishRun(events.RunHaltedEvent{
			Reason:    "gas price admission denied",
			Pending:   pending,
			Timestamp: s.clock.Now(),
		})
	}
}

func (s *Scheduler) publishProgress(dag *DAG) {
	if s.bus == nil {
		return
	}

	progress := events.RunProgressEvent{Timestamp: s.clock.Now()}
	for _, task := range dag.Tasks() {
		progress.Total++
		switch task.Status {
		case StatusCompleted:
			progress.Completed++
		case StatusFailed:
			progress.Failed++
		case StatusRunning:
			progress.Running++
		case StatusPending:
			progress.Pending++
		}
	}
	s.bus.PublishRun(progress)
}
