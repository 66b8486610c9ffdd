package scheduler

import (
	"time"
)

// Status represents the current state of a task.
type Status string

const (
	StatusPending   Status = "pending"   // Waiting for dependencies or admission
	StatusRunning   Status = "running"   // Currently executing
	StatusCompleted Status = "completed" // Finished successfully
	StatusFailed    Status = "failed"    // Retries exhausted
)

// Priority orders independent tasks. Higher values are scheduled first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	}
	return "unknown"
}

// Task represents one schedulable protocol action.
type Task struct {
	ID         string         // Unique identifier
	Protocol   string         // Protocol name, key into the executor registry (e.g. "scroll")
	Action     string         // Operation within the protocol (e.g. "bridge", "swap_tokens")
	Wallet     string         // Wallet address; empty until the balancer binds one
	Priority   Priority
	Params     map[string]any // Passed through to the protocol executor unmodified
	DependsOn  []string       // Task IDs that must complete first
	Status     Status
	RetryCount int            // Failed attempts so far
	CreatedAt  time.Time      // FIFO tie-break within a priority tier
	Delay      time.Duration  // Advisory pacing hint from the schedule generator
	Err        error          // Last failure, if any
}

// Result is the per-task outcome of a scheduling run.
type Result struct {
	TaskID   string
	Protocol string
	Action   string
	Wallet   string
	Status   Status
	Attempts int
	TxHash   string
	GasUsed  int64
	Duration time.Duration
	Err      error
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	if task.Params != nil {
		cp.Params = make(map[string]any, len(task.Params))
		for k, v := range task.Params {
			cp.Params[k] = v
		}
	}
	return &cp
}
