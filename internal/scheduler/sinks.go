package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ExecutionRecord is the outcome handed to collaborators after a terminal
// attempt. Not retained by the engine after notification.
type ExecutionRecord struct {
	TaskID   string
	Protocol string
	Action   string
	Wallet   string
	Status   Status
	Attempts int
	TxHash   string
	GasUsed  int64
	Duration time.Duration
	Err      string
}

// MetricsSink receives one record per terminal attempt (success or
// exhausted-retry failure).
type MetricsSink interface {
	RecordTaskExecution(ctx context.Context, rec ExecutionRecord) error
}

// FailureNotifier is invoked on terminal failure only.
type FailureNotifier interface {
	HandleTaskFailure(ctx context.Context, task *Task, taskErr error) error
}

// MultiSink fans one record out to several sinks. Sink errors are collected
// independently so one broken sink does not starve the others.
type MultiSink []MetricsSink

// RecordTaskExecution sends rec to every sink, returning the first error.
func (m MultiSink) RecordTaskExecution(ctx context.Context, rec ExecutionRecord) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.RecordTaskExecution(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LogSink writes execution records to a zerolog logger.
type LogSink struct {
	Log zerolog.Logger
}

// RecordTaskExecution logs the record at info (success) or warn (failure).
func (s LogSink) RecordTaskExecution(_ context.Context, rec ExecutionRecord) error {
	evt := s.Log.Info()
	if rec.Status == StatusFailed {
		evt = s.Log.Warn()
	}
	evt.
		Str("task", rec.TaskID).
		Str("protocol", rec.Protocol).
		Str("action", rec.Action).
		Str("wallet", rec.Wallet).
		Str("status", string(rec.Status)).
		Int("attempts", rec.Attempts).
		Int64("gas_used", rec.GasUsed).
		Dur("duration", rec.Duration).
		Str("error", rec.Err).
		Msg("task execution recorded")
	return nil
}

// NopSink discards records.
type NopSink struct{}

// RecordTaskExecution does nothing.
func (NopSink) RecordTaskExecution(context.Context, ExecutionRecord) error { return nil }

// NopNotifier discards failure notifications.
type NopNotifier struct{}

// HandleTaskFailure does nothing.
func (NopNotifier) HandleTaskFailure(context.Context, *Task, error) error { return nil }

// LogNotifier logs terminal task failures.
type LogNotifier struct {
	Log zerolog.Logger
}

// HandleTaskFailure logs the failed task at error level.
func (n LogNotifier) HandleTaskFailure(_ context.Context, task *Task, taskErr error) error {
	n.Log.Error().
		Err(taskErr).
		Str("task", task.ID).
		Str("protocol", task.Protocol).
		Str("action", task.Action).
		Str("wallet", task.Wallet).
		Int("retries", task.RetryCount).
		Msg("task failed terminally")
	return nil
}
