package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainops/chainsched/internal/scheduler"
)

func record(taskID, proto, wallet string, status scheduler.Status, gas int64) scheduler.ExecutionRecord {
	rec := scheduler.ExecutionRecord{
		TaskID:   taskID,
		Protocol: proto,
		Action:   "swap_tokens",
		Wallet:   wallet,
		Status:   status,
		Attempts: 1,
		GasUsed:  gas,
		Duration: 1500 * time.Millisecond,
	}
	if status == scheduler.StatusCompleted {
		rec.TxHash = "0xabc"
	} else {
		rec.Err = "insufficient liquidity"
	}
	return rec
}

func TestStoreRecordAndList(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(ctx)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.RecordTaskExecution(ctx, record("t1", "scroll", "0xaaa", scheduler.StatusCompleted, 21000)))
	require.NoError(t, store.RecordTaskExecution(ctx, record("t2", "scroll", "0xbbb", scheduler.StatusFailed, 0)))
	require.NoError(t, store.RecordTaskExecution(ctx, record("t3", "zksync", "0xaaa", scheduler.StatusCompleted, 50000)))

	entries, err := store.ListByProtocol(ctx, "scroll", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "scroll", e.Protocol)
	}

	first := entries[len(entries)-1]
	assert.Equal(t, "t1", first.TaskID)
	assert.Equal(t, scheduler.StatusCompleted, first.Status)
	assert.Equal(t, "0xabc", first.TxHash)
	assert.Equal(t, int64(21000), first.GasUsed)
	assert.Equal(t, 1500*time.Millisecond, first.Duration)
}

func TestStoreListByWallet(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(ctx)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.RecordTaskExecution(ctx, record("t1", "scroll", "0xaaa", scheduler.StatusCompleted, 1)))
	require.NoError(t, store.RecordTaskExecution(ctx, record("t2", "zksync", "0xaaa", scheduler.StatusCompleted, 1)))
	require.NoError(t, store.RecordTaskExecution(ctx, record("t3", "scroll", "0xbbb", scheduler.StatusCompleted, 1)))

	entries, err := store.ListByWallet(ctx, "0xaaa", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStoreSummary(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(ctx)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.RecordTaskExecution(ctx, record("t1", "scroll", "0xaaa", scheduler.StatusCompleted, 21000)))
	require.NoError(t, store.RecordTaskExecution(ctx, record("t2", "scroll", "0xaaa", scheduler.StatusCompleted, 30000)))
	require.NoError(t, store.RecordTaskExecution(ctx, record("t3", "scroll", "0xbbb", scheduler.StatusFailed, 0)))

	summaries, err := store.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	assert.Equal(t, "scroll", summaries[0].Protocol)
	assert.Equal(t, 2, summaries[0].Completed)
	assert.Equal(t, 1, summaries[0].Failed)
	assert.Equal(t, int64(51000), summaries[0].GasUsed)
}

func TestStoreFileBacked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	store, err := NewStore(ctx, path)
	require.NoError(t, err)

	require.NoError(t, store.RecordTaskExecution(ctx, record("t1", "scroll", "0xaaa", scheduler.StatusCompleted, 1)))
	require.NoError(t, store.Close())

	// Reopen and confirm the record survived.
	store, err = NewStore(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	entries, err := store.ListByProtocol(ctx, "scroll", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
