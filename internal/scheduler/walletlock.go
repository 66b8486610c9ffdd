package scheduler

import (
	"sync"
)

// WalletLocks provides per-wallet mutual exclusion for concurrent task
// execution. Two tasks bound to the same wallet must not run at once (nonce
// ordering), while tasks on different wallets run freely in parallel.
// Keyed mutex pattern: each wallet address gets its own mutex.
type WalletLocks struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-wallet mutexes
}

// NewWalletLocks creates a new WalletLocks.
func NewWalletLocks() *WalletLocks {
	return &WalletLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for the given wallet, creating it on first use.
func (w *WalletLocks) Lock(wallet string) {
	w.mu.Lock()
	walletLock, exists := w.locks[wallet]
	if !exists {
		walletLock = &sync.Mutex{}
		w.locks[wallet] = walletLock
	}
	w.mu.Unlock()

	// Acquire outside the manager lock to avoid contention
	walletLock.Lock()
}

// Unlock releases the mutex for the given wallet.
func (w *WalletLocks) Unlock(wallet string) {
	w.mu.Lock()
	walletLock, exists := w.locks[wallet]
	w.mu.Unlock()

	if exists {
		walletLock.Unlock()
	}
}
