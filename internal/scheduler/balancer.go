package scheduler

import (
	"errors"
	"sync"
)

// ErrEmptyWalletPool is returned when a Balancer is constructed without wallets.
var ErrEmptyWalletPool = errors.New("wallet pool is empty")

// Balancer assigns wallets to tasks round-robin so per-wallet load stays
// balanced: after N assignments across W wallets, max and min per-wallet
// counts differ by at most 1.
type Balancer struct {
	mu      sync.Mutex
	wallets []string
	next    int // Monotonic assignment counter, modulo pool size
	counts  map[string]int
}

// NewBalancer creates a Balancer over the given wallet pool.
func NewBalancer(wallets []string) (*Balancer, error) {
	if len(wallets) == 0 {
		return nil, ErrEmptyWalletPool
	}

	pool := append([]string(nil), wallets...)
	return &Balancer{
		wallets: pool,
		counts:  make(map[string]int, len(pool)),
	}, nil
}

// Assign binds a wallet to the task and returns it. Tasks that arrive with a
// wallet already set pass through untouched and do not advance the counter.
func (b *Balancer) Assign(task *Task) string {
	if task.Wallet != "" {
		return task.Wallet
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	wallet := b.wallets[b.next%len(b.wallets)]
	b.next++
	b.counts[wallet]++
	task.Wallet = wallet
	return wallet
}

// Counts returns a copy of the per-wallet assignment counts.
func (b *Balancer) Counts() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := make(map[string]int, len(b.counts))
	for wallet, n := range b.counts {
		counts[wallet] = n
	}
	return counts
}
