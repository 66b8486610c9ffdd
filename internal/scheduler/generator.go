package scheduler

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/onchainops/chainsched/internal/config"
)

// Generator produces the day's task set: per enabled protocol and wallet, a
// random number of tasks within the configured activity range, actions drawn
// by weighted sampling, and randomized inter-task delays. Randomness comes
// from an injected source so a fixed seed reproduces the schedule exactly.
type Generator struct {
	protocols map[string]config.ProtocolConfig
	minDelay  time.Duration
	maxDelay  time.Duration
	rng       *rand.Rand
	clock     Clock
	log       zerolog.Logger
}

// NewGenerator creates a Generator from per-protocol config and the
// min/max inter-task delay bounds.
func NewGenerator(cfg *config.Config, rng *rand.Rand, clock Clock, log zerolog.Logger) *Generator {
	return &Generator{
		protocols: cfg.Protocols,
		minDelay:  time.Duration(cfg.Scheduler.MinDelay) * time.Second,
		maxDelay:  time.Duration(cfg.Scheduler.MaxDelay) * time.Second,
		rng:       rng,
		clock:     clock,
		log:       log,
	}
}

// GenerateDailySchedule builds the task set for one scheduling cycle.
// Disabled protocols contribute zero tasks. The generator does not sleep:
// each task carries its delay as a pacing hint for the driver loop.
func (g *Generator) GenerateDailySchedule(wallets []string) ([]*Task, error) {
	var tasks []*Task

	// Protocols in sorted order so a fixed seed yields a fixed schedule.
	names := make([]string, 0, len(g.protocols))
	for name := range g.protocols {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		proto := g.protocols[name]
		if !proto.Enabled {
			continue
		}

		actions, weights, total := enabledOperations(proto)
		if total <= 0 {
			return nil, fmt.Errorf("protocol %q is enabled but has no enabled operations with positive weight", name)
		}

		for _, wallet := range wallets {
			n := g.drawActivityCount(proto.DailyActivityRange)
			for i := 0; i < n; i++ {
				task := &Task{
					ID:        uuid.NewString(),
					Protocol:  name,
					Action:    g.drawAction(actions, weights, total),
					Wallet:    wallet,
					Priority:  PriorityNormal,
					Status:    StatusPending,
					CreatedAt: g.clock.Now(),
					Delay:     g.drawDelay(),
				}
				tasks = append(tasks, task)
			}
		}

		g.log.Debug().Str("protocol", name).Int("tasks", len(tasks)).Msg("generated protocol schedule")
	}

	return tasks, nil
}

// drawActivityCount draws n uniformly from [min, max].
func (g *Generator) drawActivityCount(r config.Range) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + g.rng.Intn(r.Max-r.Min+1)
}

// drawAction samples an action from the cumulative weight distribution.
func (g *Generator) drawAction(actions []string, weights []int, total int) string {
	roll := g.rng.Intn(total)
	for i, w := range weights {
		roll -= w
		if roll < 0 {
			return actions[i]
		}
	}
	// Unreachable when total == sum(weights)
	return actions[len(actions)-1]
}

// drawDelay draws an inter-task delay uniformly from [minDelay, maxDelay].
func (g *Generator) drawDelay() time.Duration {
	if g.maxDelay <= g.minDelay {
		return g.minDelay
	}
	return g.minDelay + time.Duration(g.rng.Int63n(int64(g.maxDelay-g.minDelay)+1))
}

// enabledOperations returns the protocol's enabled operations in sorted
// order with their weights and the weight total.
func enabledOperations(proto config.ProtocolConfig) ([]string, []int, int) {
	names := make([]string, 0, len(proto.Operations))
	for name, op := range proto.Operations {
		if op.Enabled && op.Weight > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	weights := make([]int, len(names))
	total := 0
	for i, name := range names {
		weights[i] = proto.Operations[name].Weight
		total += weights[i]
	}
	return names, weights, total
}
