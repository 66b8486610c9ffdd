package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/onchainops/chainsched/internal/config"
	"github.com/onchainops/chainsched/internal/events"
	"github.com/onchainops/chainsched/internal/history"
	"github.com/onchainops/chainsched/internal/protocol"
	"github.com/onchainops/chainsched/internal/scheduler"
)

func main() {
	// Signal-aware context for graceful shutdown: in-flight tasks finish,
	// no new tasks start.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "chainsched",
		Usage: "dependency-ordered, gas-gated scheduler for on-chain protocol activity",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file (falls back to conventional paths)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "env file loaded before anything else",
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "random seed for schedule generation (0 = time-based)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "write the default configuration file",
				Action: runInit,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Value: ".chainsched/config.yaml",
						Usage: "where to write the config",
					},
				},
			},
			{
				Name:   "generate",
				Usage:  "generate a daily schedule and print it as JSON",
				Action: runGenerate,
			},
			{
				Name:   "run",
				Usage:  "generate a daily schedule and execute it (simulated executors)",
				Action: runSchedule,
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  "gas-gwei",
						Value: 25,
						Usage: "fixed gas price reported by the built-in oracle",
					},
				},
			},
			{
				Name:   "summary",
				Usage:  "print per-protocol execution history totals",
				Action: runSummary,
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(c *cli.Context) error {
	path := c.String("path")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := config.Save(config.DefaultConfig(), path); err != nil {
		return err
	}
	fmt.Printf("wrote default config to %s\n", path)
	return nil
}

func runGenerate(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}

	gen := scheduler.NewGenerator(cfg, newRand(c), scheduler.NewClock(), log)
	tasks, err := gen.GenerateDailySchedule(cfg.Wallets)
	if err != nil {
		return err
	}

	out := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, map[string]any{
			"id":       t.ID,
			"protocol": t.Protocol,
			"action":   t.Action,
			"wallet":   t.Wallet,
			"priority": t.Priority.String(),
			"delay_s":  int(t.Delay / time.Second),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runSchedule(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}

	store, err := history.NewStore(c.Context, cfg.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	// Simulated executors: the real protocol implementations are linked in
	// by the deployment binary, not this CLI.
	registry := protocol.NewRegistry()
	for name, proto := range cfg.Protocols {
		if proto.Enabled {
			registry.Register(name, protocol.AlwaysSucceed(21000))
		}
	}

	oracle := scheduler.GasOracleFunc(func(context.Context, string) (decimal.Decimal, error) {
		return decimal.NewFromFloat(c.Float64("gas-gwei")), nil
	})
	admission := scheduler.NewAdmissionController(oracle, cfg.Network, cfg.GasThreshold(), log)

	balancer, err := scheduler.NewBalancer(cfg.Wallets)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	defer bus.Close()
	go logRunEvents(bus, log)

	engine := scheduler.NewEngine(registry, scheduler.EngineConfig{
		MaxRetries:  cfg.Scheduler.MaxRetries,
		RetryDelay:  time.Duration(cfg.Scheduler.RetryDelay) * time.Second,
		TaskTimeout: time.Duration(cfg.Scheduler.TaskTimeout) * time.Second,
	},
		scheduler.WithMetricsSink(scheduler.MultiSink{store, scheduler.LogSink{Log: log}}),
		scheduler.WithFailureNotifier(scheduler.LogNotifier{Log: log}),
		scheduler.WithEventBus(bus),
		scheduler.WithEngineLogger(log),
	)

	sched := scheduler.NewScheduler(engine, admission, balancer, cfg.Scheduler.MaxConcurrentTasks,
		scheduler.WithSchedulerEventBus(bus),
		scheduler.WithSchedulerLogger(log),
	)

	gen := scheduler.NewGenerator(cfg, newRand(c), scheduler.NewClock(), log)
	tasks, err := gen.GenerateDailySchedule(cfg.Wallets)
	if err != nil {
		return err
	}
	log.Info().Int("tasks", len(tasks)).Msg("generated daily schedule")

	results, err := sched.Run(c.Context, tasks)
	if err != nil {
		return err
	}

	completed, failed, pending := 0, 0, 0
	for _, res := range results {
		switch res.Status {
		case scheduler.StatusCompleted:
			completed++
		case scheduler.StatusFailed:
			failed++
		default:
			pending++
		}
	}
	log.Info().
		Int("completed", completed).
		Int("failed", failed).
		Int("pending", pending).
		Msg("run finished")
	return nil
}

func runSummary(c *cli.Context) error {
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}

	store, err := history.NewStore(c.Context, cfg.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.Summary(c.Context)
	if err != nil {
		return err
	}

	for _, sum := range summaries {
		fmt.Printf("%-12s completed=%d failed=%d gas_used=%d\n",
			sum.Protocol, sum.Completed, sum.Failed, sum.GasUsed)
	}
	return nil
}

// setup loads the env file, the configuration, and builds the root logger.
func setup(c *cli.Context) (*config.Config, zerolog.Logger, error) {
	// Missing env file is fine; an unreadable one is not.
	if err := godotenv.Load(c.String("env-file")); err != nil && !os.IsNotExist(err) {
		return nil, zerolog.Nop(), fmt.Errorf("loading env file: %w", err)
	}

	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	return cfg, log, nil
}

// newRand builds the injected random source. A non-zero --seed reproduces a
// schedule exactly.
func newRand(c *cli.Context) *rand.Rand {
	seed := c.Int64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// logRunEvents mirrors run-level events into the logger.
func logRunEvents(bus *events.Bus, log zerolog.Logger) {
	for event := range bus.Subscribe(events.TopicRun, 0) {
		switch e := event.(type) {
		case events.RunHaltedEvent:
			log.Warn().Str("reason", e.Reason).Int("pending", e.Pending).Msg("run halted")
		case events.RunProgressEvent:
			log.Debug().
				Int("total", e.Total).
				Int("completed", e.Completed).
				Int("failed", e.Failed).
				Int("pending", e.Pending).
				Msg("run progress")
		}
	}
}
