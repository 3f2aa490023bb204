// Command creaturesim runs a stochastic creature population.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/creatures/internal/api"
	"github.com/talgya/creatures/internal/config"
	"github.com/talgya/creatures/internal/engine"
	"github.com/talgya/creatures/internal/entropy"
	"github.com/talgya/creatures/internal/persistence"
	"github.com/talgya/creatures/internal/species"
	"github.com/talgya/creatures/internal/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seedFlag := flag.Int64("seed", 0, "RNG seed (0 = use config, then time-based)")
	maxTicksFlag := flag.Uint64("max-ticks", 0, "Stop after N more ticks (overrides config)")
	speciesPath := flag.String("species", "", "Species definitions file (overrides config)")
	outputDir := flag.String("output-dir", "", "Directory for CSV logs (overrides config)")
	trueRandom := flag.Bool("true-random", false, "Draw from random.org when RANDOM_ORG_API_KEY is set")
	fresh := flag.Bool("fresh", false, "Ignore saved state and seed a new population")
	logJSON := flag.Bool("log-json", false, "Log as JSON instead of text")
	verbose := flag.Bool("v", false, "Debug logging")

	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if *logJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Flags set on the command line win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			cfg.Sim.Seed = *seedFlag
		case "max-ticks":
			cfg.Sim.MaxTicks = *maxTicksFlag
		case "species":
			cfg.Species.Path = *speciesPath
		case "output-dir":
			cfg.Telemetry.OutputDir = *outputDir
		case "true-random":
			cfg.Sim.TrueRandom = *trueRandom
		case "fresh":
			cfg.Storage.Resume = !*fresh
		}
	})

	seed := cfg.Sim.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	birthMode, _ := engine.ParseBirthMode(cfg.Sim.BirthMode)

	var rng entropy.Source = entropy.NewSeeded(seed)
	if cfg.Sim.TrueRandom {
		rng = entropy.FromEnv(os.Getenv("RANDOM_ORG_API_KEY"), seed)
		if _, ok := rng.(*entropy.Client); ok {
			slog.Info("random.org entropy enabled")
		} else {
			slog.Warn("RANDOM_ORG_API_KEY not set, using seeded source")
		}
	}
	pop := engine.NewPopulation(rng, engine.WithBirthMode(birthMode))

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Storage.Path != "" {
		if dir := filepath.Dir(cfg.Storage.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				slog.Error("failed to create data directory", "error", err)
				os.Exit(1)
			}
		}
		db, err = persistence.Open(cfg.Storage.Path)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.Storage.Path)
	}

	// ── Load or Seed Population ──────────────────────────────────────
	var (
		startTick  uint64
		savedStats engine.SimStats
		haveStats  bool
	)
	runID := ""

	if db != nil && cfg.Storage.Resume && db.HasWorldState() {
		slog.Info("found saved state, loading...")
		n, err := db.Restore(pop)
		if err != nil {
			slog.Error("failed to restore population", "error", err)
			os.Exit(1)
		}
		if startTick, err = db.LastTick(); err != nil {
			slog.Error("failed to read last tick", "error", err)
			os.Exit(1)
		}
		if savedStats, haveStats, err = db.LoadSimStats(); err != nil {
			slog.Warn("failed to read saved statistics, counters restart at zero", "error", err)
			haveStats = false
		}
		if id, err := db.GetMeta("run_id"); err == nil {
			runID = id
		} else if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("failed to read run id", "error", err)
		}
		slog.Info("population restored", "alive", n, "types", len(pop.TrackedTypes()), "tick", startTick)
	} else {
		defs, err := species.Load(cfg.Species.Path)
		if err != nil {
			slog.Error("failed to load species", "path", cfg.Species.Path, "error", err)
			os.Exit(1)
		}
		if err := species.Seed(pop, defs); err != nil {
			slog.Error("failed to seed population", "error", err)
			os.Exit(1)
		}
	}

	if runID == "" {
		runID = uuid.NewString()
	}
	if db != nil {
		if err := db.SaveMeta("run_id", runID); err != nil {
			slog.Error("failed to save run id", "error", err)
		}
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(pop)
	sim.SetTick(startTick)
	sim.StopOnExtinction = cfg.Sim.StopOnExtinction
	if haveStats {
		sim.RestoreStats(savedStats)
	}

	if db != nil && startTick == 0 {
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	// ── Telemetry ─────────────────────────────────────────────────────
	var out *telemetry.OutputManager
	if cfg.Telemetry.OutputDir != "" {
		out, err = telemetry.NewOutputManager(filepath.Join(cfg.Telemetry.OutputDir, runID))
		if err != nil {
			slog.Error("failed to create output manager", "error", err)
			os.Exit(1)
		}
		defer out.Close()
		if err := out.WriteConfig(cfg); err != nil {
			slog.Error("failed to write config snapshot", "error", err)
		}
		slog.Info("telemetry enabled", "dir", out.Dir())
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.Tick = startTick
	eng.Interval = cfg.Sim.Interval
	eng.SetSpeed(cfg.Sim.Speed)
	if cfg.Sim.ReportEvery > 0 {
		eng.ReportEvery = cfg.Sim.ReportEvery
	}
	if cfg.Sim.MaxTicks > 0 {
		eng.MaxTicks = startTick + cfg.Sim.MaxTicks
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub()
		go hub.Run(ctx)
	}

	eng.OnTick = func(tick uint64) bool {
		alive := sim.Step(tick)
		if err := out.WriteTick(telemetry.NewTickRecord(runID, sim.Snapshot())); err != nil {
			slog.Error("tick telemetry failed", "error", err)
		}
		if db != nil && cfg.Storage.SaveEvery > 0 && tick%cfg.Storage.SaveEvery == 0 {
			if err := db.SaveWorldState(sim); err != nil {
				slog.Error("periodic save failed", "error", err)
			}
		}
		return alive
	}
	eng.OnReport = func(tick uint64) {
		sim.LogReport(tick)
		snap := sim.Snapshot()
		if err := out.WriteTypes(telemetry.NewTypeRecords(runID, snap)); err != nil {
			slog.Error("type telemetry failed", "error", err)
		}
		if db != nil {
			if err := db.SaveStats(snap); err != nil {
				slog.Error("stats save failed", "error", err)
			}
		}
		hub.Broadcast(snap)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	var apiServer *api.Server
	if cfg.API.Enabled {
		adminKey := os.Getenv("CREATURES_ADMIN_KEY")
		if adminKey == "" {
			slog.Warn("CREATURES_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		apiServer = &api.Server{
			Sim:      sim,
			Eng:      eng,
			DB:       db,
			Hub:      hub,
			Port:     cfg.API.Port,
			RunID:    runID,
			AdminKey: adminKey,
		}
		apiServer.Start()
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	slog.Info("starting simulation",
		"run_id", runID,
		"seed", seed,
		"birth_mode", pop.BirthMode(),
		"alive", pop.TotalAlive(),
		"max_ticks", cfg.Sim.MaxTicks,
	)
	started := time.Now()

	eng.Run()

	if apiServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP shutdown", "error", err)
		}
		done()
	}

	if db != nil {
		slog.Info("final save...")
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("final save failed", "error", err)
		}
	}

	snap := sim.Snapshot()
	ran := snap.Tick - startTick
	fmt.Printf("\nRun %s stopped at tick %s after %s ticks (%s).\n",
		runID, humanize.Comma(int64(snap.Tick)), humanize.Comma(int64(ran)), time.Since(started).Round(time.Millisecond))
	fmt.Printf("Alive: %s (peak %s)  deaths: %s  births: %s  replications: %s  mutations: %s\n",
		humanize.Comma(int64(snap.Alive)),
		humanize.Comma(int64(snap.Stats.Peak)),
		humanize.Comma(int64(snap.Stats.Deaths)),
		humanize.Comma(int64(snap.Stats.Births)),
		humanize.Comma(int64(snap.Stats.Replications)),
		humanize.Comma(int64(snap.Stats.Mutations)),
	)
	for _, tc := range snap.Counts {
		fmt.Printf("  type %d: %s\n", tc.TypeID, humanize.Comma(int64(tc.Count)))
	}
}
