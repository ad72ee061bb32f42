// worldstreamd is a headless host for the world-streaming engine: it loads a
// snapshot, walks scripted observers through the world, and streams entities
// in and out around them until stopped.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/worldstream/engine/internal/config"
	"github.com/worldstream/engine/internal/data"
	"github.com/worldstream/engine/internal/event"
	"github.com/worldstream/engine/internal/instance"
	"github.com/worldstream/engine/internal/scripting"
	"github.com/worldstream/engine/internal/streamer"
	"github.com/worldstream/engine/internal/system"
	"github.com/worldstream/engine/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfgPath := "config/worldstream.toml"
	if p := os.Getenv("WORLDSTREAM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 3. Load the type registry
	registry, err := data.LoadRegistry(cfg.World.RegistryPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("type registry: %w", err)
		}
		log.Warn("type registry missing, all sources treated as unknown",
			zap.String("path", cfg.World.RegistryPath))
		registry = data.NewRegistry()
	} else {
		log.Info("type registry loaded", zap.Int("types", registry.Count()))
	}

	// 4. Build the engine
	grid, err := world.NewGrid(cfg.World.Thresholds, cfg.World.ChunkSizes)
	if err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	store := world.NewStore()
	index := world.NewChunkIndex(grid)
	factory := instance.NewSimFactory(registry)
	bus := event.NewBus()

	engine := streamer.New(grid, store, index, factory, registry, bus, log, streamer.Config{
		LoadRange:  cfg.World.LoadRange,
		Budget:     cfg.Scheduler.Budget(),
		TimeSliced: cfg.Scheduler.TimeSliced,
	})
	engine.Start()

	// 5. Lua lifecycle hooks
	var lua *scripting.Engine
	if cfg.Scripting.Enabled {
		lua, err = scripting.NewEngine(cfg.Scripting.ScriptsDir, log)
		if err != nil {
			return fmt.Errorf("lua engine: %w", err)
		}
		defer lua.Close()
		log.Info("lua hooks loaded", zap.String("dir", cfg.Scripting.ScriptsDir))
	}
	bus.Subscribe(func(ev event.Event) {
		switch e := ev.(type) {
		case event.EntityLoaded:
			lua.EntityLoaded(e.UID, e.Source, e.Position)
		case event.EntityUnloaded:
			lua.EntityUnloaded(e.UID, e.Source)
		}
	})

	// 6. Load the snapshot, if one exists
	snapshotPath := cfg.Persist.SnapshotPath
	if _, statErr := os.Stat(snapshotPath); statErr == nil {
		count, err := engine.LoadWorld(snapshotPath)
		if err != nil {
			return fmt.Errorf("load world: %w", err)
		}
		log.Info("world loaded", zap.String("path", snapshotPath), zap.Int("entities", count))
	} else {
		log.Info("no snapshot, starting empty", zap.String("path", snapshotPath))
	}

	// 7. Register systems
	runner := system.NewRunner()
	runner.Register(system.NewEventSystem(bus))
	runner.Register(system.NewStreamSystem(engine))
	autosave := system.NewAutosaveSystem(engine, lua, snapshotPath, cfg.Persist.AutosaveTicks, log)
	runner.Register(autosave)

	observers := make([]*system.PathObserver, 0, len(cfg.Observers))
	for _, oc := range cfg.Observers {
		waypoints := make([]world.Vec3, len(oc.Waypoints))
		for i, wp := range oc.Waypoints {
			waypoints[i] = world.Vec3{X: wp[0], Y: wp[1], Z: wp[2]}
		}
		observers = append(observers, system.NewPathObserver(oc.ID, oc.Speed, waypoints, oc.Loop))
	}
	runner.Register(system.NewObserverSystem(engine, observers, cfg.World.MinMoveDistance))

	// 8. Tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	tickRate := cfg.Scheduler.TickRate()
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	log.Info("streaming started",
		zap.Duration("tick", tickRate),
		zap.Duration("budget", cfg.Scheduler.Budget()),
		zap.Int("observers", len(observers)))

	statsCounter := 0
	statsInterval := int((10 * time.Second) / tickRate)
	if statsInterval < 1 {
		statsInterval = 1
	}

	for {
		select {
		case <-ticker.C:
			runner.Tick(tickRate)
			statsCounter++
			if statsCounter >= statsInterval {
				statsCounter = 0
				st := engine.Stats()
				log.Info("stream stats",
					zap.Int("entities", st.Entities),
					zap.Int("live", st.Live),
					zap.Int("pending_ops", st.PendingOps),
					zap.Int("required_chunks", st.RequiredChunks))
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			engine.Settle()
			autosave.Save()
			log.Info("stopped")
			return nil
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
