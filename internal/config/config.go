package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	World     WorldConfig      `toml:"world"`
	Scheduler SchedulerConfig  `toml:"scheduler"`
	Persist   PersistConfig    `toml:"persist"`
	Scripting ScriptingConfig  `toml:"scripting"`
	Logging   LoggingConfig    `toml:"logging"`
	Observers []ObserverConfig `toml:"observers"`
}

type WorldConfig struct {
	// Ascending size-category boundaries; size <= thresholds[i] lands in
	// category i. Zero or above the last threshold = always loaded.
	Thresholds []float64 `toml:"thresholds"`
	// Chunk edge length per category, same order as thresholds.
	ChunkSizes []float64 `toml:"chunk_sizes"`
	// Observer window radius in chunks; the window is (2r+1)² per category.
	LoadRange int `toml:"load_range"`
	// Minimum observer movement before a requirement update, to avoid
	// update spam.
	MinMoveDistance float64 `toml:"min_move_distance"`
	RegistryPath    string  `toml:"registry_path"`
}

type SchedulerConfig struct {
	BudgetMS   int  `toml:"budget_ms"` // per-tick operation budget
	TickMS     int  `toml:"tick_ms"`   // update loop interval
	TimeSliced bool `toml:"time_sliced"`
}

type PersistConfig struct {
	SnapshotPath  string `toml:"snapshot_path"`
	AutosaveTicks int    `toml:"autosave_ticks"` // 0 = autosave disabled
}

type ScriptingConfig struct {
	Enabled    bool   `toml:"enabled"`
	ScriptsDir string `toml:"scripts_dir"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// ObserverConfig declares a scripted observer for the daemon: it walks its
// waypoints at the given speed, driving chunk requirements as it goes.
type ObserverConfig struct {
	ID        string      `toml:"id"`
	Speed     float64     `toml:"speed"`     // world units per second
	Waypoints [][]float64 `toml:"waypoints"` // [x, y, z] triples
	Loop      bool        `toml:"loop"`
}

func (c *SchedulerConfig) Budget() time.Duration {
	return time.Duration(c.BudgetMS) * time.Millisecond
}

func (c *SchedulerConfig) TickRate() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.World.Thresholds) != len(c.World.ChunkSizes) {
		return fmt.Errorf("thresholds and chunk_sizes must have equal length")
	}
	if c.World.LoadRange < 0 {
		return fmt.Errorf("load_range must be >= 0")
	}
	if c.Scheduler.BudgetMS <= 0 {
		return fmt.Errorf("budget_ms must be > 0")
	}
	if c.Scheduler.TickMS <= 0 {
		return fmt.Errorf("tick_ms must be > 0")
	}
	if c.Persist.AutosaveTicks < 0 {
		return fmt.Errorf("autosave_ticks must be >= 0")
	}
	for i, ob := range c.Observers {
		if ob.ID == "" {
			return fmt.Errorf("observer %d has no id", i)
		}
		for j, wp := range ob.Waypoints {
			if len(wp) != 3 {
				return fmt.Errorf("observer %s waypoint %d: want 3 components, got %d", ob.ID, j, len(wp))
			}
		}
	}
	return nil
}

func defaults() *Config {
	return &Config{
		World: WorldConfig{
			Thresholds:      []float64{1.0, 4.0, 16.0},
			ChunkSizes:      []float64{8.0, 16.0, 64.0},
			LoadRange:       1,
			MinMoveDistance: 2.0,
			RegistryPath:    "data/types.yaml",
		},
		Scheduler: SchedulerConfig{
			BudgetMS:   4,
			TickMS:     50,
			TimeSliced: true,
		},
		Persist: PersistConfig{
			SnapshotPath:  "world.save",
			AutosaveTicks: 6000, // 6000 ticks × 50ms = 5 minutes
		},
		Scripting: ScriptingConfig{
			Enabled:    false,
			ScriptsDir: "scripts",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
