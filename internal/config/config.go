// Package config loads engine settings from relay-memory.yaml and the
// RELAY_MEMORY environment, layered over defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/starfall-labs/relay-memory/internal/hydrate"
	"github.com/starfall-labs/relay-memory/internal/model"
	"github.com/starfall-labs/relay-memory/internal/salience"
	"github.com/starfall-labs/relay-memory/internal/store"
)

type Config struct {
	DBPath    string          `yaml:"db_path" mapstructure:"db_path"`
	Memory    MemoryConfig    `yaml:"memory" mapstructure:"memory"`
	Hydration HydrationConfig `yaml:"hydration" mapstructure:"hydration"`
	Salience  SalienceConfig  `yaml:"salience" mapstructure:"salience"`
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Relay     RelayConfig     `yaml:"relay" mapstructure:"relay"`
}

// MemoryConfig governs capacity eviction and the low-score sweep.
type MemoryConfig struct {
	Capacity      int           `yaml:"capacity" mapstructure:"capacity"`
	Floor         float64       `yaml:"floor" mapstructure:"floor"`
	MinAge        time.Duration `yaml:"min_age" mapstructure:"min_age"`
	RetentionCron string        `yaml:"retention_cron" mapstructure:"retention_cron"`
}

// HydrationConfig governs context assembly.
type HydrationConfig struct {
	Budget   int           `yaml:"budget" mapstructure:"budget"`
	TopN     int           `yaml:"top_n" mapstructure:"top_n"`
	Delta    float64       `yaml:"delta" mapstructure:"delta"`
	MaxNotes int           `yaml:"max_notes" mapstructure:"max_notes"`
	Excerpts int           `yaml:"excerpts" mapstructure:"excerpts"`
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// SalienceConfig tunes the keyword scorer. Weights maps a keyword to the
// score it promotes to; empty means the stock sets.
type SalienceConfig struct {
	Base          float64            `yaml:"base" mapstructure:"base"`
	EmphasisBonus float64            `yaml:"emphasis_bonus" mapstructure:"emphasis_bonus"`
	Weights       map[string]float64 `yaml:"weights" mapstructure:"weights"`
}

// LedgerConfig enumerates the allowed continuity profile fields.
type LedgerConfig struct {
	ProfileFields []string `yaml:"profile_fields" mapstructure:"profile_fields"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// RelayConfig supplies session defaults for values a session file omits.
type RelayConfig struct {
	Pace      time.Duration `yaml:"pace" mapstructure:"pace"`
	MaxTokens int           `yaml:"max_tokens" mapstructure:"max_tokens"`
}

func DefaultConfig() *Config {
	return &Config{
		DBPath: DefaultDBPath(),
		Memory: MemoryConfig{
			Capacity:      500,
			Floor:         0.25,
			MinAge:        72 * time.Hour,
			RetentionCron: "@hourly",
		},
		Hydration: HydrationConfig{
			Budget:   6000,
			TopN:     15,
			Delta:    0.02,
			MaxNotes: 10,
			Excerpts: 5,
			CacheTTL: 30 * time.Second,
		},
		Salience: SalienceConfig{
			Base:          0.5,
			EmphasisBonus: 0.05,
		},
		Ledger: LedgerConfig{
			ProfileFields: model.DefaultProfileFields,
		},
		Server: ServerConfig{
			Addr: ":8787",
		},
		Relay: RelayConfig{
			Pace:      2 * time.Second,
			MaxTokens: 1024,
		},
	}
}

// DefaultDBPath is ~/.relay-memory/relay.db.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "relay.db"
	}
	return filepath.Join(home, ".relay-memory", "relay.db")
}

func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("relay-memory")
	v.SetConfigType("yaml")

	// Search paths
	v.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		v.AddConfigPath(filepath.Join(xdg, "relay-memory"))
	}
	home, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(home, ".relay-memory"))

	// Environment variables: RELAY_MEMORY_DB_PATH, RELAY_MEMORY_MEMORY_CAPACITY, ...
	v.SetEnvPrefix("RELAY_MEMORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults registered key by key so AutomaticEnv covers them too.
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found; defaults and env apply
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("memory.capacity", cfg.Memory.Capacity)
	v.SetDefault("memory.floor", cfg.Memory.Floor)
	v.SetDefault("memory.min_age", cfg.Memory.MinAge)
	v.SetDefault("memory.retention_cron", cfg.Memory.RetentionCron)
	v.SetDefault("hydration.budget", cfg.Hydration.Budget)
	v.SetDefault("hydration.top_n", cfg.Hydration.TopN)
	v.SetDefault("hydration.delta", cfg.Hydration.Delta)
	v.SetDefault("hydration.max_notes", cfg.Hydration.MaxNotes)
	v.SetDefault("hydration.excerpts", cfg.Hydration.Excerpts)
	v.SetDefault("hydration.cache_ttl", cfg.Hydration.CacheTTL)
	v.SetDefault("salience.base", cfg.Salience.Base)
	v.SetDefault("salience.emphasis_bonus", cfg.Salience.EmphasisBonus)
	v.SetDefault("ledger.profile_fields", cfg.Ledger.ProfileFields)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("relay.pace", cfg.Relay.Pace)
	v.SetDefault("relay.max_tokens", cfg.Relay.MaxTokens)
}

// Validate checks the configuration for errors and repairs zero values.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	if c.Memory.Floor < 0 || c.Memory.Floor > 1 {
		return fmt.Errorf("config: memory.floor %v outside [0,1]", c.Memory.Floor)
	}
	if c.Hydration.Delta < 0 || c.Hydration.Delta > 1 {
		return fmt.Errorf("config: hydration.delta %v outside [0,1]", c.Hydration.Delta)
	}
	for word, w := range c.Salience.Weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("config: salience weight for %q outside [0,1]", word)
		}
	}
	if c.Memory.Capacity < 1 {
		c.Memory.Capacity = 500
	}
	if c.Hydration.Budget < 1 {
		c.Hydration.Budget = 6000
	}
	if c.Hydration.TopN < 1 {
		c.Hydration.TopN = 15
	}
	if len(c.Ledger.ProfileFields) == 0 {
		c.Ledger.ProfileFields = model.DefaultProfileFields
	}
	return nil
}

// Scorer builds the salience scorer the config describes.
func (c *Config) Scorer() *salience.KeywordScorer {
	if len(c.Salience.Weights) == 0 {
		return salience.Default()
	}
	sets := make(map[float64][]string)
	for word, w := range c.Salience.Weights {
		sets[w] = append(sets[w], word)
	}
	return salience.New(c.Salience.Base, sets, c.Salience.EmphasisBonus)
}

// HydrateConfig maps the hydration section onto the engine's config.
func (c *Config) HydrateConfig() hydrate.Config {
	return hydrate.Config{
		Budget:   c.Hydration.Budget,
		TopN:     c.Hydration.TopN,
		Delta:    c.Hydration.Delta,
		MaxNotes: c.Hydration.MaxNotes,
		Excerpts: c.Hydration.Excerpts,
		CacheTTL: c.Hydration.CacheTTL,
	}
}

// RetentionPolicy maps the memory section onto the store's policy.
func (c *Config) RetentionPolicy() store.RetentionPolicy {
	return store.RetentionPolicy{
		Capacity: c.Memory.Capacity,
		Floor:    c.Memory.Floor,
		MinAge:   c.Memory.MinAge,
	}
}

// OpenStore opens the configured database with the configured scorer and
// profile field set.
func (c *Config) OpenStore() (*store.SQLiteStore, error) {
	if dir := filepath.Dir(c.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}
	return store.NewSQLiteStore(c.DBPath,
		store.WithScorer(c.Scorer()),
		store.WithProfileFields(c.Ledger.ProfileFields),
	)
}
