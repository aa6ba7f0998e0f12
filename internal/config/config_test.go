package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starfall-labs/relay-memory/internal/hydrate"
	"github.com/starfall-labs/relay-memory/internal/salience"
	"github.com/starfall-labs/relay-memory/internal/store"
)

// chdir moves the working directory for the duration of the test; it stands
// in for testing.T.Chdir, which requires Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotEmpty(t, cfg.DBPath)
	assert.Equal(t, 500, cfg.Memory.Capacity)
	assert.Equal(t, 0.25, cfg.Memory.Floor)
	assert.Equal(t, "@hourly", cfg.Memory.RetentionCron)
	assert.Equal(t, 6000, cfg.Hydration.Budget)
	assert.Equal(t, ":8787", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Relay.Pace)
	assert.Equal(t, 1024, cfg.Relay.MaxTokens)
	assert.Len(t, cfg.Ledger.ProfileFields, 5)

	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db_path", func(c *Config) { c.DBPath = "" }},
		{"floor above one", func(c *Config) { c.Memory.Floor = 1.5 }},
		{"negative delta", func(c *Config) { c.Hydration.Delta = -0.1 }},
		{"weight above one", func(c *Config) { c.Salience.Weights = map[string]float64{"compost": 2} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateRepairsZeroValues(t *testing.T) {
	cfg := &Config{DBPath: "relay.db"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 500, cfg.Memory.Capacity)
	assert.Equal(t, 6000, cfg.Hydration.Budget)
	assert.Equal(t, 15, cfg.Hydration.TopN)
	assert.NotEmpty(t, cfg.Ledger.ProfileFields)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "custom.db")
	content := `
db_path: ` + dbPath + `
memory:
  capacity: 50
  floor: 0.1
  min_age: 48h
hydration:
  budget: 3000
server:
  addr: ":9000"
relay:
  max_tokens: 512
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relay-memory.yaml"), []byte(content), 0o600))
	chdir(t, dir)
	t.Setenv("HOME", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dbPath, cfg.DBPath)
	assert.Equal(t, 50, cfg.Memory.Capacity)
	assert.Equal(t, 0.1, cfg.Memory.Floor)
	assert.Equal(t, 48*time.Hour, cfg.Memory.MinAge)
	assert.Equal(t, 3000, cfg.Hydration.Budget)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 512, cfg.Relay.MaxTokens)

	// Keys the file omits keep their defaults
	assert.Equal(t, "@hourly", cfg.Memory.RetentionCron)
	assert.Equal(t, 15, cfg.Hydration.TopN)
	assert.Equal(t, 2*time.Second, cfg.Relay.Pace)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", dir)
	t.Setenv("RELAY_MEMORY_DB_PATH", filepath.Join(dir, "env.db"))
	t.Setenv("RELAY_MEMORY_MEMORY_CAPACITY", "75")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "env.db"), cfg.DBPath)
	assert.Equal(t, 75, cfg.Memory.Capacity)
}

func TestScorer(t *testing.T) {
	cfg := DefaultConfig()

	// No custom weights means the stock sets
	sc := cfg.Scorer()
	assert.InDelta(t, 0.8, sc.Score("please remember the watering schedule", salience.Meta{}), 0.001)

	cfg.Salience.Base = 0.4
	cfg.Salience.Weights = map[string]float64{"compost": 0.9}
	sc = cfg.Scorer()
	assert.InDelta(t, 0.9, sc.Score("turn the compost pile weekly please", salience.Meta{}), 0.001)
	assert.InDelta(t, 0.4, sc.Score("nothing special happened today here", salience.Meta{}), 0.001)
}

func TestHydrateConfigMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hydration.Budget = 1234
	cfg.Hydration.CacheTTL = 9 * time.Second

	hc := cfg.HydrateConfig()
	assert.Equal(t, hydrate.Config{
		Budget:   1234,
		TopN:     15,
		Delta:    0.02,
		MaxNotes: 10,
		Excerpts: 5,
		CacheTTL: 9 * time.Second,
	}, hc)
}

func TestRetentionPolicyMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Memory.Capacity = 42

	pol := cfg.RetentionPolicy()
	assert.Equal(t, store.RetentionPolicy{
		Capacity: 42,
		Floor:    0.25,
		MinAge:   72 * time.Hour,
	}, pol)
}

func TestOpenStoreCreatesParentDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "nested", "relay.db")

	s, err := cfg.OpenStore()
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(cfg.DBPath)
	assert.NoError(t, err)
}
