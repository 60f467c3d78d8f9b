package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, runtime.NumCPU(), cfg.Scheduler.Slots)
	assert.Equal(t, 50, cfg.Scheduler.MinVectorSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "xml", cfg.Output.Format)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "xml", cfg.Output.Format)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scheduler:
  slots: 3
  min_vector_size: 10
logging:
  level: debug
output:
  format: sqlite
  base: out/run
redis:
  addr: redis.internal:6380
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scheduler.Slots)
	assert.Equal(t, 10, cfg.Scheduler.MinVectorSize)
	// unset max_tasks_per_split follows slots
	assert.Equal(t, 3, cfg.Scheduler.MaxTasksPerSplit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Output.Format)
	assert.Equal(t, "out/run", cfg.Output.Base)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler: ["), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
