package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	yaml := `
demo: vectorscale
num_chunks: 20
num_workers: 4
launch_policy: adaptive
scheduler:
  cores: 8
  memory_gb: 16
  wall_time_minutes: 120
  queue: gpu
inter_submission_delay: 1s
`
	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "vectorscale", cfg.Demo)
	assert.Equal(t, 20, cfg.NumChunks)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, "adaptive", cfg.LaunchPolicy)
	assert.Equal(t, 8, cfg.Scheduler.Cores)
	assert.Equal(t, time.Second, cfg.InterSubmissionDelay)
	// Fields the file doesn't set keep their defaults.
	assert.Equal(t, Default().ArrayLength, cfg.ArrayLength)
	assert.Equal(t, Default().CleanFiles, cfg.CleanFiles)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
