// Package config loads the coordinator's YAML configuration file (spec.md
// §6's "CLI surface is an external collaborator" — this is the one concrete
// CLI the repository ships). Values are parsed with gopkg.in/yaml.v3, the
// way cuemby/warren and dagu-org/dagu configure their daemons; cmd/coordinator
// lets command-line flags parsed by cobra override whatever the file sets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the coordinator's full run configuration.
type Config struct {
	// Demo selects a built-in demo registered in internal/demo.
	Demo string `yaml:"demo"`
	// NumChunks is N, the total number of chunks the selected demo produces.
	NumChunks int `yaml:"num_chunks"`
	// ArrayLength is the fixed-length accumulator size for demos that use
	// aggregate.Sum; ignored otherwise.
	ArrayLength int `yaml:"array_length"`

	// BindAddr is the dispatch engine's listen address.
	BindAddr string `yaml:"bind_addr"`

	// NumWorkers is how many workers to launch.
	NumWorkers int `yaml:"num_workers"`
	// LaunchPolicy is one of "quiet", "busy-retry", "adaptive".
	LaunchPolicy string `yaml:"launch_policy"`
	// ConfirmRunning enables the quiet policy's confirm-running wait.
	ConfirmRunning bool `yaml:"confirm_running"`

	// Mode selects the scheduler adapter: "slurm" or "ssh".
	Mode string `yaml:"mode"`
	// Host is the remote host for ssh mode.
	Host string `yaml:"host"`

	Scheduler SchedulerConfig `yaml:"scheduler"`

	// RestartByTime and RestartFraction configure periodic restart checks;
	// a coordinator run that never calls Restart can leave these zero.
	RestartByTime   bool    `yaml:"restart_by_time"`
	RestartFraction float64 `yaml:"restart_fraction"`

	// InterSubmissionDelay throttles the fleet manager's submission loop
	// (spec.md §5 default 0.5s).
	InterSubmissionDelay time.Duration `yaml:"inter_submission_delay"`

	// WorkerCmd is the command line the fleet manager submits for each
	// worker (the user-supplied protocol-speaking executable, spec.md §1).
	WorkerCmd string `yaml:"worker_cmd"`
	// LogDir is where submission scripts and worker logs are written.
	LogDir string `yaml:"log_dir"`
	// NamePrefix is prepended to each worker's local id to form its job
	// name (spec.md §6).
	NamePrefix string `yaml:"name_prefix"`

	// CleanFiles controls whether teardown removes generated scripts and
	// logs.
	CleanFiles bool `yaml:"clean_files"`
	// Verbose enables internal/clog's conditional logging.
	Verbose bool `yaml:"verbose"`
}

// SchedulerConfig carries the scheduler.Params fields that are the same for
// every worker in a launch.
type SchedulerConfig struct {
	Cores           int     `yaml:"cores"`
	MemoryGB        int     `yaml:"memory_gb"`
	WallTimeMinutes float64 `yaml:"wall_time_minutes"`
	Queue           string  `yaml:"queue"`
}

// Default returns a Config with the same defaults the original source
// assumed implicitly: a single worker, quiet launch, no restart.
func Default() Config {
	return Config{
		Demo:                 "collect",
		NumChunks:            5,
		ArrayLength:          4,
		BindAddr:             ":5555",
		NumWorkers:           1,
		LaunchPolicy:         "quiet",
		Mode:                 "slurm",
		RestartFraction:      0.75,
		InterSubmissionDelay: 500 * time.Millisecond,
		NamePrefix:           "scaleup",
		LogDir:               ".",
		CleanFiles:           true,
	}
}

// Load reads and parses a YAML configuration file, starting from Default
// and overlaying whatever the file sets.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
