package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// SpaceGuardConfig configures the free-space guard.
type SpaceGuardConfig struct {
	// ThresholdPercent pauses new work when free space on the mount is at
	// or below this percentage.
	ThresholdPercent float64 `mapstructure:"threshold_percent"`

	// Mount is the mount point to watch. Empty watches the batch root.
	Mount string `mapstructure:"mount"`

	// PollIntervalSeconds is how often a paused worker re-checks.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
}

// MetadataConfig configures the metadata comparison stage.
type MetadataConfig struct {
	// Strict turns any mode or mtime difference into a hard failure.
	Strict bool `mapstructure:"strict"`

	// PermissionWeak declares whether the destination filesystem can store
	// POSIX permission bits: "auto" probes the destination, "true" and
	// "false" override the probe.
	PermissionWeak string `mapstructure:"permission_weak"`

	// Normalize rewrites extracted permissions to 0755/0644 after the
	// comparison verdict is fixed.
	Normalize bool `mapstructure:"normalize"`
}

// DedupConfig configures hard-link deduplication.
type DedupConfig struct {
	MinSize     string `mapstructure:"min_size"`
	TrustedRoot string `mapstructure:"trusted_root"`
}

// Config represents the application configuration.
type Config struct {
	Workers       int              `mapstructure:"workers"`
	Order         string           `mapstructure:"order"`
	Retries       int              `mapstructure:"retries"`
	Include       []string         `mapstructure:"include"`
	Exclude       []string         `mapstructure:"exclude"`
	QuarantineDir string           `mapstructure:"quarantine_dir"`
	ResultsLog    string           `mapstructure:"results_log"`
	SpaceGuard    SpaceGuardConfig `mapstructure:"space_guard"`
	Metadata      MetadataConfig   `mapstructure:"metadata"`
	Dedup         DedupConfig      `mapstructure:"dedup"`
	Logging       LoggingConfig    `mapstructure:"logging"`
	History       struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"history"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/reap/config.yaml
//   - $HOME/.config/reap/config.yaml
//
// Environment variables are prefixed with REAP_ (e.g., REAP_WORKERS).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "reap"))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "reap"))

	v.SetEnvPrefix("REAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.QuarantineDir, &cfg.ResultsLog, &cfg.Dedup.TrustedRoot, &cfg.History.Path} {
		if expanded, err := ExpandPath(*p); err == nil {
			*p = expanded
		}
	}

	return &cfg, nil
}

// SetDefaults registers all configuration defaults on the given viper
// instance. The CLI shares these with Load so flag-only runs behave the same
// as config-file runs.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("order", DefaultOrder)
	v.SetDefault("retries", DefaultRetries)
	v.SetDefault("include", DefaultIncludes)
	v.SetDefault("exclude", []string{})
	v.SetDefault("quarantine_dir", "")
	v.SetDefault("results_log", DefaultResultsLogPath())

	v.SetDefault("space_guard.threshold_percent", DefaultSpaceThresholdPercent)
	v.SetDefault("space_guard.mount", "")
	v.SetDefault("space_guard.poll_interval_seconds", DefaultSpacePollInterval)

	v.SetDefault("metadata.strict", false)
	v.SetDefault("metadata.permission_weak", "auto")
	v.SetDefault("metadata.normalize", false)

	v.SetDefault("dedup.min_size", DefaultDedupMinSize)
	v.SetDefault("dedup.trusted_root", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"batch":  "info",
		"verify": "info",
		"dedup":  "info",
		"space":  "warn",
	})

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", DefaultHistoryPath())
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "reap"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "reap"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a default config file if none exists.
// Returns nil if a config file already exists.
func WriteDefault() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configDir, err := ConfigDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# Reap Archive Verifier Configuration

# Parallel archive workers
workers: %d

# Batch processing order by archive size: asc or desc
order: %s

# Retry rounds for failed archives before quarantine
retries: %d

# Archive name patterns to process
include:
  - "*.tar"
  - "*.tar.gz"
  - "*.tgz"
  - "*.tar.zst"
  - "*.tzst"

# Archive name patterns to skip
exclude: []

# Where failed archives are moved after retry exhaustion
# (empty means <root>/quarantine)
quarantine_dir: ""

# Batch results log (CSV, append-only)
results_log: %s

# Free-space guard for the destination mount
space_guard:
  threshold_percent: %.0f
  mount: ""
  poll_interval_seconds: %d

# Metadata comparison policy
metadata:
  strict: false
  # auto probes the destination; true/false override the probe
  permission_weak: auto
  normalize: false

# Hard-link deduplication
dedup:
  min_size: %s
  trusted_root: ""

# Logging configuration
logging:
  level: info
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30
    max_backups: 5
    daily: true
  components:
    batch: info
    verify: info
    dedup: info
    space: warn

# Batch run history store
history:
  enabled: true
  path: %s
`, DefaultWorkers, DefaultOrder, DefaultRetries, DefaultResultsLogPath(),
		DefaultSpaceThresholdPercent, DefaultSpacePollInterval,
		DefaultDedupMinSize, DefaultHistoryPath())

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/reap/ for the history store.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "reap")
}

// StateDir returns $XDG_STATE_HOME/reap/ for logs and results.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "reap")
}

// DefaultResultsLogPath returns the default batch results log path.
func DefaultResultsLogPath() string {
	return filepath.Join(StateDir(), "results.csv")
}

// DefaultHistoryPath returns the default history store path.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history.db")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "reap.log")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}
