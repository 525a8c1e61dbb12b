package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/errors"
)

// Config represents the complete lspcli configuration
type Config struct {
	Version int `json:"version" mapstructure:"version" toml:"version"`

	Dedup       DedupConfig       `json:"dedup" mapstructure:"dedup" toml:"dedup"`
	Coordinator CoordinatorConfig `json:"coordinator" mapstructure:"coordinator" toml:"coordinator"`
	Registry    RegistryConfig    `json:"registry" mapstructure:"registry" toml:"registry"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging" toml:"logging"`
}

// DedupConfig contains deduplication engine policy
type DedupConfig struct {
	// MemoryWindowMinutes is how long an unseen diagnostic still counts as
	// "known" before it may reappear as new.
	MemoryWindowMinutes int `json:"memoryWindowMinutes" mapstructure:"memoryWindowMinutes" toml:"memoryWindowMinutes"`
	// RetentionMinutes is how long history rows are kept before cleanup.
	RetentionMinutes int `json:"retentionMinutes" mapstructure:"retentionMinutes" toml:"retentionMinutes"`
}

// CoordinatorConfig contains request coordination policy
type CoordinatorConfig struct {
	// JoinThresholdMs is the maximum age of an in-flight collection a new
	// caller will attach to instead of starting its own.
	JoinThresholdMs int `json:"joinThresholdMs" mapstructure:"joinThresholdMs" toml:"joinThresholdMs"`
	// CollectWindowMs is how long a caller waits before reading back results.
	CollectWindowMs int `json:"collectWindowMs" mapstructure:"collectWindowMs" toml:"collectWindowMs"`
	// CompletionGraceMs keeps a finished in-flight record visible so that
	// closely-spaced joiners still attach to it.
	CompletionGraceMs int `json:"completionGraceMs" mapstructure:"completionGraceMs" toml:"completionGraceMs"`
	// RequestMaxAgeMs is the staleness limit past which an in-flight
	// collection is treated as abandoned and terminated.
	RequestMaxAgeMs int `json:"requestMaxAgeMs" mapstructure:"requestMaxAgeMs" toml:"requestMaxAgeMs"`
}

// RegistryConfig contains server registry policy
type RegistryConfig struct {
	// MaxServers caps the number of concurrently live analysis servers.
	MaxServers int `json:"maxServers" mapstructure:"maxServers" toml:"maxServers"`
	// HeartbeatStaleMinutes marks an alive-but-silent server unhealthy.
	HeartbeatStaleMinutes int `json:"heartbeatStaleMinutes" mapstructure:"heartbeatStaleMinutes" toml:"heartbeatStaleMinutes"`
	// TerminateGraceMs is the wait between SIGTERM and SIGKILL.
	TerminateGraceMs int `json:"terminateGraceMs" mapstructure:"terminateGraceMs" toml:"terminateGraceMs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format" toml:"format"`
	Level  string `json:"level" mapstructure:"level" toml:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Dedup: DedupConfig{
			MemoryWindowMinutes: 240,
			RetentionMinutes:    1440,
		},
		Coordinator: CoordinatorConfig{
			// The join threshold must stay below the collection window
			// (see Validate), so a joiner always attaches to a collection
			// that is still inside its own wait.
			JoinThresholdMs:   3000,
			CollectWindowMs:   4000,
			CompletionGraceMs: 10000,
			RequestMaxAgeMs:   60000,
		},
		Registry: RegistryConfig{
			MaxServers:            4,
			HeartbeatStaleMinutes: 5,
			TerminateGraceMs:      2000,
		},
		Logging: LoggingConfig{
			Format: "json",
			Level:  "info",
		},
	}
}

// MemoryWindow returns the dedup memory window as a duration
func (c *Config) MemoryWindow() time.Duration {
	return time.Duration(c.Dedup.MemoryWindowMinutes) * time.Minute
}

// Retention returns the history retention window as a duration
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Dedup.RetentionMinutes) * time.Minute
}

// JoinThreshold returns the in-flight join threshold as a duration
func (c *Config) JoinThreshold() time.Duration {
	return time.Duration(c.Coordinator.JoinThresholdMs) * time.Millisecond
}

// CollectWindow returns the fixed collection wait as a duration
func (c *Config) CollectWindow() time.Duration {
	return time.Duration(c.Coordinator.CollectWindowMs) * time.Millisecond
}

// CompletionGrace returns the in-flight removal grace period as a duration
func (c *Config) CompletionGrace() time.Duration {
	return time.Duration(c.Coordinator.CompletionGraceMs) * time.Millisecond
}

// RequestMaxAge returns the in-flight staleness limit as a duration
func (c *Config) RequestMaxAge() time.Duration {
	return time.Duration(c.Coordinator.RequestMaxAgeMs) * time.Millisecond
}

// HeartbeatStale returns the heartbeat staleness limit as a duration
func (c *Config) HeartbeatStale() time.Duration {
	return time.Duration(c.Registry.HeartbeatStaleMinutes) * time.Minute
}

// TerminateGrace returns the SIGTERM-to-SIGKILL grace as a duration
func (c *Config) TerminateGrace() time.Duration {
	return time.Duration(c.Registry.TerminateGraceMs) * time.Millisecond
}

// Validate checks the configuration. The absolute values of the policy
// constants are tunable; their relative ordering is the invariant:
// join threshold < collection window < memory window < retention window.
func (c *Config) Validate() error {
	if c.JoinThreshold() <= 0 || c.CollectWindow() <= 0 ||
		c.MemoryWindow() <= 0 || c.Retention() <= 0 {
		return errors.New(errors.InvalidConfig, "all policy windows must be positive", nil)
	}

	if !(c.JoinThreshold() < c.CollectWindow() &&
		c.CollectWindow() < c.MemoryWindow() &&
		c.MemoryWindow() < c.Retention()) {
		return errors.New(errors.InvalidConfig,
			"policy windows must satisfy joinThreshold < collectWindow < memoryWindow < retention", nil).
			WithDetails(map[string]interface{}{
				"joinThresholdMs":     c.Coordinator.JoinThresholdMs,
				"collectWindowMs":     c.Coordinator.CollectWindowMs,
				"memoryWindowMinutes": c.Dedup.MemoryWindowMinutes,
				"retentionMinutes":    c.Dedup.RetentionMinutes,
			})
	}

	if c.Registry.MaxServers < 1 {
		return errors.New(errors.InvalidConfig, "registry.maxServers must be at least 1", nil)
	}

	return nil
}

// Load reads configuration from config.toml in the state directory, applying
// defaults for anything unset. Environment variables with the LSPCLI_ prefix
// override file values (e.g. LSPCLI_REGISTRY_MAXSERVERS=2).
func Load(stateDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(stateDir)

	v.SetEnvPrefix("LSPCLI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is normal; anything else is a real error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration as TOML to config.toml in the state dir
func (c *Config) Save(stateDir string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	path := filepath.Join(stateDir, "config.toml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("dedup.memoryWindowMinutes", d.Dedup.MemoryWindowMinutes)
	v.SetDefault("dedup.retentionMinutes", d.Dedup.RetentionMinutes)
	v.SetDefault("coordinator.joinThresholdMs", d.Coordinator.JoinThresholdMs)
	v.SetDefault("coordinator.collectWindowMs", d.Coordinator.CollectWindowMs)
	v.SetDefault("coordinator.completionGraceMs", d.Coordinator.CompletionGraceMs)
	v.SetDefault("coordinator.requestMaxAgeMs", d.Coordinator.RequestMaxAgeMs)
	v.SetDefault("registry.maxServers", d.Registry.MaxServers)
	v.SetDefault("registry.heartbeatStaleMinutes", d.Registry.HeartbeatStaleMinutes)
	v.SetDefault("registry.terminateGraceMs", d.Registry.TerminateGraceMs)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
}
