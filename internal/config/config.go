// Package config holds all gdcore configuration. Defaults are compile-time
// constants; a yaml file and a handful of environment variables can override
// them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object.
type Config struct {
	Document   DocumentConfig   `yaml:"document"`
	Safety     SafetyConfig     `yaml:"safety"`
	Validation ValidationConfig `yaml:"validation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DocumentConfig configures the document store.
type DocumentConfig struct {
	// LoadWorkers bounds the parallel XML loader pool.
	LoadWorkers int `yaml:"load_workers"`

	// FileTimeout caps parsing time for a single file.
	FileTimeout time.Duration `yaml:"file_timeout"`
}

// SafetyConfig configures the file safety manager.
type SafetyConfig struct {
	// BackupDir is the root directory for versioned backups.
	BackupDir string `yaml:"backup_dir"`

	// BackupRetention caps backups kept per file; oldest are pruned.
	BackupRetention int `yaml:"backup_retention"`

	// AuditLogPath is the append-only audit trail file.
	AuditLogPath string `yaml:"audit_log_path"`

	// MaxFileSize is the integrity-check upper sanity bound in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`
}

// ValidationConfig configures the rule engine.
type ValidationConfig struct {
	// RuleWorkers bounds the parallel rule execution pool.
	RuleWorkers int `yaml:"rule_workers"`

	// RuleTimeout caps a single rule's execution time.
	RuleTimeout time.Duration `yaml:"rule_timeout"`

	// ExpTolerance is the allowed relative deviation from expected
	// experience values (0.10 = 10%).
	ExpTolerance float64 `yaml:"exp_tolerance"`

	// BalanceHighRatio / BalanceLowRatio bound the stat-balance check:
	// values above mean*high or below mean*low are flagged.
	BalanceHighRatio float64 `yaml:"balance_high_ratio"`
	BalanceLowRatio  float64 `yaml:"balance_low_ratio"`
}

// LoggingConfig configures the shared logger.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Document: DocumentConfig{
			LoadWorkers: 8,
			FileTimeout: 30 * time.Second,
		},
		Safety: SafetyConfig{
			BackupDir:       "backup",
			BackupRetention: 10,
			AuditLogPath:    "audit.log",
			MaxFileSize:     100 * 1024 * 1024,
		},
		Validation: ValidationConfig{
			RuleWorkers:      8,
			RuleTimeout:      60 * time.Second,
			ExpTolerance:     0.10,
			BalanceHighRatio: 1.5,
			BalanceLowRatio:  0.5,
		},
		Logging: LoggingConfig{Debug: false},
	}
}

// Load reads a config file, layering it over the defaults and then applying
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config as yaml.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides layers GDCORE_* environment variables on top of the
// loaded values. Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GDCORE_BACKUP_DIR"); v != "" {
		c.Safety.BackupDir = v
	}
	if v := os.Getenv("GDCORE_BACKUP_RETENTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Safety.BackupRetention = n
		}
	}
	if v := os.Getenv("GDCORE_AUDIT_LOG"); v != "" {
		c.Safety.AuditLogPath = v
	}
	if v := os.Getenv("GDCORE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.Debug = b
		}
	}
}
