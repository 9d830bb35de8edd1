// Package config provides configuration loading and validation for prdiff.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidToolConcurrency = errors.New("tool concurrency must not be negative")
	ErrInvalidToolTimeout     = errors.New("tool timeout must be positive")
	ErrInvalidCloneTimeout    = errors.New("clone timeout must be positive")
	ErrInvalidLocalCapacity   = errors.New("cache local capacity must be positive")
	ErrInvalidMatchThreshold  = errors.New("match confidence threshold must be in [0, 100]")
)

// Default configuration values.
const (
	defaultToolTimeout        = 60 * time.Second
	defaultMaxToolTimeout     = 5 * time.Minute
	defaultCloneTimeout       = 5 * time.Minute
	defaultPRRefFetchTimeout  = time.Minute
	defaultCacheReadTimeout   = time.Second
	defaultShallowDepth       = 1
	defaultLocalCapacity      = 100
	defaultCompressionBytes   = 10 * 1024
	defaultMatchThreshold     = 60
	defaultMaxFileSizeBytes   = 1 << 20
)

// Config holds all configuration for prdiff.
type Config struct {
	Cache      CacheConfig      `mapstructure:"cache"`
	Repository RepositoryConfig `mapstructure:"repository"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CacheConfig holds the two-tier cache's construction parameters (spec §6
// "environment configuration ... inputs to the orchestrator's construction,
// not read ad hoc at deeper layers").
type CacheConfig struct {
	// Backend selects the distributed tier implementation: "bbolt" or
	// "memory" (an inert stand-in, used when no distributed tier is
	// configured or in tests).
	Backend               string            `mapstructure:"backend"`
	BoltPath              string            `mapstructure:"bolt_path"`
	LocalCapacity         int               `mapstructure:"local_capacity"`
	CompressionThreshold  int               `mapstructure:"compression_threshold_bytes"`
	TTLOverrides          map[string]string `mapstructure:"ttl_overrides"`
}

// RepositoryConfig holds Repository Manager construction parameters.
type RepositoryConfig struct {
	BaseDir           string        `mapstructure:"base_dir"`
	CloneTimeout      time.Duration `mapstructure:"clone_timeout"`
	PRRefFetchTimeout time.Duration `mapstructure:"pr_ref_fetch_timeout"`
	ShallowDepth      int           `mapstructure:"shallow_depth"`
	AllowedProtocols  []string      `mapstructure:"allowed_protocols"`
}

// AnalysisConfig holds File Indexer / Branch Analyzer / Comparator
// construction parameters.
type AnalysisConfig struct {
	MaxFileSizeBytes         int64         `mapstructure:"max_file_size_bytes"`
	ToolTimeout              time.Duration `mapstructure:"tool_timeout"`
	MaxToolTimeout           time.Duration `mapstructure:"max_tool_timeout"`
	ToolConcurrency          int           `mapstructure:"tool_concurrency"`
	CacheReadTimeout         time.Duration `mapstructure:"cache_read_timeout"`
	MatchConfidenceThreshold int           `mapstructure:"match_confidence_threshold"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("config")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/prdiff")
	}

	viperCfg.SetEnvPrefix("PRDIFF")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	if validateErr := validateConfig(&config); validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("cache.backend", "memory")
	viperCfg.SetDefault("cache.bolt_path", "/tmp/prdiff-cache.db")
	viperCfg.SetDefault("cache.local_capacity", defaultLocalCapacity)
	viperCfg.SetDefault("cache.compression_threshold_bytes", defaultCompressionBytes)

	viperCfg.SetDefault("repository.base_dir", "/tmp/prdiff-worktrees")
	viperCfg.SetDefault("repository.clone_timeout", defaultCloneTimeout)
	viperCfg.SetDefault("repository.pr_ref_fetch_timeout", defaultPRRefFetchTimeout)
	viperCfg.SetDefault("repository.shallow_depth", defaultShallowDepth)
	viperCfg.SetDefault("repository.allowed_protocols", []string{"https", "http", "ssh", "git"})

	viperCfg.SetDefault("analysis.max_file_size_bytes", defaultMaxFileSizeBytes)
	viperCfg.SetDefault("analysis.tool_timeout", defaultToolTimeout)
	viperCfg.SetDefault("analysis.max_tool_timeout", defaultMaxToolTimeout)
	viperCfg.SetDefault("analysis.tool_concurrency", 0) // 0 means runtime.NumCPU()
	viperCfg.SetDefault("analysis.cache_read_timeout", defaultCacheReadTimeout)
	viperCfg.SetDefault("analysis.match_confidence_threshold", defaultMatchThreshold)

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "json")
	viperCfg.SetDefault("logging.output", "stdout")
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Analysis.ToolConcurrency < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidToolConcurrency, config.Analysis.ToolConcurrency)
	}

	if config.Analysis.ToolTimeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidToolTimeout, config.Analysis.ToolTimeout)
	}

	if config.Repository.CloneTimeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCloneTimeout, config.Repository.CloneTimeout)
	}

	if config.Cache.LocalCapacity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLocalCapacity, config.Cache.LocalCapacity)
	}

	if config.Analysis.MatchConfidenceThreshold < 0 || config.Analysis.MatchConfidenceThreshold > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidMatchThreshold, config.Analysis.MatchConfidenceThreshold)
	}

	return nil
}
