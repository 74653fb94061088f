// Package config loads the application configuration from environment
// variables (RATINGRISK_ prefix) merged over an optional YAML file.
// Environment values take precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"ratingrisk/internal/backtest"
	"ratingrisk/internal/hazard"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Model    ModelConfig    `yaml:"model" envconfig:"MODEL"`
	Backtest BacktestConfig `yaml:"backtest" envconfig:"BACKTEST"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Data     DataConfig     `yaml:"data" envconfig:"DATA"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains API rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// ModelConfig contains hazard model fitting configuration
type ModelConfig struct {
	// Covariates fixes the fitted covariate set; empty means every name
	// observed in the training corpus
	Covariates        []string `yaml:"covariates" envconfig:"COVARIATES"`
	Penalizer         float64  `yaml:"penalizer" envconfig:"PENALIZER" default:"0.01"`
	MinEvents         int      `yaml:"min_events" envconfig:"MIN_EVENTS" default:"5"`
	MaxIterations     int      `yaml:"max_iterations" envconfig:"MAX_ITERATIONS" default:"50"`
	IncludeEntryGrade bool     `yaml:"include_entry_grade" envconfig:"INCLUDE_ENTRY_GRADE" default:"true"`
	HorizonDays       int      `yaml:"horizon_days" envconfig:"HORIZON_DAYS" default:"90"`
	MaxConcurrency    int      `yaml:"max_concurrency" envconfig:"MAX_CONCURRENCY" default:"4"`
}

// BacktestConfig contains rolling-origin backtest configuration
type BacktestConfig struct {
	TrainDays           int     `yaml:"train_days" envconfig:"TRAIN_DAYS" default:"1095"`
	ValidationDays      int     `yaml:"validation_days" envconfig:"VALIDATION_DAYS" default:"90"`
	TestDays            int     `yaml:"test_days" envconfig:"TEST_DAYS" default:"90"`
	StepDays            int     `yaml:"step_days" envconfig:"STEP_DAYS" default:"90"`
	StressDropThreshold float64 `yaml:"stress_drop_threshold" envconfig:"STRESS_DROP_THRESHOLD" default:"0.15"`
	MaxConcurrency      int     `yaml:"max_concurrency" envconfig:"MAX_CONCURRENCY" default:"4"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// DataConfig contains state-history input configuration
type DataConfig struct {
	HistoryFile string `yaml:"history_file" envconfig:"HISTORY_FILE" default:"data/history.csv"`
	Sheet       string `yaml:"sheet" envconfig:"SHEET"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("RATINGRISK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path := configFilePath(); path != "" {
		fileCfg, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = merge(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge overlays env config on file config; env values win where set
func merge(fileCfg, envCfg Config) Config {
	if envCfg.Server.Port == 0 {
		envCfg.Server.Port = fileCfg.Server.Port
	}
	if envCfg.Model.Penalizer == 0 {
		envCfg.Model.Penalizer = fileCfg.Model.Penalizer
	}
	if envCfg.Model.MinEvents == 0 {
		envCfg.Model.MinEvents = fileCfg.Model.MinEvents
	}
	if envCfg.Model.HorizonDays == 0 {
		envCfg.Model.HorizonDays = fileCfg.Model.HorizonDays
	}
	if envCfg.Backtest.TrainDays == 0 {
		envCfg.Backtest.TrainDays = fileCfg.Backtest.TrainDays
	}
	if envCfg.Data.HistoryFile == "" {
		envCfg.Data.HistoryFile = fileCfg.Data.HistoryFile
	}
	if envCfg.Logging.Level == "" {
		envCfg.Logging.Level = fileCfg.Logging.Level
	}
	return envCfg
}

// FitConfig converts the model section to the engine's fitting configuration
func (c *Config) FitConfig() hazard.FitConfig {
	fit := hazard.DefaultFitConfig()
	fit.Covariates = c.Model.Covariates
	fit.Penalizer = c.Model.Penalizer
	fit.MinEvents = c.Model.MinEvents
	fit.MaxIterations = c.Model.MaxIterations
	fit.IncludeEntryGrade = c.Model.IncludeEntryGrade
	fit.MaxConcurrency = c.Model.MaxConcurrency
	return fit
}

// BacktestConfigFor builds a runnable backtest configuration for the folds
func (c *Config) BacktestConfigFor(folds []backtest.FoldSpec) backtest.Config {
	return backtest.Config{
		Folds:               folds,
		HorizonDays:         c.Model.HorizonDays,
		StressDropThreshold: c.Backtest.StressDropThreshold,
		Fit:                 c.FitConfig(),
		MaxConcurrency:      c.Backtest.MaxConcurrency,
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Model.Penalizer < 0 {
		return fmt.Errorf("model penalizer must be non-negative")
	}
	if c.Model.MinEvents < 1 {
		return fmt.Errorf("model min events must be at least 1")
	}
	if c.Model.HorizonDays <= 0 {
		return fmt.Errorf("model horizon must be positive")
	}
	if c.Backtest.StressDropThreshold <= 0 || c.Backtest.StressDropThreshold >= 1 {
		return fmt.Errorf("backtest stress drop threshold must be in (0,1)")
	}
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}
	switch c.Logging.Output {
	case "stdout", "file", "both":
	default:
		c.Logging.Output = "stdout"
	}
	return nil
}

// configFilePath returns the first config file found in common locations
func configFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Model: ModelConfig{
			Penalizer:         hazard.DefaultPenalizer,
			MinEvents:         hazard.DefaultMinEvents,
			MaxIterations:     hazard.DefaultMaxIterations,
			IncludeEntryGrade: true,
			HorizonDays:       90,
			MaxConcurrency:    4,
		},
		Backtest: BacktestConfig{
			TrainDays:           1095,
			ValidationDays:      90,
			TestDays:            90,
			StepDays:            90,
			StressDropThreshold: backtest.DefaultStressDropThreshold,
			MaxConcurrency:      4,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/app.log",
		},
		Data: DataConfig{
			HistoryFile: "data/history.csv",
		},
	}
}
