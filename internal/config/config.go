package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Target    TargetConfig    `mapstructure:"target"`
	Input     InputConfig     `mapstructure:"input"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

type TargetConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

type InputConfig struct {
	File string `mapstructure:"file"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func (c *TargetConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	viper.AutomaticEnv()

	// The defaults are a complete configuration; a config file only
	// overrides them.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("target.base_url", "http://localhost")
	viper.SetDefault("target.username", "admin")
	viper.SetDefault("target.password", "pass")
	viper.SetDefault("target.timeout_seconds", 30)
	viper.SetDefault("target.insecure_skip_verify", true)
	viper.SetDefault("input.file", "patients.jsonl")
	viper.SetDefault("rate_limit.enabled", false)
	viper.SetDefault("rate_limit.requests_per_second", 5.0)
	viper.SetDefault("rate_limit.burst", 1)
	viper.SetDefault("log.level", "info")
}

func (c *Config) validate() error {
	if c.Target.BaseURL == "" {
		return fmt.Errorf("target.base_url is required")
	}
	if c.Target.Username == "" || c.Target.Password == "" {
		return fmt.Errorf("target.username and target.password are required")
	}
	if c.Input.File == "" {
		return fmt.Errorf("input.file is required")
	}
	if c.Target.TimeoutSeconds <= 0 {
		return fmt.Errorf("target.timeout_seconds must be positive")
	}
	return nil
}
