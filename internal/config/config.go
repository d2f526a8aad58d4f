// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	DBURL           string        `mapstructure:"DB_URL"`
	GithubToken     string        `mapstructure:"GITHUB_TOKEN"`
	ReposToSync     []string      `mapstructure:"REPOS_TO_SYNC"`
	SyncInterval    time.Duration `mapstructure:"SYNC_INTERVAL"`
	FullSync        bool          `mapstructure:"FULL_SYNC"`
	PageSize        int           `mapstructure:"PAGE_SIZE"`
	RequestInterval time.Duration `mapstructure:"REQUEST_INTERVAL"`
	MaxRetries      int           `mapstructure:"MAX_RETRIES"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("SYNC_INTERVAL", "1h")
	viper.SetDefault("FULL_SYNC", false)
	viper.SetDefault("PAGE_SIZE", 100)
	viper.SetDefault("REQUEST_INTERVAL", "100ms")
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("HTTP_ADDR", ":8080")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.GithubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is a required configuration field")
	}
	if len(cfg.ReposToSync) == 0 {
		return nil, errors.New("REPOS_TO_SYNC must contain at least one repository")
	}
	if cfg.PageSize < 1 || cfg.PageSize > 100 {
		return nil, errors.New("PAGE_SIZE must be between 1 and 100 (the GitHub API cap)")
	}
	if cfg.MaxRetries < 1 {
		return nil, errors.New("MAX_RETRIES must be at least 1")
	}

	return &cfg, nil
}
