package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultReposPerJob        = 50
	MaxReposPerJob            = 100
	DefaultPollInterval       = 30 * time.Second
	DefaultDownloadMaxRetries = 3
	DefaultDownloadBackoff    = time.Second
)

// Config holds the application configuration
type Config struct {
	// GitHub
	GitHubToken  string
	GitHubAPIURL string

	// Backup
	Organization       string
	Repository         string
	ReposPerJob        int
	OutputDir          string
	PollInterval       time.Duration
	MaxPollAttempts    int
	DownloadMaxRetries int
	DownloadBackoff    time.Duration

	// Storage
	StorageType string // "none", "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads the configuration from environment variables.
// Explicit env files must exist; without any, a .env file is loaded if present.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, &ConfigError{Field: "config", Message: err.Error()}
		}
	} else {
		// Load .env file if it exists (ignore error if not found)
		_ = godotenv.Load()
	}

	reposPerJob, err := getEnvInt("REPOS_PER_JOB", DefaultReposPerJob)
	if err != nil {
		return nil, err
	}
	maxPollAttempts, err := getEnvInt("MAX_POLL_ATTEMPTS", 0)
	if err != nil {
		return nil, err
	}
	maxRetries, err := getEnvInt("DOWNLOAD_MAX_RETRIES", DefaultDownloadMaxRetries)
	if err != nil {
		return nil, err
	}
	pollInterval, err := getEnvDuration("POLL_INTERVAL", DefaultPollInterval)
	if err != nil {
		return nil, err
	}
	backoff, err := getEnvDuration("DOWNLOAD_BACKOFF", DefaultDownloadBackoff)
	if err != nil {
		return nil, err
	}

	return &Config{
		GitHubToken:        getEnv("GITHUB_TOKEN", ""),
		GitHubAPIURL:       getEnv("GITHUB_API_URL", ""),
		Organization:       getEnv("BACKUP_ORGANIZATION", ""),
		Repository:         getEnv("BACKUP_REPOSITORY", ""),
		ReposPerJob:        reposPerJob,
		OutputDir:          getEnv("BACKUP_OUTPUT_DIR", "."),
		PollInterval:       pollInterval,
		MaxPollAttempts:    maxPollAttempts,
		DownloadMaxRetries: maxRetries,
		DownloadBackoff:    backoff,
		StorageType:        getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:         getEnv("SQLITE_PATH", "./backups.db"),
		PostgresURL:        getEnv("POSTGRES_URL", ""),
		APIPort:            getEnv("API_PORT", "8080"),
		APIHost:            getEnv("API_HOST", "localhost"),
		APIEndpoint:        getEnv("API_ENDPOINT", "http://localhost:8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
	}, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: fmt.Sprintf("must be an integer, got %q", value)}
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: fmt.Sprintf("must be a duration, got %q", value)}
	}
	return d, nil
}

// Validate validates the storage and API settings shared by every command
func (c *Config) Validate() error {
	switch c.StorageType {
	case "none", "sqlite", "postgres":
	default:
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'none', 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	return nil
}

// ValidateBackup validates the settings needed to run a backup
func (c *Config) ValidateBackup() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.GitHubToken == "" {
		return &ConfigError{Field: "GITHUB_TOKEN", Message: "GitHub token is required"}
	}
	if c.Organization == "" {
		return &ConfigError{Field: "BACKUP_ORGANIZATION", Message: "organization is required"}
	}
	if c.ReposPerJob < 1 || c.ReposPerJob > MaxReposPerJob {
		return &ConfigError{Field: "REPOS_PER_JOB", Message: fmt.Sprintf("must be between 1 and %d", MaxReposPerJob)}
	}
	if c.PollInterval <= 0 {
		return &ConfigError{Field: "POLL_INTERVAL", Message: "must be positive"}
	}
	if c.MaxPollAttempts < 0 {
		return &ConfigError{Field: "MAX_POLL_ATTEMPTS", Message: "must not be negative"}
	}
	if c.DownloadMaxRetries < 0 {
		return &ConfigError{Field: "DOWNLOAD_MAX_RETRIES", Message: "must not be negative"}
	}
	if c.OutputDir == "" {
		return &ConfigError{Field: "BACKUP_OUTPUT_DIR", Message: "output directory is required"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
