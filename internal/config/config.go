package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the client needs. Values are layered:
// defaults, then the optional YAML file, then environment variables.
type Config struct {
	ProjectURL         string
	APIKey             string
	StorageBucket      string
	UserID             string
	HTTPTimeoutSeconds int

	DBPath string
	Port   int

	LogLevel  string
	LogFormat string

	ConvertIntervalSeconds  int
	ConvertMaxAttempts      int
	ConvertRetrySeconds     int
	AnalysisIntervalSeconds int

	MaxVideoSeconds int
	Transcribe      bool
}

type configFile struct {
	Backend struct {
		ProjectURL         string `yaml:"project_url"`
		APIKey             string `yaml:"api_key"`
		StorageBucket      string `yaml:"storage_bucket"`
		UserID             string `yaml:"user_id"`
		HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds"`
	} `yaml:"backend"`
	Local struct {
		DBPath string `yaml:"db_path"`
		Port   int    `yaml:"port"`
	} `yaml:"local"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Polling struct {
		ConvertIntervalSeconds  int `yaml:"convert_interval_seconds"`
		ConvertMaxAttempts      int `yaml:"convert_max_attempts"`
		ConvertRetrySeconds     int `yaml:"convert_retry_seconds"`
		AnalysisIntervalSeconds int `yaml:"analysis_interval_seconds"`
	} `yaml:"polling"`
	Limits struct {
		MaxVideoSeconds int `yaml:"max_video_seconds"`
	} `yaml:"limits"`
	Pipeline struct {
		Transcribe *bool `yaml:"transcribe"`
	} `yaml:"pipeline"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StorageBucket:           "videos",
		HTTPTimeoutSeconds:      30,
		DBPath:                  "./socialgravity.db",
		Port:                    8080,
		LogLevel:                "info",
		LogFormat:               "text",
		ConvertIntervalSeconds:  5,
		ConvertMaxAttempts:      60,
		ConvertRetrySeconds:     2,
		AnalysisIntervalSeconds: 3,
		MaxVideoSeconds:         180,
		Transcribe:              true,
	}
}

// Load builds the configuration. A missing file at path is not an error;
// a file that exists but does not parse is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			var f configFile
			if err := yaml.Unmarshal(raw, &f); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
			cfg.applyFile(f)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(f configFile) {
	if f.Backend.ProjectURL != "" {
		c.ProjectURL = f.Backend.ProjectURL
	}
	if f.Backend.APIKey != "" {
		c.APIKey = f.Backend.APIKey
	}
	if f.Backend.StorageBucket != "" {
		c.StorageBucket = f.Backend.StorageBucket
	}
	if f.Backend.UserID != "" {
		c.UserID = f.Backend.UserID
	}
	if f.Backend.HTTPTimeoutSeconds > 0 {
		c.HTTPTimeoutSeconds = f.Backend.HTTPTimeoutSeconds
	}
	if f.Local.DBPath != "" {
		c.DBPath = f.Local.DBPath
	}
	if f.Local.Port > 0 {
		c.Port = f.Local.Port
	}
	if f.Log.Level != "" {
		c.LogLevel = f.Log.Level
	}
	if f.Log.Format != "" {
		c.LogFormat = f.Log.Format
	}
	if f.Polling.ConvertIntervalSeconds > 0 {
		c.ConvertIntervalSeconds = f.Polling.ConvertIntervalSeconds
	}
	if f.Polling.ConvertMaxAttempts > 0 {
		c.ConvertMaxAttempts = f.Polling.ConvertMaxAttempts
	}
	if f.Polling.ConvertRetrySeconds > 0 {
		c.ConvertRetrySeconds = f.Polling.ConvertRetrySeconds
	}
	if f.Polling.AnalysisIntervalSeconds > 0 {
		c.AnalysisIntervalSeconds = f.Polling.AnalysisIntervalSeconds
	}
	if f.Limits.MaxVideoSeconds > 0 {
		c.MaxVideoSeconds = f.Limits.MaxVideoSeconds
	}
	if f.Pipeline.Transcribe != nil {
		c.Transcribe = *f.Pipeline.Transcribe
	}
}

func (c *Config) applyEnv() {
	c.ProjectURL = envOrDefault("SG_PROJECT_URL", c.ProjectURL)
	c.APIKey = envOrDefault("SG_API_KEY", c.APIKey)
	c.StorageBucket = envOrDefault("SG_STORAGE_BUCKET", c.StorageBucket)
	c.UserID = envOrDefault("SG_USER_ID", c.UserID)
	c.HTTPTimeoutSeconds = envInt("SG_HTTP_TIMEOUT_SECONDS", c.HTTPTimeoutSeconds)
	c.DBPath = envOrDefault("SG_DB_PATH", c.DBPath)
	c.Port = envInt("SG_PORT", c.Port)
	c.LogLevel = envOrDefault("SG_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOrDefault("SG_LOG_FORMAT", c.LogFormat)
	c.ConvertIntervalSeconds = envInt("SG_CONVERT_INTERVAL_SECONDS", c.ConvertIntervalSeconds)
	c.ConvertMaxAttempts = envInt("SG_CONVERT_MAX_ATTEMPTS", c.ConvertMaxAttempts)
	c.ConvertRetrySeconds = envInt("SG_CONVERT_RETRY_SECONDS", c.ConvertRetrySeconds)
	c.AnalysisIntervalSeconds = envInt("SG_ANALYSIS_INTERVAL_SECONDS", c.AnalysisIntervalSeconds)
	c.MaxVideoSeconds = envInt("SG_MAX_VIDEO_SECONDS", c.MaxVideoSeconds)
	c.Transcribe = envBool("SG_TRANSCRIBE", c.Transcribe)
}

// RequireBackend reports the first missing setting needed to talk to the backend.
func (c Config) RequireBackend() error {
	if strings.TrimSpace(c.ProjectURL) == "" {
		return errors.New("project URL is required (set SG_PROJECT_URL or backend.project_url)")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("API key is required (set SG_API_KEY or backend.api_key)")
	}
	return nil
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c Config) ConvertInterval() time.Duration {
	return time.Duration(c.ConvertIntervalSeconds) * time.Second
}

func (c Config) ConvertRetry() time.Duration {
	return time.Duration(c.ConvertRetrySeconds) * time.Second
}

func (c Config) AnalysisInterval() time.Duration {
	return time.Duration(c.AnalysisIntervalSeconds) * time.Second
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
