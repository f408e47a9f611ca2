// Package config loads the service configuration from a YAML file with
// environment variable fallbacks.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// HTTP
	Port int `yaml:"port"`
	// MetricsPort serves the operational endpoints separately when set;
	// 0 keeps them on the main port.
	MetricsPort int `yaml:"metrics_port"`

	// GCP Configuration
	GCPProject  string `yaml:"gcp_project"`
	GCPLocation string `yaml:"gcp_location"`

	Session   SessionConfig   `yaml:"session"`
	LLM       LLMConfig       `yaml:"llm"`
	Queue     QueueConfig     `yaml:"queue"`
	Archive   ArchiveConfig   `yaml:"archive"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Callback  CallbackConfig  `yaml:"callback"`
}

// SessionConfig selects and tunes the session store.
type SessionConfig struct {
	// Backend is one of "firestore", "redis", "memory".
	Backend    string `yaml:"backend"`
	TTLMinutes int    `yaml:"ttl_minutes"`
	// SweepIntervalMinutes controls the expired-session sweep; 0
	// disables it.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`

	// Firestore
	Collection string `yaml:"collection"`

	// Redis
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
}

// LLMConfig selects and tunes the model provider.
type LLMConfig struct {
	// Provider is one of "gemini", "openai".
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`

	// Per-operation model overrides; empty uses the provider defaults.
	QuestionModel string `yaml:"question_model"`
	AnalysisModel string `yaml:"analysis_model"`
	WaitModel     string `yaml:"wait_model"`
	VisionModel   string `yaml:"vision_model"`
}

// QueueConfig selects the deferred-analysis transport.
type QueueConfig struct {
	// Backend is one of "cloudtasks", "inprocess".
	Backend string `yaml:"backend"`
	Name    string `yaml:"name"`
	// ServiceURL is this service's public base URL, used as the Cloud
	// Tasks target.
	ServiceURL string `yaml:"service_url"`
}

// ArchiveConfig selects the consultation warehouse.
type ArchiveConfig struct {
	// Backend is one of "bigquery", "none".
	Backend string `yaml:"backend"`
	Dataset string `yaml:"dataset"`
	Table   string `yaml:"table"`
}

// RateLimitConfig tunes the webhook rate limiter.
type RateLimitConfig struct {
	Enabled     bool    `yaml:"enabled"`
	GlobalRPS   float64 `yaml:"global_rps"`
	GlobalBurst int     `yaml:"global_burst"`
	UserRPS     float64 `yaml:"user_rps"`
	UserBurst   int     `yaml:"user_burst"`
}

// CallbackConfig tunes outbound callback delivery.
type CallbackConfig struct {
	// AllowedHosts restricts callback targets when non-empty.
	AllowedHosts []string `yaml:"allowed_hosts"`
	// AllowLocalhost permits loopback callback targets, for local runs.
	AllowLocalhost bool `yaml:"allow_localhost"`
}

// LoadConfig loads configuration from a YAML file. An empty path loads
// defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" && c.Port == 0 {
		if n, err := strconv.Atoi(port); err == nil {
			c.Port = n
		}
	}
	if c.GCPProject == "" {
		c.GCPProject = os.Getenv("GCP_PROJECT")
	}
	if c.GCPLocation == "" {
		c.GCPLocation = os.Getenv("GCP_LOCATION")
	}
	if c.Session.RedisAddr == "" {
		c.Session.RedisAddr = os.Getenv("REDIS_ADDR")
	}
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if c.Queue.Name == "" {
		c.Queue.Name = os.Getenv("TASK_QUEUE")
	}
	if c.Queue.ServiceURL == "" {
		c.Queue.ServiceURL = os.Getenv("SERVICE_URL")
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.GCPLocation == "" {
		c.GCPLocation = "asia-northeast3"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.TTLMinutes == 0 {
		c.Session.TTLMinutes = 10
	}
	if c.Session.Collection == "" {
		c.Session.Collection = "sessions"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = "inprocess"
	}
	if c.Archive.Backend == "" {
		c.Archive.Backend = "none"
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.GlobalRPS == 0 {
			c.RateLimit.GlobalRPS = 50
		}
		if c.RateLimit.GlobalBurst == 0 {
			c.RateLimit.GlobalBurst = 100
		}
		if c.RateLimit.UserRPS == 0 {
			c.RateLimit.UserRPS = 2
		}
		if c.RateLimit.UserBurst == 0 {
			c.RateLimit.UserBurst = 5
		}
	}
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("session.redis_addr is required for the redis backend")
		}
	case "firestore":
		if c.GCPProject == "" {
			return fmt.Errorf("gcp_project is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown session backend: %s", c.Session.Backend)
	}

	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}

	switch c.Queue.Backend {
	case "inprocess":
	case "cloudtasks":
		if c.GCPProject == "" || c.Queue.Name == "" || c.Queue.ServiceURL == "" {
			return fmt.Errorf("gcp_project, queue.name, and queue.service_url are required for cloud tasks")
		}
	default:
		return fmt.Errorf("unknown queue backend: %s", c.Queue.Backend)
	}

	switch c.Archive.Backend {
	case "none":
	case "bigquery":
		if c.GCPProject == "" || c.Archive.Dataset == "" || c.Archive.Table == "" {
			return fmt.Errorf("gcp_project, archive.dataset, and archive.table are required for bigquery")
		}
	default:
		return fmt.Errorf("unknown archive backend: %s", c.Archive.Backend)
	}

	return nil
}
