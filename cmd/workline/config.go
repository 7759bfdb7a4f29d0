package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all workline server configuration.
// Priority: env vars > settings.json > defaults. A .env file in the
// working directory is loaded into the environment first.
type Config struct {
	ListenAddr       string `json:"listen_addr"`
	DatabaseURL      string `json:"database_url"`
	LogLevel         string `json:"log_level"`
	PollInterval     string `json:"poll_interval"`
	BatchSize        int    `json:"batch_size"`
	PoolSize         int    `json:"pool_size"`
	MaxWorkflowSteps int    `json:"max_workflow_steps"`
	ScriptTimeout    string `json:"script_timeout"`
	WebhookTimeout   string `json:"webhook_timeout"`
	APIKey           string `json:"api_key"`
	JWTSecret        string `json:"jwt_secret"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:       ":8200",
		DatabaseURL:      "postgres://localhost/workline?sslmode=disable",
		LogLevel:         "info",
		PollInterval:     "60s",
		BatchSize:        10,
		PoolSize:         10,
		MaxWorkflowSteps: 20,
		ScriptTimeout:    "10s",
		WebhookTimeout:   "10s",
	}
}

func worklineDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".workline"
	}
	return filepath.Join(home, ".workline")
}

func settingsPath() string {
	return filepath.Join(worklineDir(), "settings.json")
}

func loadConfig() Config {
	_ = godotenv.Load()

	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("WORKLINE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("WORKLINE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("WORKLINE_POLL_INTERVAL"); v != "" {
		cfg.PollInterval = v
	}
	if v := os.Getenv("WORKLINE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("WORKLINE_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("WORKLINE_MAX_WORKFLOW_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxWorkflowSteps = n
		}
	}
	if v := os.Getenv("WORKLINE_SCRIPT_TIMEOUT"); v != "" {
		cfg.ScriptTimeout = v
	}
	if v := os.Getenv("WORKLINE_WEBHOOK_TIMEOUT"); v != "" {
		cfg.WebhookTimeout = v
	}
	if v := os.Getenv("WORKLINE_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("WORKLINE_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}

	return cfg
}

// duration parses a config duration string, falling back when invalid.
func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
