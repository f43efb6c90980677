package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	ServiceAPIKey string

	// Storage
	DatabasePath string
	UploadDir    string
	ConvertDir   string

	// PDF conversion (MinerU-compatible service)
	MinerUAPIKey         string
	MinerUBaseURL        string
	ConvertTimeout       time.Duration
	ConvertLocalFallback bool

	// Book info extraction (DeepSeek-compatible chat completions)
	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	DeepSeekModel   string
	TextGenTimeout  time.Duration

	// Job runner
	WorkerCount  int
	PollInterval time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration

	// Upload limits
	MaxUploadBytes int64
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		ServiceAPIKey: os.Getenv("READLEAF_API_KEY"),

		DatabasePath: envOr("DATABASE_PATH", "storage/readleaf.db"),
		UploadDir:    envOr("UPLOAD_DIR", "storage/uploads"),
		ConvertDir:   envOr("CONVERT_OUTPUT_DIR", "storage/pdf-output"),

		MinerUAPIKey:         os.Getenv("MINERU_API_KEY"),
		MinerUBaseURL:        envOr("MINERU_BASE_URL", "https://mineru.net"),
		ConvertTimeout:       envDuration("CONVERT_TIMEOUT", 10*time.Minute),
		ConvertLocalFallback: envBool("CONVERT_LOCAL_FALLBACK", false),

		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		DeepSeekBaseURL: envOr("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1"),
		DeepSeekModel:   envOr("DEEPSEEK_MODEL", "deepseek-chat"),
		TextGenTimeout:  envDuration("TEXTGEN_TIMEOUT", 2*time.Minute),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		PollInterval: envDuration("POLL_INTERVAL", time.Second),
		MaxAttempts:  envInt("MAX_JOB_ATTEMPTS", 3),
		RetryBackoff: envDuration("RETRY_BACKOFF", 5*time.Second),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 104857600), // 100MB
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 104857600
	}

	return cfg
}

// Validate checks the settings the server cannot run without. The external
// conversion and text-generation keys are deliberately not required here:
// a missing converter credential fails each job cheaply instead of keeping
// the whole service from starting.
func (c Config) Validate() error {
	if c.ServiceAPIKey == "" {
		return fmt.Errorf("READLEAF_API_KEY is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH must not be empty")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
