package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/leafcheck/internal/predictclient"
)

// Predictor modes.
const (
	ModeRemote    = "remote"
	ModeSimulated = "simulated"
)

// Config holds the settings of the web server.
type Config struct {
	HTTPAddr       string
	PredictURL     string
	PredictorMode  string
	SessionSecret  string
	SessionIdleTTL time.Duration
	PreviewTTL     time.Duration
	RedisAddr      string
	UploadMaxBytes int64
}

// Load reads a .env file when present and then the process environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() *Config {
	return &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		PredictURL:     getEnv("PREDICT_URL", predictclient.DefaultURL),
		PredictorMode:  getEnv("PREDICTOR_MODE", ModeRemote),
		SessionSecret:  getEnv("SESSION_SECRET", "dev-secret"),
		SessionIdleTTL: getEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute),
		PreviewTTL:     getEnvAsDuration("PREVIEW_TTL", 30*time.Minute),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		UploadMaxBytes: getEnvAsInt64("UPLOAD_MAX_BYTES", 32<<20),
	}
}

// Validate reports settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.PredictorMode != ModeRemote && c.PredictorMode != ModeSimulated {
		errs = append(errs, fmt.Errorf("PREDICTOR_MODE must be %q or %q, got %q", ModeRemote, ModeSimulated, c.PredictorMode))
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		errs = append(errs, errors.New("SESSION_SECRET must not be empty"))
	}
	if c.SessionIdleTTL <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TTL must be positive"))
	}
	if c.PreviewTTL <= 0 {
		errs = append(errs, errors.New("PREVIEW_TTL must be positive"))
	}
	if c.UploadMaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return fallback
}
