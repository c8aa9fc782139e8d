// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/qlbm/internal/utils"
)

// Backend kinds.
const (
	BackendSimulator = "simulator"
	BackendRuntime   = "runtime"
)

// Calibration store kinds.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreS3     = "s3"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the calibration database and file store (always absolute)
	OutputDir string
	LogLevel  string
	LogPretty bool

	Backend      string
	BackendName  string // Device name on the runtime, or the simulator's name
	RuntimeURL   string
	RuntimeToken string
	Target       string // Label suffix for results
	PollInterval time.Duration

	SimGateError    float64
	SimReadoutError float64
	SimSeed         int64

	CalibrationStore string
	CalibrationShots int
	RedisURL         string
	S3               S3Config

	ScaleFactors      []float64
	MitigationProfile string // Optional YAML mitigation profile
	MetricsFile       string // Prometheus textfile written after each run

	ResultsBucket   string // Archive results to this bucket when set (uses the S3 credentials)
	ResultsPrefix   string
	RefreshSchedule string // Cron schedule for `calibration refresh --watch`
}

// S3Config locates the calibration bucket.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("QLBM_DATA_DIR", "data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	scales, err := parseFloats(getEnv("QLBM_SCALE_FACTORS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid QLBM_SCALE_FACTORS: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		OutputDir: getEnv("QLBM_OUTPUT_DIR", filepath.Join(absDataDir, "results")),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),

		Backend:      getEnv("QLBM_BACKEND", BackendSimulator),
		BackendName:  getEnv("QLBM_BACKEND_NAME", ""),
		RuntimeURL:   getEnv("QLBM_RUNTIME_URL", ""),
		RuntimeToken: getEnv("QLBM_RUNTIME_TOKEN", ""),
		Target:       getEnv("QLBM_TARGET", ""),
		PollInterval: time.Duration(getEnvAsInt("QLBM_POLL_INTERVAL_MS", 900)) * time.Millisecond,

		SimGateError:    getEnvAsFloat("QLBM_SIM_GATE_ERROR", 0.01),
		SimReadoutError: getEnvAsFloat("QLBM_SIM_READOUT_ERROR", 0.02),
		SimSeed:         int64(getEnvAsInt("QLBM_SIM_SEED", 1)),

		CalibrationStore: getEnv("QLBM_CALIBRATION_STORE", StoreSQLite),
		CalibrationShots: getEnvAsInt("QLBM_CALIBRATION_SHOTS", 512),
		RedisURL:         getEnv("QLBM_REDIS_URL", ""),
		S3: S3Config{
			Bucket:    getEnv("QLBM_S3_BUCKET", ""),
			Prefix:    getEnv("QLBM_S3_PREFIX", "calibration"),
			Region:    getEnv("QLBM_S3_REGION", "us-east-1"),
			Endpoint:  getEnv("QLBM_S3_ENDPOINT", ""),
			AccessKey: getEnv("QLBM_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("QLBM_S3_SECRET_KEY", ""),
		},

		ScaleFactors:      scales,
		MitigationProfile: getEnv("QLBM_MITIGATION_PROFILE", ""),
		MetricsFile:       getEnv("QLBM_METRICS_FILE", ""),

		ResultsBucket:   getEnv("QLBM_RESULTS_BUCKET", ""),
		ResultsPrefix:   getEnv("QLBM_RESULTS_PREFIX", "results"),
		RefreshSchedule: getEnv("QLBM_REFRESH_SCHEDULE", "@daily"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backend and store have what they need
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSimulator:
	case BackendRuntime:
		if c.RuntimeURL == "" {
			return fmt.Errorf("QLBM_RUNTIME_URL is required for the runtime backend")
		}
		if c.BackendName == "" {
			return fmt.Errorf("QLBM_BACKEND_NAME is required for the runtime backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	switch c.CalibrationStore {
	case StoreSQLite, StoreFile:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("QLBM_REDIS_URL is required for the redis calibration store")
		}
	case StoreS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("QLBM_S3_BUCKET is required for the s3 calibration store")
		}
	default:
		return fmt.Errorf("unknown calibration store %q", c.CalibrationStore)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.SimGateError < 0 || c.SimGateError >= 1 {
		return fmt.Errorf("simulator gate error %g outside [0, 1)", c.SimGateError)
	}
	if c.SimReadoutError < 0 || c.SimReadoutError >= 0.5 {
		return fmt.Errorf("simulator readout error %g outside [0, 0.5)", c.SimReadoutError)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// parseFloats parses a comma-separated list. Empty input yields nil.
func parseFloats(s string) ([]float64, error) {
	parts := utils.ParseCSV(s)
	if parts == nil {
		return nil, nil
	}
	out := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
