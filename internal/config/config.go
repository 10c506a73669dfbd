package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Tracking    TrackingConfig    `yaml:"tracking"`
	Training    TrainingConfig    `yaml:"training"`
	Calibration CalibrationConfig `yaml:"calibration"`
	FaceMesh    FaceMeshConfig    `yaml:"facemesh"`
	Capture     CaptureConfig     `yaml:"capture"`
	Database    DatabaseConfig    `yaml:"database"`
	Log         LogConfig         `yaml:"log"`
	Web         WebConfig         `yaml:"web"`
}

type TrackingConfig struct {
	OpenThreshold     float64 `yaml:"open_threshold" json:"open_threshold" validate:"gt=0"`
	MovementThreshold float64 `yaml:"movement_threshold" json:"movement_threshold" validate:"gt=0"`
}

type TrainingConfig struct {
	Repetitions     int           `yaml:"repetitions" json:"repetitions" validate:"min=1,max=100"`
	StepInterval    time.Duration `yaml:"step_interval" json:"step_interval" validate:"min=100ms"`
	MaxReachedRatio float64       `yaml:"max_reached_ratio" json:"max_reached_ratio" validate:"gt=0,lte=1"`
}

type CalibrationConfig struct {
	Dir string `yaml:"dir" validate:"required"` // directory holding per-patient calibration files
}

type FaceMeshConfig struct {
	URL          string        `yaml:"url" validate:"required,url"`
	MaxImageSize int           `yaml:"max_image_size" validate:"min=64"` // longest edge sent to the detector
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
}

type CaptureConfig struct {
	FPS       int `yaml:"fps" validate:"min=1,max=120"`
	QueueSize int `yaml:"queue_size" validate:"min=1"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`         // PostgreSQL connection URL
	SQLitePath   string `yaml:"sqlite_path"` // used when URL is empty; empty disables persistence
	MaxOpenConns int    `yaml:"max_open_conns" validate:"min=1"`
	MaxIdleConns int    `yaml:"max_idle_conns" validate:"min=0"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn warning error"`
	File  string `yaml:"file"` // optional rotating log file
}

type WebConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port" validate:"min=1,max=65535"`
	AllowedOrigins string `yaml:"allowed_origins"` // comma-separated CORS origins besides localhost
	AllowedSources string `yaml:"allowed_sources"` // comma-separated frame sources API clients may pick
}

// SourceList splits AllowedSources, dropping blanks.
func (w WebConfig) SourceList() []string {
	var out []string
	for _, s := range strings.Split(w.AllowedSources, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a positive duration such as "5s", falling back to defaultVal.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s, ok := os.LookupEnv(key); ok {
		return s
	}
	return defaultVal
}

// Defaults returns the built-in configuration without environment overrides.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

func Load() *Config {
	cfg := Defaults()

	cfg.Tracking.OpenThreshold = envFloat("OPEN_THRESHOLD", cfg.Tracking.OpenThreshold)
	cfg.Tracking.MovementThreshold = envFloat("MOVEMENT_THRESHOLD", cfg.Tracking.MovementThreshold)

	cfg.Training.Repetitions = envInt("TRAINING_REPETITIONS", cfg.Training.Repetitions)
	cfg.Training.StepInterval = envDuration("TRAINING_STEP_INTERVAL", cfg.Training.StepInterval)
	cfg.Training.MaxReachedRatio = envFloat("MAX_REACHED_RATIO", cfg.Training.MaxReachedRatio)

	cfg.Calibration.Dir = envString("CALIBRATION_DIR", cfg.Calibration.Dir)

	cfg.FaceMesh.URL = envString("FACEMESH_URL", cfg.FaceMesh.URL)
	cfg.FaceMesh.MaxImageSize = envInt("FACEMESH_MAX_IMAGE_SIZE", cfg.FaceMesh.MaxImageSize)
	cfg.FaceMesh.Timeout = envDuration("FACEMESH_TIMEOUT", cfg.FaceMesh.Timeout)

	cfg.Capture.FPS = envInt("CAPTURE_FPS", cfg.Capture.FPS)
	cfg.Capture.QueueSize = envInt("CAPTURE_QUEUE_SIZE", cfg.Capture.QueueSize)

	cfg.Database.URL = envString("DATABASE_URL", cfg.Database.URL)
	cfg.Database.SQLitePath = envString("SQLITE_PATH", cfg.Database.SQLitePath)
	cfg.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = envString("LOG_FILE", cfg.Log.File)

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.AllowedOrigins = envString("WEB_ALLOWED_ORIGINS", cfg.Web.AllowedOrigins)
	cfg.Web.AllowedSources = envString("WEB_ALLOWED_SOURCES", cfg.Web.AllowedSources)

	return cfg
}

// Validate checks the configuration for values the application cannot run with.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Tracking.MovementThreshold >= 1 || c.Tracking.OpenThreshold >= 1 {
		return fmt.Errorf("invalid configuration: thresholds are normalized and must be below 1")
	}
	return nil
}
