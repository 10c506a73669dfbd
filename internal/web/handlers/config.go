package handlers

import (
	"net/http"

	"github.com/kozaktomas/mouthtrack/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config  *config.Config
	backend string
}

// NewConfigHandler creates a new config handler. backend names the session
// database in use ("postgres", "sqlite" or "" when persistence is off).
func NewConfigHandler(cfg *config.Config, backend string) *ConfigHandler {
	return &ConfigHandler{
		config:  cfg,
		backend: backend,
	}
}

// ConfigResponse represents the effective configuration exposed to clients
type ConfigResponse struct {
	Tracking config.TrackingConfig `json:"tracking"`
	Training TrainingResponse      `json:"training"`
	FPS      int                   `json:"fps"`
	Database string                `json:"database,omitempty"`
}

// TrainingResponse is the training configuration with the interval in seconds
type TrainingResponse struct {
	Repetitions         int     `json:"repetitions"`
	StepIntervalSeconds float64 `json:"step_interval_seconds"`
	MaxReachedRatio     float64 `json:"max_reached_ratio"`
}

// Get returns the effective thresholds and training settings
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ConfigResponse{
		Tracking: h.config.Tracking,
		Training: TrainingResponse{
			Repetitions:         h.config.Training.Repetitions,
			StepIntervalSeconds: h.config.Training.StepInterval.Seconds(),
			MaxReachedRatio:     h.config.Training.MaxReachedRatio,
		},
		FPS:      h.config.Capture.FPS,
		Database: h.backend,
	})
}
