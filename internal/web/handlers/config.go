package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-recall/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response. Secrets are never included.
type ConfigResponse struct {
	Pipeline        config.PipelineConfig `json:"pipeline"`
	DatabaseBackend string                `json:"database_backend"`
	ImagesBackend   string                `json:"images_backend"`
	Providers       []ProviderInfo        `json:"providers"`
}

// ProviderInfo represents information about a summarizer provider
type ProviderInfo struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	Available bool   `json:"available"`
	Selected  bool   `json:"selected"`
}

// Get returns the non-secret configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc := h.config.Summarizer
	selected := sc.Provider
	if selected == "" || selected == "groq" {
		selected = "openai"
	}

	providers := []ProviderInfo{
		{
			Name:      "openai",
			Model:     sc.Model,
			Available: sc.APIKey != "",
			Selected:  selected == "openai",
		},
		{
			Name:      "gemini",
			Model:     sc.GeminiModel,
			Available: sc.GeminiAPIKey != "",
			Selected:  selected == "gemini",
		},
	}

	respondJSON(w, http.StatusOK, ConfigResponse{
		Pipeline:        h.config.Pipeline,
		DatabaseBackend: h.config.Database.Backend,
		ImagesBackend:   h.config.Images.Backend,
		Providers:       providers,
	})
}
