package nextline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	defaults "github.com/Paranoid-AF/nextline/default"
)

// Config represents the user's nextline configuration.
type Config struct {
	Version    int              `json:"version"`
	Suggestion SuggestionConfig `json:"suggestion"`
	Generation GenerationConfig `json:"generation"`
	Privacy    PrivacyConfig    `json:"privacy"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
}

// SuggestionConfig holds timing and cache settings for the suggestion engine.
type SuggestionConfig struct {
	Enabled        *bool `json:"enabled,omitempty"`
	DebounceMs     int   `json:"debounce_ms,omitempty"`
	MaxCacheSize   int   `json:"max_cache_size,omitempty"`
	CacheExpiryMs  int   `json:"cache_expiry_ms,omitempty"`
	MaxInputLength int   `json:"max_input_length,omitempty"`
}

// GenerationConfig holds settings for the generation API.
type GenerationConfig struct {
	BaseURL         string  `json:"base_url"`
	APIKey          string  `json:"api_key"`
	APIType         string  `json:"api_type"`
	Model           string  `json:"model"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	ContextMessages int     `json:"context_messages,omitempty"`
}

// PrivacyConfig controls what leaves the process.
type PrivacyConfig struct {
	RedactContext *bool `json:"redact_context,omitempty"`
}

// TelemetryConfig holds telemetry settings.
type TelemetryConfig struct {
	OpenRouter *bool `json:"openrouter,omitempty"`
}

// ConfigDir returns the config directory path.
// Resolution order: $NEXTLINE_CONFIG_DIR > $XDG_CONFIG_HOME/nextline > ~/.config/nextline
func ConfigDir() string {
	if dir := os.Getenv("NEXTLINE_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "nextline")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "nextline-config")
	}
	return filepath.Join(home, ".config", "nextline")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// PromptPath returns the custom system instruction path.
func PromptPath() string {
	return filepath.Join(ConfigDir(), "prompt.md")
}

// ScenariosPath returns the custom scenario table path.
func ScenariosPath() string {
	return filepath.Join(ConfigDir(), "scenarios.toml")
}

// DefaultConfig returns the default configuration from the embedded default_config.json.
func DefaultConfig() *Config {
	var cfg Config
	if err := json.Unmarshal(defaults.DefaultConfigJSON, &cfg); err != nil {
		panic("nextline: invalid embedded default_config.json: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Apply defaults for missing fields
	defaults := DefaultConfig()
	if cfg.Suggestion.Enabled == nil {
		cfg.Suggestion.Enabled = defaults.Suggestion.Enabled
	}
	if cfg.Suggestion.DebounceMs == 0 {
		cfg.Suggestion.DebounceMs = defaults.Suggestion.DebounceMs
	}
	if cfg.Suggestion.MaxCacheSize == 0 {
		cfg.Suggestion.MaxCacheSize = defaults.Suggestion.MaxCacheSize
	}
	if cfg.Suggestion.CacheExpiryMs == 0 {
		cfg.Suggestion.CacheExpiryMs = defaults.Suggestion.CacheExpiryMs
	}
	if cfg.Suggestion.MaxInputLength == 0 {
		cfg.Suggestion.MaxInputLength = defaults.Suggestion.MaxInputLength
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = defaults.Generation.BaseURL
	}
	if cfg.Generation.APIType == "" {
		cfg.Generation.APIType = defaults.Generation.APIType
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = defaults.Generation.Model
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = defaults.Generation.MaxTokens
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = defaults.Generation.Temperature
	}
	if cfg.Generation.ContextMessages == 0 {
		cfg.Generation.ContextMessages = defaults.Generation.ContextMessages
	}
	if cfg.Privacy.RedactContext == nil {
		cfg.Privacy.RedactContext = defaults.Privacy.RedactContext
	}
	if cfg.Telemetry.OpenRouter == nil {
		cfg.Telemetry.OpenRouter = defaults.Telemetry.OpenRouter
	}

	return &cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	if ResolveGenerationAPIKey(cfg) == "" {
		warnings = append(warnings, "generation api_key is not configured; heuristic suggestions still work, every generative evaluation reports a not-configured error")
	}
	switch cfg.Generation.APIType {
	case "", "messages", "chat_completions", "responses":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown generation api_type %q; falling back to messages", cfg.Generation.APIType))
	}
	if cfg.Generation.Temperature > 1 {
		warnings = append(warnings, "generation temperature above 1 favours variety over stable suggestions")
	}
	if cfg.Generation.MaxTokens > 60 {
		warnings = append(warnings, "generation max_tokens above 60 allows suggestions longer than the 100 character limit")
	}
	if cfg.Suggestion.DebounceMs > 0 && cfg.Suggestion.DebounceMs < 100 {
		warnings = append(warnings, "suggestion debounce_ms below 100 issues a backend request for nearly every keystroke")
	}
	if cfg.Suggestion.MaxCacheSize < 1 {
		warnings = append(warnings, "suggestion max_cache_size below 1; the default size is used")
	}
	return warnings
}

// SuggestionsEnabled reports whether suggestions are switched on.
func SuggestionsEnabled(cfg *Config) bool {
	if cfg == nil || cfg.Suggestion.Enabled == nil {
		return true
	}
	return *cfg.Suggestion.Enabled
}

// RedactContextEnabled reports whether conversation context is redacted before generation.
func RedactContextEnabled(cfg *Config) bool {
	if cfg == nil || cfg.Privacy.RedactContext == nil {
		return true
	}
	return *cfg.Privacy.RedactContext
}

// ResolveGenerationBaseURL returns the generation API base URL.
// Priority: $NEXTLINE_GENERATION_API_BASE_URL env > config value.
func ResolveGenerationBaseURL(cfg *Config) string {
	if url := os.Getenv("NEXTLINE_GENERATION_API_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Generation.BaseURL
	}
	return ""
}

// ResolveGenerationAPIKey returns the generation API key.
// Priority: $NEXTLINE_GENERATION_API_KEY env > config value.
func ResolveGenerationAPIKey(cfg *Config) string {
	if key := os.Getenv("NEXTLINE_GENERATION_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Generation.APIKey
	}
	return ""
}

// ResolveGenerationModel returns the generation model name.
// Priority: $NEXTLINE_GENERATION_MODEL env > config value.
func ResolveGenerationModel(cfg *Config) string {
	if model := os.Getenv("NEXTLINE_GENERATION_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Generation.Model
	}
	return ""
}

// OpenRouterTelemetryEnabled returns whether OpenRouter attribution headers should be sent.
func OpenRouterTelemetryEnabled(cfg *Config) bool {
	if cfg == nil || cfg.Telemetry.OpenRouter == nil {
		return true // default true
	}
	return *cfg.Telemetry.OpenRouter
}
