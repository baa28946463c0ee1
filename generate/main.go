// Package generate predicts the user's next input from conversation history.
package generate

import (
	"log/slog"
	"os"
	"strings"
	"time"

	nextline "github.com/Paranoid-AF/nextline"
	defaults "github.com/Paranoid-AF/nextline/default"
	"github.com/Paranoid-AF/nextline/scenario"
)

// Options configures a Coordinator.
type Options struct {
	Debounce       time.Duration
	MaxCacheSize   int
	CacheExpiry    time.Duration
	MaxInputLength int
	Model          string
}

// DefaultOptions returns the options of the embedded default configuration.
func DefaultOptions() Options {
	return OptionsFromConfig(nextline.DefaultConfig())
}

// OptionsFromConfig derives Coordinator options from cfg.
func OptionsFromConfig(cfg *nextline.Config) Options {
	return Options{
		Debounce:       time.Duration(cfg.Suggestion.DebounceMs) * time.Millisecond,
		MaxCacheSize:   cfg.Suggestion.MaxCacheSize,
		CacheExpiry:    time.Duration(cfg.Suggestion.CacheExpiryMs) * time.Millisecond,
		MaxInputLength: cfg.Suggestion.MaxInputLength,
		Model:          nextline.ResolveGenerationModel(cfg),
	}
}

// withDefaults fills zero or negative numeric fields from DefaultOptions.
func (o Options) withDefaults() Options {
	if o.Debounce > 0 && o.MaxCacheSize > 0 && o.CacheExpiry > 0 && o.MaxInputLength > 0 {
		return o
	}
	def := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = def.Debounce
	}
	if o.MaxCacheSize <= 0 {
		o.MaxCacheSize = def.MaxCacheSize
	}
	if o.CacheExpiry <= 0 {
		o.CacheExpiry = def.CacheExpiry
	}
	if o.MaxInputLength <= 0 {
		o.MaxInputLength = def.MaxInputLength
	}
	return o
}

// Sources holds the two suggestion sources a Coordinator chooses between.
// Both are safe for concurrent use and may be shared by many coordinators.
type Sources struct {
	Heuristic  Source
	Generative Source
}

// NewSources builds the sources described by cfg. A custom prompt.md and
// scenarios.toml in the config directory replace the embedded defaults.
func NewSources(cfg *nextline.Config) Sources {
	table, err := scenario.Load(nextline.ScenariosPath())
	if err != nil {
		slog.Warn("failed to load scenarios, using defaults", "error", err)
		table = scenario.Default()
	}

	var backend Backend
	if apiKey := nextline.ResolveGenerationAPIKey(cfg); apiKey != "" {
		backend = NewGenerator(
			nextline.ResolveGenerationBaseURL(cfg),
			apiKey,
			cfg.Generation.APIType,
			nextline.OpenRouterTelemetryEnabled(cfg),
		)
	} else {
		slog.Warn("generation API key not configured")
	}

	instruction := loadCustomPrompt()
	if instruction == "" {
		slog.Debug("no custom prompt, using built-in default")
		instruction = defaults.DefaultPrompt
	}

	return Sources{
		Heuristic: NewHeuristic(table, nil, nil),
		Generative: NewGenerative(backend, GenerativeConfig{
			Model:             nextline.ResolveGenerationModel(cfg),
			MaxOutputTokens:   cfg.Generation.MaxTokens,
			Temperature:       cfg.Generation.Temperature,
			ContextMessages:   cfg.Generation.ContextMessages,
			SystemInstruction: strings.TrimSpace(instruction),
			RedactContext:     nextline.RedactContextEnabled(cfg),
		}, nil),
	}
}

// NewEngine loads the user's configuration and returns a ready Coordinator.
func NewEngine(opts ...Option) *Coordinator {
	cfg, err := nextline.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = nextline.DefaultConfig()
	}
	return NewCoordinator(OptionsFromConfig(cfg), NewSources(cfg), opts...)
}

// loadCustomPrompt loads a custom system instruction.
// Returns empty string if no custom prompt exists.
func loadCustomPrompt() string {
	promptPath := nextline.PromptPath()
	data, err := os.ReadFile(promptPath)
	if err != nil {
		return ""
	}
	slog.Info("loaded custom prompt", "path", promptPath)
	return string(data)
}
