package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	nextline "github.com/Paranoid-AF/nextline"
)

const (
	minSuggestionRunes = 2
	maxSuggestionRunes = 100
)

// GenerativeConfig configures a Generative source.
type GenerativeConfig struct {
	Model             string
	MaxOutputTokens   int
	Temperature       float64
	ContextMessages   int
	SystemInstruction string
	RedactContext     bool
}

// Generative asks a text-generation backend for a single suggestion.
type Generative struct {
	backend Backend
	cfg     GenerativeConfig
	now     func() time.Time
}

// NewGenerative creates a generative source. now may be nil.
func NewGenerative(backend Backend, cfg GenerativeConfig, now func() time.Time) *Generative {
	if backend == nil {
		backend = unconfiguredBackend{}
	}
	if now == nil {
		now = time.Now
	}
	return &Generative{backend: backend, cfg: cfg, now: now}
}

// Kind implements Source.
func (g *Generative) Kind() nextline.SourceKind { return nextline.SourceGenerative }

// Suggest implements Source. Cancellation, stale epochs and rejected output
// all resolve to a nil suggestion; only backend failures return an error.
func (g *Generative) Suggest(ctx context.Context, req *Request) (*nextline.Suggestion, error) {
	contextStr := strings.Join(ConversationContext(req.History, g.cfg.ContextMessages, g.cfg.RedactContext), "\n")
	if strings.TrimSpace(contextStr) == "" {
		return nil, nil
	}

	model := g.cfg.Model
	if req.Model != "" {
		model = req.Model
	}
	userMessage := buildUserMessage(req.Input, contextStr)
	slog.Debug("generating suggestion", "epoch", req.Epoch, "model", model)

	text, err := g.backend.SendMessage(ctx, []Turn{{Role: "user", Content: userMessage}}, SendOptions{
		Model:             model,
		MaxOutputTokens:   g.cfg.MaxOutputTokens,
		Temperature:       g.cfg.Temperature,
		SystemInstruction: g.cfg.SystemInstruction,
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, nil
		}
		return nil, fmt.Errorf("generate suggestion: %w", err)
	}
	if ctx.Err() != nil || req.Stale() {
		return nil, nil
	}

	s, ok := validateSuggestion(text, req.Input)
	if !ok {
		slog.Debug("suggestion rejected", "epoch", req.Epoch, "text", text)
		return nil, nil
	}
	return &nextline.Suggestion{
		Text:       s,
		Confidence: nextline.ConfidenceHigh,
		Timestamp:  g.now(),
		Source:     nextline.SourceGenerative,
	}, nil
}

// buildUserMessage frames the prompt as "complete this input" when the user
// has typed something and "predict the next utterance" otherwise.
func buildUserMessage(input, contextStr string) string {
	var sb strings.Builder
	if strings.TrimSpace(input) != "" {
		sb.WriteString("The user is currently typing: «")
		sb.WriteString(input)
		sb.WriteString("»\n\nConversation so far:\n")
		sb.WriteString(contextStr)
		sb.WriteString("\n\nPredict the user's complete input:")
		return sb.String()
	}
	sb.WriteString("Conversation so far:\n")
	sb.WriteString(contextStr)
	sb.WriteString("\n\nPredict the next thing the user will say:")
	return sb.String()
}

// validateSuggestion trims text and rejects empty, too short, too long or
// no-op output.
func validateSuggestion(text, input string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	n := utf8.RuneCountInString(text)
	if n < minSuggestionRunes || n > maxSuggestionRunes {
		return "", false
	}
	if trimmedInput := strings.TrimSpace(input); trimmedInput != "" && text == trimmedInput {
		return "", false
	}
	return text, true
}
