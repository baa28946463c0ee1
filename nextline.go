// Package nextline defines the suggestion data model shared by the engine,
// the daemon and its clients, plus the JSON-lines IPC types.
package nextline

import (
	"strings"
	"time"
)

// Confidence grades how much a suggestion should be trusted by the UI.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// SourceKind names the producer of a suggestion.
type SourceKind string

const (
	SourceGenerative SourceKind = "generative"
	SourceHeuristic  SourceKind = "heuristic"
	// SourceHistorical is reserved; nothing produces it yet.
	SourceHistorical SourceKind = "historical"
)

// Suggestion is an immutable prediction of the user's next input.
type Suggestion struct {
	// Text is the predicted completion or replacement. Never empty.
	Text       string     `json:"text"`
	Confidence Confidence `json:"confidence"`
	// Timestamp is the creation instant; the cache uses it for expiry and eviction.
	Timestamp time.Time  `json:"timestamp"`
	Source    SourceKind `json:"source"`
}

// ContentBlock is one part of a structured conversation message.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// Content holds the textual body of tool_result blocks.
	Content string `json:"content,omitempty"`
}

// Message is a single conversation turn.
type Message struct {
	// Role is the speaker ("user", "assistant", "system", "result", ...).
	Role string `json:"role"`
	// Text is a plain-text body. When set it takes precedence over Content.
	Text    string         `json:"text,omitempty"`
	Content []ContentBlock `json:"content,omitempty"`
}

// PlainText extracts the readable text of a message.
func (m Message) PlainText() string {
	if m.Text != "" {
		return m.Text
	}
	var parts []string
	for _, b := range m.Content {
		switch b.Type {
		case "text":
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		case "tool_result":
			if b.Content != "" {
				parts = append(parts, b.Content)
			} else if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// State is the externally observed condition of a suggestion engine.
type State string

const (
	StateIdle          State = "idle"
	StateLoading       State = "loading"
	StateHasSuggestion State = "has_suggestion"
	StateError         State = "error"
)

// Snapshot is the observable output triple of a suggestion engine.
type Snapshot struct {
	Suggestion *Suggestion
	Loading    bool
	// Error is a human-readable backend failure, empty when none.
	Error string
	// Version increments on every publish.
	Version uint64
}

// State derives the observable state. Loading wins over error, error over a
// suggestion.
func (s Snapshot) State() State {
	switch {
	case s.Loading:
		return StateLoading
	case s.Error != "":
		return StateError
	case s.Suggestion != nil:
		return StateHasSuggestion
	default:
		return StateIdle
	}
}

// Request types understood by the daemon.
const (
	RequestUpdate     = "update"
	RequestState      = "state"
	RequestAccept     = "accept"
	RequestDismiss    = "dismiss"
	RequestClearCache = "clear_cache"
	RequestWatch      = "watch"
	RequestClose      = "close"
)

// Request is sent from a UI client to the daemon.
type Request struct {
	// Type selects the operation. Empty means "update".
	Type string `json:"type,omitempty"`
	// SessionID identifies the chat pane; each session owns its own engine.
	SessionID string `json:"session_id"`
	// Messages is the full conversation history (update only).
	Messages []Message `json:"messages,omitempty"`
	// Input is the text typed so far (update only).
	Input string `json:"input"`
	// Enabled toggles suggestions; nil means enabled.
	Enabled *bool `json:"enabled,omitempty"`
}

// Response is sent from the daemon back to the client.
type Response struct {
	SessionID  string      `json:"session_id"`
	State      State       `json:"state"`
	Suggestion *Suggestion `json:"suggestion"`
	Loading    bool        `json:"loading"`
	// Accepted carries the consumed suggestion text for accept requests.
	Accepted string `json:"accepted,omitempty"`
	// Error is set when the request fails or the engine reports a backend error.
	Error *Error `json:"error,omitempty"`
}

// Error describes a daemon-side error returned to the client.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "invalid_request", "api_error").
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// ConfigRequest is sent from the client for configuration operations.
type ConfigRequest struct {
	// Action is the config operation: "get", "reload", "defaults", "default_prompt" or "validate".
	Action string `json:"action"`
}

// ConfigResponse is sent from the daemon in response to a ConfigRequest.
type ConfigResponse struct {
	// Config is the current configuration (for "get", "reload", and "defaults" actions).
	Config *Config `json:"config,omitempty"`
	// Prompt is the default system instruction (for "default_prompt" action).
	Prompt string `json:"prompt,omitempty"`
	// Warnings contains configuration warnings (for "validate" action).
	Warnings []string `json:"warnings,omitempty"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}

// ResponseFromSnapshot builds a daemon response carrying a snapshot.
func ResponseFromSnapshot(sessionID string, snap Snapshot) *Response {
	resp := &Response{
		SessionID:  sessionID,
		State:      snap.State(),
		Suggestion: snap.Suggestion,
		Loading:    snap.Loading,
	}
	if snap.Error != "" {
		resp.Error = &Error{Code: "api_error", Message: snap.Error}
	}
	return resp
}
