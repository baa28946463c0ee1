package generate

import (
	"context"
	"errors"

	nextline "github.com/Paranoid-AF/nextline"
)

// ErrNotConfigured is returned by the generative path when no API key is set.
var ErrNotConfigured = errors.New("generation API key not configured; set NEXTLINE_GENERATION_API_KEY or add generation.api_key to config.json")

// Request is the context a Source predicts from.
type Request struct {
	History []nextline.Message
	Input   string
	// Epoch identifies the evaluation that issued the request.
	Epoch uint64
	// Current reports the coordinator's current epoch. May be nil.
	Current func() uint64
	// Model overrides the source's configured model when set.
	Model string
}

// Stale reports whether a newer evaluation has superseded this request.
func (r *Request) Stale() bool {
	return r.Current != nil && r.Current() != r.Epoch
}

// Source produces a candidate suggestion for a request. A nil suggestion
// with a nil error means the source declined; cancellation is never an error.
type Source interface {
	Kind() nextline.SourceKind
	Suggest(ctx context.Context, req *Request) (*nextline.Suggestion, error)
}

// Turn is one message sent to a text-generation backend.
type Turn struct {
	Role    string
	Content string
}

// SendOptions carries per-request sampling parameters.
type SendOptions struct {
	Model             string
	MaxOutputTokens   int
	Temperature       float64
	SystemInstruction string
}

// Backend sends a conversation to a text-generation service and returns the
// generated text. Implementations abort transport work when ctx is cancelled.
type Backend interface {
	SendMessage(ctx context.Context, turns []Turn, opts SendOptions) (string, error)
}

// unconfiguredBackend stands in for a backend when no API key is available.
type unconfiguredBackend struct{}

func (unconfiguredBackend) SendMessage(context.Context, []Turn, SendOptions) (string, error) {
	return "", ErrNotConfigured
}
