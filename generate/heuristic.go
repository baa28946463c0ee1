package generate

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	nextline "github.com/Paranoid-AF/nextline"
	"github.com/Paranoid-AF/nextline/scenario"
)

// Heuristic offers a canned phrasing for the detected scenario. It only
// answers when nothing has been typed yet.
type Heuristic struct {
	table *scenario.Table
	now   func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewHeuristic creates a heuristic source over table. rnd and now may be nil.
func NewHeuristic(table *scenario.Table, rnd *rand.Rand, now func() time.Time) *Heuristic {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if now == nil {
		now = time.Now
	}
	return &Heuristic{table: table, rnd: rnd, now: now}
}

// Kind implements Source.
func (h *Heuristic) Kind() nextline.SourceKind { return nextline.SourceHeuristic }

// Suggest implements Source.
func (h *Heuristic) Suggest(_ context.Context, req *Request) (*nextline.Suggestion, error) {
	if strings.TrimSpace(req.Input) != "" {
		return nil, nil
	}
	tag, ok := h.table.Classify(req.History)
	if !ok {
		return nil, nil
	}
	return h.Pick(tag), nil
}

// Pick selects a phrasing for tag uniformly at random, or nil for an empty pool.
func (h *Heuristic) Pick(tag scenario.Tag) *nextline.Suggestion {
	pool := h.table.Pool(tag)
	if len(pool) == 0 {
		return nil
	}
	h.mu.Lock()
	text := pool[h.rnd.IntN(len(pool))]
	h.mu.Unlock()

	return &nextline.Suggestion{
		Text:       text,
		Confidence: nextline.ConfidenceMedium,
		Timestamp:  h.now(),
		Source:     nextline.SourceHeuristic,
	}
}
