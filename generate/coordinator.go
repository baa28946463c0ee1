package generate

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	nextline "github.com/Paranoid-AF/nextline"
)

// Scheduler runs f once after d and returns a function that stops the timer.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used by the cache.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithScheduler replaces time.AfterFunc for debounce timers.
func WithScheduler(s Scheduler) Option {
	return func(c *Coordinator) { c.schedule = s }
}

// Coordinator turns a stream of (history, input, enabled) observations into
// a published suggestion state. It debounces evaluations, consults the cache,
// and picks the heuristic or generative source. Results from superseded
// evaluations are discarded by epoch.
type Coordinator struct {
	opts     Options
	sources  Sources
	cache    *Cache
	now      func() time.Time
	schedule Scheduler

	// epoch identifies the current evaluation. Sources read it lock-free.
	epoch atomic.Uint64

	mu       sync.Mutex
	history  []nextline.Message
	input    string
	enabled  bool
	snap     nextline.Snapshot
	seq      uint64 // debounce generation
	stop     func() bool
	cancel   context.CancelFunc
	watchers map[int]chan struct{}
	nextID   int
	closed   bool

	wg sync.WaitGroup
}

// NewCoordinator creates a coordinator. Sources with a nil field skip that path.
// Zero-valued numeric options take the defaults of the embedded configuration;
// an empty Model leaves the generative source's own model in place.
func NewCoordinator(opts Options, sources Sources, options ...Option) *Coordinator {
	c := &Coordinator{
		opts:     opts.withDefaults(),
		sources:  sources,
		now:      time.Now,
		schedule: afterFunc,
		enabled:  true,
		watchers: make(map[int]chan struct{}),
	}
	for _, o := range options {
		o(c)
	}
	c.cache = NewCache(opts.MaxCacheSize, opts.CacheExpiry, c.now)
	return c
}

// Update records a new observation and restarts the debounce timer. A
// published suggestion that no longer extends the input is cleared at once.
func (c *Coordinator) Update(history []nextline.Message, input string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.history = slices.Clone(history)
	c.input = input
	c.enabled = enabled

	if s := c.snap.Suggestion; s != nil && input != "" && !hasPrefixFold(s.Text, input) {
		slog.Debug("suggestion invalidated by input", "suggestion", s.Text, "input", input)
		c.snap.Suggestion = nil
		c.publish()
	}

	if c.stop != nil {
		c.stop()
	}
	c.seq++
	seq := c.seq
	c.stop = c.schedule(c.opts.Debounce, func() { c.evaluate(seq) })
}

// evaluate runs one debounced evaluation unless a later Update replaced it.
func (c *Coordinator) evaluate(seq uint64) {
	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.stop = nil
	history, input := c.history, c.input

	if !c.enabled || len(history) == 0 || utf8.RuneCountInString(input) > c.opts.MaxInputLength {
		c.supersede()
		c.set(nil, false, "")
		c.mu.Unlock()
		return
	}

	key := Fingerprint(history, input)
	c.cache.Cleanup()
	if s, ok := c.cache.Get(key); ok {
		slog.Debug("suggestion cache hit", "key", key)
		c.supersede()
		c.set(&s, false, "")
		c.mu.Unlock()
		return
	}

	c.supersede()
	epoch := c.epoch.Load()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.set(nil, true, "")
	c.wg.Add(1)
	c.mu.Unlock()

	req := &Request{History: history, Input: input, Epoch: epoch, Current: c.epoch.Load, Model: c.opts.Model}
	slog.Debug("evaluating suggestion", "epoch", epoch, "input", input, "messages", len(history))

	if c.sources.Heuristic != nil && strings.TrimSpace(input) == "" {
		if s, err := c.sources.Heuristic.Suggest(ctx, req); err == nil && s != nil {
			slog.Debug("suggestion produced", "source", c.sources.Heuristic.Kind(), "epoch", epoch)
			c.finish(epoch, key, s, nil)
			c.wg.Done()
			return
		}
	}

	if c.sources.Generative == nil {
		c.finish(epoch, key, nil, nil)
		c.wg.Done()
		return
	}
	go func() {
		defer c.wg.Done()
		slog.Debug("querying source", "source", c.sources.Generative.Kind(), "epoch", epoch)
		s, err := c.sources.Generative.Suggest(ctx, req)
		c.finish(epoch, key, s, err)
	}()
}

// finish applies a source result if its epoch is still current.
func (c *Coordinator) finish(epoch uint64, key string, s *nextline.Suggestion, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.epoch.Load() != epoch {
		slog.Debug("discarding stale suggestion", "epoch", epoch)
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	switch {
	case err != nil:
		slog.Error("suggestion generation failed", "error", err)
		c.set(nil, false, err.Error())
	case s == nil:
		c.set(nil, false, "")
	default:
		c.cache.Put(key, *s)
		c.set(s, false, "")
	}
}

// Accept consumes the published suggestion and returns its text.
func (c *Coordinator) Accept() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.snap.State() != nextline.StateHasSuggestion {
		return "", false
	}
	text := c.snap.Suggestion.Text
	c.snap.Suggestion = nil
	c.publish()
	return text, true
}

// Dismiss clears the published state and invalidates the in-flight call's
// eventual result. The call itself keeps running until superseded.
func (c *Coordinator) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.epoch.Add(1)
	c.set(nil, false, "")
}

// ClearCache empties the cache without touching the published state.
func (c *Coordinator) ClearCache() {
	c.cache.Clear()
}

// Snapshot returns the current published state.
func (c *Coordinator) Snapshot() nextline.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snap
	if snap.Suggestion != nil {
		s := *snap.Suggestion
		snap.Suggestion = &s
	}
	return snap
}

// Watch returns a channel that receives a value after each publish. Signals
// coalesce; read Snapshot for the state. The channel is closed by the
// returned cancel function or by Close.
func (c *Coordinator) Watch() (<-chan struct{}, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan struct{}, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.watchers[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(w)
		}
	}
}

// Close stops the debounce timer, cancels any in-flight call and waits for
// it to return. Later calls are no-ops.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	c.supersede()
	for id, w := range c.watchers {
		delete(c.watchers, id)
		close(w)
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// supersede cancels the in-flight call and advances the epoch.
// Caller holds c.mu.
func (c *Coordinator) supersede() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.epoch.Add(1)
}

// set replaces the published triple. Caller holds c.mu.
func (c *Coordinator) set(s *nextline.Suggestion, loading bool, errMsg string) {
	c.snap.Suggestion = s
	c.snap.Loading = loading
	c.snap.Error = errMsg
	c.publish()
}

// publish bumps the version and signals watchers. Caller holds c.mu.
func (c *Coordinator) publish() {
	c.snap.Version++
	for _, w := range c.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}
