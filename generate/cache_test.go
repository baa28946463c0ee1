package generate

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	nextline "github.com/Paranoid-AF/nextline"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func suggestionAt(text string, ts time.Time) nextline.Suggestion {
	return nextline.Suggestion{
		Text:       text,
		Confidence: nextline.ConfidenceHigh,
		Timestamp:  ts,
		Source:     nextline.SourceGenerative,
	}
}

func TestCacheHitBeforeExpiry(t *testing.T) {
	clock := newFakeClock()
	expiry := 120 * time.Second
	c := NewCache(50, expiry, clock.Now)
	c.Put("k", suggestionAt("Run the tests", clock.Now()))

	clock.Advance(expiry - time.Millisecond)
	c.Cleanup()
	s, ok := c.Get("k")
	if !ok {
		t.Fatal("expected a hit just before expiry")
	}
	if s.Text != "Run the tests" {
		t.Errorf("expected %q, got %q", "Run the tests", s.Text)
	}
}

func TestCacheMissAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	expiry := 120 * time.Second
	c := NewCache(50, expiry, clock.Now)
	c.Put("k", suggestionAt("Run the tests", clock.Now()))

	clock.Advance(expiry + time.Millisecond)
	c.Cleanup()
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected a miss after expiry")
	}
	if c.Len() != 0 {
		t.Errorf("expected cleanup to remove the expired entry, got %d entries", c.Len())
	}
}

func TestCacheGetIgnoresExpiredWithoutCleanup(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(50, time.Second, clock.Now)
	c.Put("k", suggestionAt("x1", clock.Now()))
	clock.Advance(2 * time.Second)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry not to serve a hit")
	}
	if c.Len() != 1 {
		t.Errorf("expected Get not to mutate, got %d entries", c.Len())
	}
}

func TestCacheBound(t *testing.T) {
	clock := newFakeClock()
	const maxSize, extra = 50, 7
	c := NewCache(maxSize, time.Hour, clock.Now)

	for i := range maxSize + extra {
		c.Put(fmt.Sprintf("k%d", i), suggestionAt(fmt.Sprintf("s%d", i), clock.Now()))
		clock.Advance(time.Millisecond)
	}
	c.Cleanup()

	if c.Len() != maxSize {
		t.Fatalf("expected %d entries, got %d", maxSize, c.Len())
	}
	for i := range extra {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); ok {
			t.Errorf("expected oldest entry k%d to be evicted", i)
		}
	}
	for i := extra; i < maxSize+extra; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("expected recent entry k%d to survive", i)
		}
	}
}

func TestCachePutOverwrites(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(50, time.Hour, clock.Now)
	c.Put("k", suggestionAt("old", clock.Now()))
	c.Put("k", suggestionAt("new", clock.Now()))

	s, ok := c.Get("k")
	if !ok || s.Text != "new" {
		t.Fatalf("expected overwritten entry, got %+v ok=%v", s, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestCacheClear(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(50, time.Hour, clock.Now)
	c.Put("a", suggestionAt("aa", clock.Now()))
	c.Put("b", suggestionAt("bb", clock.Now()))
	c.Clear()

	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after clear")
	}
}

func TestFingerprintUsesLastThreeMessages(t *testing.T) {
	history := []nextline.Message{
		{Role: "user", Text: "first"},
		{Role: "assistant", Text: "second"},
		{Role: "user", Text: "third"},
		{Role: "assistant", Text: "fourth"},
	}
	got := Fingerprint(history, "run")
	want := "assistant:second|user:third|assistant:fourth_run"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFingerprintTruncates(t *testing.T) {
	long := strings.Repeat("a", 80)
	history := []nextline.Message{{Role: "assistant", Text: long}}
	input := strings.Repeat("b", 40)

	got := Fingerprint(history, input)
	want := "assistant:" + strings.Repeat("a", 50) + "_" + strings.Repeat("b", 30)
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFingerprintTruncatesRunes(t *testing.T) {
	history := []nextline.Message{{Role: "user", Text: strings.Repeat("测", 60)}}
	got := Fingerprint(history, strings.Repeat("试", 35))
	want := "user:" + strings.Repeat("测", 50) + "_" + strings.Repeat("试", 30)
	if got != want {
		t.Errorf("expected rune-based truncation, got %q", got)
	}
}

func TestFingerprintCollidesBeyondPrefix(t *testing.T) {
	prefix := strings.Repeat("x", 50)
	a := []nextline.Message{{Role: "assistant", Text: prefix + " tail one"}}
	b := []nextline.Message{{Role: "assistant", Text: prefix + " tail two"}}
	if Fingerprint(a, "in") != Fingerprint(b, "in") {
		t.Error("expected contexts sharing the truncated prefix to share a slot")
	}
}

func TestFingerprintEmptyHistory(t *testing.T) {
	if got := Fingerprint(nil, "hi"); got != "_hi" {
		t.Errorf("expected %q, got %q", "_hi", got)
	}
}
