package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/term"

	nextline "github.com/Paranoid-AF/nextline"
)

// termWriter wraps a file and converts \n to \r\n when the file is a terminal
// (needed because raw mode disables the kernel's NL→CRNL translation).
// When the file is redirected, \n passes through unchanged.
func termWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return &crlfWriter{w: f}
	}
	return f
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err // report original length to caller
}

// entry is one TOML record of the session log.
type entry struct {
	Event      string            `toml:"event"`
	Timestamp  time.Time         `toml:"timestamp"`
	Input      string            `toml:"input,omitempty"`
	Messages   int               `toml:"messages,omitempty"`
	State      nextline.State    `toml:"state,omitempty"`
	Suggestion *suggestionRecord `toml:"suggestion,omitempty"`
	Error      string            `toml:"error,omitempty"`
}

type suggestionRecord struct {
	Text       string              `toml:"text"`
	Confidence nextline.Confidence `toml:"confidence"`
	Source     nextline.SourceKind `toml:"source"`
	Created    time.Time           `toml:"created"`
}

// observe turns a published snapshot into a log entry.
func observe(snap nextline.Snapshot, input string, messages int) entry {
	e := entry{
		Event:    "observe",
		Input:    input,
		Messages: messages,
		State:    snap.State(),
		Error:    snap.Error,
	}
	if s := snap.Suggestion; s != nil {
		e.Suggestion = &suggestionRecord{
			Text:       s.Text,
			Confidence: s.Confidence,
			Source:     s.Source,
			Created:    s.Timestamp,
		}
	}
	return e
}

// recorder serialises entries from the input loop and the watch goroutine.
type recorder struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func (r *recorder) write(e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Timestamp.IsZero() {
		now := time.Now
		if r.now != nil {
			now = r.now
		}
		e.Timestamp = now()
	}
	if err := writeEntry(r.w, e); err != nil {
		slog.Warn("failed to write entry", "error", err)
	}
}

// writeEntry writes a single TOML-formatted entry to w.
func writeEntry(w io.Writer, e entry) error {
	fmt.Fprintf(w, "# %s\n\n", strings.Repeat("═", 60))
	record := struct {
		Entry entry `toml:"entry"`
	}{e}
	if err := toml.NewEncoder(w).Encode(record); err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}
