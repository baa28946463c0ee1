// Package scenario classifies a conversation into a coarse situation tag
// (after an error, after a completed task, ...) and holds the canned
// phrasings offered for each tag.
package scenario

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	nextline "github.com/Paranoid-AF/nextline"
	defaults "github.com/Paranoid-AF/nextline/default"
)

// Tag identifies a conversational situation.
type Tag string

const (
	AfterError      Tag = "after_error"
	AfterCompletion Tag = "after_completion"
	AfterCodeChange Tag = "after_code_change"
	AfterQuestion   Tag = "after_question"
)

// Rule matches one scenario. Keywords are compared against lower-cased text.
type Rule struct {
	Tag       Tag      `toml:"tag"`
	Contains  []string `toml:"contains"`
	Suffixes  []string `toml:"suffixes"`
	Phrasings []string `toml:"phrasings"`
}

// Table is an ordered rule set; earlier rules take priority.
type Table struct {
	Rules []Rule `toml:"scenario"`
}

// Parse decodes a scenario table from TOML.
func Parse(data string) (*Table, error) {
	var t Table
	md, err := toml.Decode(data, &t)
	if err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("ignoring unknown scenario keys", "keys", fmt.Sprint(undecoded))
	}
	for i, r := range t.Rules {
		if r.Tag == "" {
			return nil, fmt.Errorf("scenario %d: missing tag", i)
		}
		t.Rules[i].Contains = lowerAll(r.Contains)
		t.Rules[i].Suffixes = lowerAll(r.Suffixes)
	}
	return &t, nil
}

// Default returns the table embedded in default_scenarios.toml.
func Default() *Table {
	t, err := Parse(string(defaults.DefaultScenariosTOML))
	if err != nil {
		panic("nextline: invalid embedded default_scenarios.toml: " + err.Error())
	}
	return t
}

// Load reads a user table from path, or returns the default table if the
// file does not exist.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	t, err := Parse(string(data))
	if err != nil {
		return nil, err
	}
	slog.Info("loaded custom scenarios", "path", path, "rules", len(t.Rules))
	return t, nil
}

// Classify inspects the last message of history and returns the first
// matching tag. Empty history or no match yields false.
func (t *Table) Classify(history []nextline.Message) (Tag, bool) {
	if t == nil || len(history) == 0 {
		return "", false
	}
	content := strings.ToLower(history[len(history)-1].PlainText())
	trimmed := strings.TrimRight(content, " \t\r\n")

	for _, r := range t.Rules {
		for _, kw := range r.Contains {
			if kw != "" && strings.Contains(content, kw) {
				return r.Tag, true
			}
		}
		for _, suffix := range r.Suffixes {
			if suffix != "" && strings.HasSuffix(trimmed, suffix) {
				return r.Tag, true
			}
		}
	}
	return "", false
}

// Pool returns the phrasings registered for tag.
func (t *Table) Pool(tag Tag) []string {
	if t == nil {
		return nil
	}
	for _, r := range t.Rules {
		if r.Tag == tag {
			return r.Phrasings
		}
	}
	return nil
}

func lowerAll(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = strings.ToLower(s)
	}
	return out
}
