// Command nextline-repl is an interactive tester for the nextline suggestion
// engine. Build a conversation, type into the input line and watch the
// predicted next input appear as a dimmed hint; Tab accepts it. Every
// observed state is written to stdout as TOML.
//
// Usage:
//
//	./nextline-repl             # interactive, TOML on screen
//	./nextline-repl > log.toml  # prompt on screen, TOML to file
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	nextline "github.com/Paranoid-AF/nextline"
	"github.com/Paranoid-AF/nextline/generate"
)

const prompt = "you> "

// conversation is the history the engine predicts from.
type conversation struct {
	mu       sync.Mutex
	messages []nextline.Message
}

func (c *conversation) add(role, text string) {
	c.mu.Lock()
	c.messages = append(c.messages, nextline.Message{Role: role, Text: text})
	c.mu.Unlock()
}

func (c *conversation) reset() {
	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
}

func (c *conversation) snapshot() []nextline.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]nextline.Message(nil), c.messages...)
}

func main() {
	editor, err := NewEditor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer editor.Close()

	tty := editor.Tty()
	slog.SetDefault(slog.New(slog.NewTextHandler(termWriter(tty), &slog.HandlerOptions{Level: slog.LevelWarn})))

	fmt.Fprintf(tty, "\033[2J\033[H") // clear screen
	fmt.Fprintf(tty, "nextline repl\r\n")
	fmt.Fprintf(tty, "\r\ncommands:\r\n")
	fmt.Fprintf(tty, "  <text>             send a user message\r\n")
	fmt.Fprintf(tty, "  :assistant <text>  add an assistant message (:a)\r\n")
	fmt.Fprintf(tty, "  :user <text>       add a user message without sending (:u)\r\n")
	fmt.Fprintf(tty, "  :history           show the conversation\r\n")
	fmt.Fprintf(tty, "  :dismiss           dismiss the current suggestion\r\n")
	fmt.Fprintf(tty, "  :clear             clear the suggestion cache\r\n")
	fmt.Fprintf(tty, "  :reset             start a new conversation\r\n")
	fmt.Fprintf(tty, "  :quit              exit\r\n")
	fmt.Fprintf(tty, "  Tab                accept the hint\r\n\r\n")

	engine := generate.NewEngine()
	defer engine.Close()

	// stdout writer: converts \n → \r\n when stdout is a terminal (raw mode),
	// passes \n through unchanged when redirected to a file.
	out := &recorder{w: termWriter(os.Stdout)}

	conv := &conversation{}
	var input sync.Mutex
	current := ""

	editor.OnChange = func(text string) {
		input.Lock()
		current = text
		input.Unlock()
		if strings.HasPrefix(text, ":") {
			return
		}
		engine.Update(conv.snapshot(), text, true)
	}
	editor.Hint = func(text string) string {
		if strings.HasPrefix(text, ":") {
			return ""
		}
		return hintFor(engine.Snapshot(), text)
	}
	editor.Accept = func(string) (string, bool) {
		text, ok := engine.Accept()
		if ok {
			out.write(entry{Event: "accept", Input: text})
		}
		return text, ok
	}

	changes, stopWatch := engine.Watch()
	defer stopWatch()
	go func() {
		var last nextline.State
		for range changes {
			snap := engine.Snapshot()
			editor.Refresh()
			state := snap.State()
			if state == nextline.StateLoading || (state == nextline.StateIdle && last == nextline.StateIdle) {
				last = state
				continue
			}
			last = state
			input.Lock()
			typed := current
			input.Unlock()
			out.write(observe(snap, typed, len(conv.snapshot())))
			if snap.Error != "" {
				editor.Printf("error: %s\r\n", snap.Error)
			}
		}
	}()

	// Predict an opener for the empty conversation state once it has content.
	refresh := func() { engine.Update(conv.snapshot(), "", true) }

	for {
		text, err := editor.ReadLine(prompt)
		if err == io.EOF || err == ErrInterrupt {
			break
		}
		if err != nil {
			fmt.Fprintf(tty, "read error: %v\r\n", err)
			break
		}

		text = strings.TrimSpace(text)
		switch {
		case text == "":
			continue

		case text == ":quit" || text == ":q":
			return

		case text == ":history":
			for _, m := range conv.snapshot() {
				fmt.Fprintf(tty, "  %s: %s\r\n", m.Role, m.PlainText())
			}
			continue

		case text == ":dismiss":
			engine.Dismiss()
			out.write(entry{Event: "dismiss"})
			continue

		case text == ":clear":
			engine.ClearCache()
			fmt.Fprintf(tty, "cache cleared\r\n")
			continue

		case text == ":reset":
			conv.reset()
			engine.Dismiss()
			fmt.Fprintf(tty, "conversation reset\r\n")
			continue

		case hasCommand(text, ":assistant", ":a"):
			conv.add("assistant", commandArg(text))
			fmt.Fprintf(tty, "assistant> %s\r\n", commandArg(text))
			refresh()
			continue

		case hasCommand(text, ":user", ":u"):
			conv.add("user", commandArg(text))
			refresh()
			continue

		case strings.HasPrefix(text, ":"):
			fmt.Fprintf(tty, "unknown command: %s\r\n", text)
			continue
		}

		conv.add("user", text)
		out.write(entry{Event: "send", Input: text})
		refresh()
	}
}

// hasCommand reports whether text invokes one of the named commands.
func hasCommand(text string, names ...string) bool {
	for _, name := range names {
		if text == name || strings.HasPrefix(text, name+" ") {
			return true
		}
	}
	return false
}

// commandArg returns the text after the command word.
func commandArg(text string) string {
	_, arg, _ := strings.Cut(text, " ")
	return strings.TrimSpace(arg)
}

// hintFor returns the ghost text to draw after typed, or "" when the
// published suggestion does not extend it.
func hintFor(snap nextline.Snapshot, typed string) string {
	if snap.Suggestion == nil {
		return ""
	}
	text := snap.Suggestion.Text
	if strings.TrimSpace(typed) == "" {
		if typed != "" {
			return ""
		}
		return text
	}
	rest := generate.CompletionText(text, typed)
	if rest == text {
		return ""
	}
	if strings.HasSuffix(typed, " ") {
		rest = strings.TrimLeft(rest, " ")
	}
	return rest
}
