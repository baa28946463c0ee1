package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	nextline "github.com/Paranoid-AF/nextline"
	"github.com/Paranoid-AF/nextline/generate"
	"github.com/Paranoid-AF/nextline/scenario"
)

// scriptedBackend answers every request with the same text or error.
type scriptedBackend struct {
	text string
	err  error
}

func (b *scriptedBackend) SendMessage(context.Context, []generate.Turn, generate.SendOptions) (string, error) {
	return b.text, b.err
}

func coordinatorFactory(backend generate.Backend) Factory {
	opts := generate.DefaultOptions()
	opts.Debounce = 10 * time.Millisecond
	sources := generate.Sources{
		Heuristic: generate.NewHeuristic(scenario.Default(), nil, nil),
		Generative: generate.NewGenerative(backend, generate.GenerativeConfig{
			Model:           "test-model",
			MaxOutputTokens: 60,
			Temperature:     0.3,
			ContextMessages: 4,
		}, nil),
	}
	return func() Suggester {
		return generate.NewCoordinator(opts, sources)
	}
}

// watchUntil opens a watch stream and returns the first response matching cond.
func watchUntil(t *testing.T, sockPath, sessionID string, cond func(*nextline.Response) bool) *nextline.Response {
	t.Helper()
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	data, _ := json.Marshal(&nextline.Request{Type: nextline.RequestWatch, SessionID: sessionID})
	conn.Write(append(data, '\n'))
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var resp nextline.Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if cond(&resp) {
			return &resp
		}
	}
	t.Fatalf("watch ended before the condition held: %v", scanner.Err())
	return nil
}

func TestIntegrationGenerativeRoundTrip(t *testing.T) {
	srv := newTestServer(t, coordinatorFactory(&scriptedBackend{text: "Run the tests again"}))

	resp := sendRequest(t, srv.sockPath, &nextline.Request{
		SessionID: "pane",
		Messages:  testMessages(),
		Input:     "Run",
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	got := watchUntil(t, srv.sockPath, "pane", func(r *nextline.Response) bool {
		return r.State == nextline.StateHasSuggestion
	})
	if got.Suggestion.Text != "Run the tests again" {
		t.Errorf("expected %q, got %q", "Run the tests again", got.Suggestion.Text)
	}
	if got.Suggestion.Source != nextline.SourceGenerative {
		t.Errorf("expected generative source, got %s", got.Suggestion.Source)
	}

	accepted := sendRequest(t, srv.sockPath, &nextline.Request{Type: nextline.RequestAccept, SessionID: "pane"})
	if accepted.Accepted != "Run the tests again" {
		t.Errorf("expected accepted text, got %q", accepted.Accepted)
	}
}

func TestIntegrationHeuristic(t *testing.T) {
	srv := newTestServer(t, coordinatorFactory(&scriptedBackend{}))

	sendRequest(t, srv.sockPath, &nextline.Request{
		SessionID: "pane",
		Messages:  []nextline.Message{{Role: "assistant", Text: "The migration failed with an error."}},
	})
	got := watchUntil(t, srv.sockPath, "pane", func(r *nextline.Response) bool {
		return r.State == nextline.StateHasSuggestion
	})
	if got.Suggestion.Source != nextline.SourceHeuristic {
		t.Errorf("expected heuristic source, got %s", got.Suggestion.Source)
	}
}

func TestIntegrationAPIError(t *testing.T) {
	srv := newTestServer(t, coordinatorFactory(&scriptedBackend{err: errors.New("API error (status 401): invalid x-api-key")}))

	sendRequest(t, srv.sockPath, &nextline.Request{SessionID: "pane", Messages: testMessages(), Input: "Run"})
	got := watchUntil(t, srv.sockPath, "pane", func(r *nextline.Response) bool {
		return r.State == nextline.StateError
	})
	if got.Error == nil || got.Error.Code != "api_error" {
		t.Fatalf("expected api_error, got %+v", got.Error)
	}
	if got.Suggestion != nil {
		t.Errorf("expected no suggestion alongside the error, got %q", got.Suggestion.Text)
	}
}

func TestIntegrationLengthGate(t *testing.T) {
	srv := newTestServer(t, coordinatorFactory(&scriptedBackend{text: "Never shown"}))

	long := "please refactor the whole fetcher package so that retries"
	sendRequest(t, srv.sockPath, &nextline.Request{SessionID: "pane", Messages: testMessages(), Input: long})
	time.Sleep(50 * time.Millisecond)

	resp := sendRequest(t, srv.sockPath, &nextline.Request{Type: nextline.RequestState, SessionID: "pane"})
	if resp.State != nextline.StateIdle {
		t.Errorf("expected idle for long input, got %s", resp.State)
	}
}

func TestIntegrationConcurrentSessions(t *testing.T) {
	srv := newTestServer(t, coordinatorFactory(&scriptedBackend{text: "Commit these changes"}))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("unix", srv.sockPath)
			if err != nil {
				t.Error(err)
				return
			}
			defer conn.Close()
			data, _ := json.Marshal(&nextline.Request{SessionID: fmt.Sprintf("pane-%d", i), Messages: testMessages(), Input: "Com"})
			conn.Write(append(data, '\n'))
			if !bufio.NewScanner(conn).Scan() {
				t.Error("no response from server")
			}
		}()
	}
	wg.Wait()

	for i := range 8 {
		sid := fmt.Sprintf("pane-%d", i)
		got := watchUntil(t, srv.sockPath, sid, func(r *nextline.Response) bool {
			return r.State == nextline.StateHasSuggestion
		})
		if got.SessionID != sid {
			t.Errorf("expected session %s, got %s", sid, got.SessionID)
		}
	}
}

func TestIntegrationConfigDisablesSuggestions(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NEXTLINE_CONFIG_DIR", dir)
	t.Setenv("NEXTLINE_GENERATION_API_KEY", "")
	cfg := `{"suggestion": {"enabled": false, "debounce_ms": 10}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	n := testSocketCounter.Add(1)
	srv, err := NewServer(fmt.Sprintf("/tmp/nextline-t%d-%d.sock", os.Getpid(), n))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)
	go srv.Serve()

	failed := []nextline.Message{{Role: "assistant", Text: "The migration failed with an error."}}
	sendRequest(t, srv.sockPath, &nextline.Request{SessionID: "off", Messages: failed})
	time.Sleep(100 * time.Millisecond)
	state := sendRequest(t, srv.sockPath, &nextline.Request{Type: nextline.RequestState, SessionID: "off"})
	if state.State != nextline.StateIdle || state.Suggestion != nil {
		t.Fatalf("expected idle with suggestions disabled in config, got %s %+v", state.State, state.Suggestion)
	}

	on := true
	sendRequest(t, srv.sockPath, &nextline.Request{SessionID: "on", Messages: failed, Enabled: &on})
	got := watchUntil(t, srv.sockPath, "on", func(r *nextline.Response) bool {
		return r.State == nextline.StateHasSuggestion
	})
	if got.Suggestion.Source != nextline.SourceHeuristic {
		t.Errorf("expected heuristic source when the request enables suggestions, got %s", got.Suggestion.Source)
	}
}
