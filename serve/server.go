package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	nextline "github.com/Paranoid-AF/nextline"
	defaults "github.com/Paranoid-AF/nextline/default"
	"github.com/Paranoid-AF/nextline/generate"
)

const (
	sessionIdleTTL = 30 * time.Minute
	maxSessions    = 64
	maxRequestSize = 4 << 20
)

// Suggester is the per-session suggestion engine.
type Suggester interface {
	Update(history []nextline.Message, input string, enabled bool)
	Accept() (string, bool)
	Dismiss()
	ClearCache()
	Snapshot() nextline.Snapshot
	Watch() (<-chan struct{}, func())
	Close()
}

// Factory creates the Suggester for a new session.
type Factory func() Suggester

// Server listens on a Unix domain socket for suggestion requests. Each
// session gets its own Suggester; idle sessions expire and are closed.
type Server struct {
	listener net.Listener
	sockPath string

	mu       sync.Mutex
	factory  Factory
	enabled  bool // applied when a request omits "enabled"
	sessions *ttlcache.Cache[string, Suggester]
}

// NewServer creates a new IPC server bound to the given socket path.
func NewServer(sockPath string) (*Server, error) {
	factory, enabled := engineFactory()
	srv, err := NewServerWithFactory(sockPath, factory)
	if err != nil {
		return nil, err
	}
	srv.enabled = enabled
	return srv, nil
}

// NewServerWithFactory creates a new IPC server with a custom Suggester factory.
// Suggestions are enabled unless a request says otherwise.
func NewServerWithFactory(sockPath string, factory Factory) (*Server, error) {
	// Remove stale socket file if it exists
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	sessions := ttlcache.New[string, Suggester](
		ttlcache.WithTTL[string, Suggester](sessionIdleTTL),
		ttlcache.WithCapacity[string, Suggester](maxSessions),
	)
	sessions.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, Suggester]) {
		slog.Debug("session closed", "session", item.Key(), "reason", reason)
		item.Value().Close()
	})
	go sessions.Start()

	return &Server{
		listener: listener,
		sockPath: sockPath,
		factory:  factory,
		enabled:  true,
		sessions: sessions,
	}, nil
}

// engineFactory loads the configuration once and returns a factory that
// builds coordinators sharing the same sources, plus the configured
// suggestion.enabled switch.
func engineFactory() (Factory, bool) {
	cfg, err := nextline.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = nextline.DefaultConfig()
	}
	for _, w := range nextline.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}
	opts := generate.OptionsFromConfig(cfg)
	sources := generate.NewSources(cfg)
	return func() Suggester {
		return generate.NewCoordinator(opts, sources)
	}, nextline.SuggestionsEnabled(cfg)
}

// Serve accepts connections and handles requests.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close shuts down the server, closes every session and removes the socket file.
func (s *Server) Close() {
	s.listener.Close()
	s.sessions.Stop()
	s.sessions.DeleteAll()
	os.Remove(s.sockPath)
}

// session returns the Suggester for id, creating it when create is set.
// A lookup refreshes the session's idle timer.
func (s *Server) session(id string, create bool) Suggester {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.sessions.Get(id); item != nil {
		return item.Value()
	}
	if !create {
		return nil
	}
	sug := s.factory()
	s.sessions.Set(id, sug, ttlcache.DefaultTTL)
	slog.Debug("session opened", "session", id)
	return sug
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestSize)
	if !scanner.Scan() {
		return
	}

	raw := scanner.Bytes()
	slog.Debug("request", "data", string(raw))

	// Check if this is a config request (has "action" field)
	var cfgReq nextline.ConfigRequest
	if err := json.Unmarshal(raw, &cfgReq); err == nil && cfgReq.Action != "" {
		s.handleConfigRequest(conn, &cfgReq)
		return
	}

	var req nextline.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("invalid request", "error", err)
		writeJSON(conn, &nextline.Response{
			State: nextline.StateIdle,
			Error: &nextline.Error{Code: "invalid_request", Message: err.Error()},
		})
		return
	}
	if req.SessionID == "" {
		writeJSON(conn, &nextline.Response{
			State: nextline.StateIdle,
			Error: &nextline.Error{Code: "invalid_request", Message: "session_id is required"},
		})
		return
	}

	if req.Type == nextline.RequestWatch {
		s.handleWatch(conn, &req)
		return
	}
	writeJSON(conn, s.handleRequest(&req))
}

// handleRequest applies a single-response request to its session.
func (s *Server) handleRequest(req *nextline.Request) *nextline.Response {
	sid := req.SessionID

	switch req.Type {
	case "", nextline.RequestUpdate:
		sug := s.session(sid, true)
		enabled := s.suggestionsEnabled()
		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		sug.Update(req.Messages, req.Input, enabled)
		return nextline.ResponseFromSnapshot(sid, sug.Snapshot())

	case nextline.RequestState:
		sug := s.session(sid, false)
		if sug == nil {
			return nextline.ResponseFromSnapshot(sid, nextline.Snapshot{})
		}
		return nextline.ResponseFromSnapshot(sid, sug.Snapshot())

	case nextline.RequestAccept:
		sug := s.session(sid, false)
		if sug == nil {
			return nextline.ResponseFromSnapshot(sid, nextline.Snapshot{})
		}
		text, _ := sug.Accept()
		resp := nextline.ResponseFromSnapshot(sid, sug.Snapshot())
		resp.Accepted = text
		return resp

	case nextline.RequestDismiss:
		sug := s.session(sid, false)
		if sug == nil {
			return nextline.ResponseFromSnapshot(sid, nextline.Snapshot{})
		}
		sug.Dismiss()
		return nextline.ResponseFromSnapshot(sid, sug.Snapshot())

	case nextline.RequestClearCache:
		sug := s.session(sid, false)
		if sug == nil {
			return nextline.ResponseFromSnapshot(sid, nextline.Snapshot{})
		}
		sug.ClearCache()
		return nextline.ResponseFromSnapshot(sid, sug.Snapshot())

	case nextline.RequestClose:
		s.mu.Lock()
		s.sessions.Delete(sid)
		s.mu.Unlock()
		return nextline.ResponseFromSnapshot(sid, nextline.Snapshot{})

	default:
		return &nextline.Response{
			SessionID: sid,
			State:     nextline.StateIdle,
			Error: &nextline.Error{
				Code:    "unknown_type",
				Message: "unknown request type: " + req.Type,
			},
		}
	}
}

// handleWatch streams one response line per published change until the
// client disconnects or the session is closed.
func (s *Server) handleWatch(conn net.Conn, req *nextline.Request) {
	sug := s.session(req.SessionID, true)
	changes, stop := sug.Watch()
	defer stop()

	// The client sends nothing more; EOF means it went away.
	gone := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := conn.Read(buf); err != nil {
				close(gone)
				return
			}
		}
	}()

	var last uint64
	sent := false
	for {
		snap := sug.Snapshot()
		if !sent || snap.Version != last {
			if !writeJSON(conn, nextline.ResponseFromSnapshot(req.SessionID, snap)) {
				return
			}
			last, sent = snap.Version, true
		}
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		case <-gone:
			return
		}
	}
}

func (s *Server) handleConfigRequest(conn net.Conn, req *nextline.ConfigRequest) {
	var resp nextline.ConfigResponse

	switch req.Action {
	case "get":
		cfg, err := nextline.LoadConfig()
		if err != nil {
			resp.Error = &nextline.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
		} else {
			resp.Config = cfg
		}

	case "reload":
		cfg, err := nextline.LoadConfig()
		if err != nil {
			resp.Error = &nextline.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
			break
		}
		s.reloadEngine(engineFactory())
		resp.Config = cfg

	case "defaults":
		resp.Config = nextline.DefaultConfig()

	case "default_prompt":
		resp.Prompt = defaults.DefaultPrompt

	case "validate":
		cfg, err := nextline.LoadConfig()
		if err != nil {
			resp.Error = &nextline.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
		} else {
			resp.Warnings = nextline.ValidateConfig(cfg)
		}

	default:
		resp.Error = &nextline.Error{
			Code:    "unknown_action",
			Message: "unknown config action: " + req.Action,
		}
	}

	writeJSON(conn, &resp)
}

// reloadEngine swaps the factory and closes every open session so the next
// request builds a coordinator with the new configuration.
func (s *Server) reloadEngine(factory Factory, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.factory = factory
	s.enabled = enabled
	s.sessions.DeleteAll()
	slog.Info("engine reloaded")
}

func (s *Server) suggestionsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// writeJSON writes v as one line and reports whether the write succeeded.
func writeJSON(conn net.Conn, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return false
	}

	slog.Debug("response", "data", string(data))

	_, err = conn.Write(append(data, '\n'))
	return err == nil
}
