// Command nextlined is the nextline daemon.
// It listens on a Unix domain socket for conversation updates from UI
// clients and publishes a predicted next input for each chat session.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time via -ldflags.
var Version = "dev"

const usage = `nextlined predicts the next prompt for each chat session of a UI client.

Clients write one JSON request per line to the Unix socket: "update" with the
conversation and the text typed so far, then "state" or "watch" to read the
suggestion, and "accept", "dismiss" or "clear_cache" to act on it. Config
requests ({"action": "reload"}, "get", "validate", ...) manage config.json.

Usage:
  nextlined [flags]

Flags:
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("verbose", false, "log every request, evaluation and response to stderr")
	socket := flag.String("socket", "", "socket path (default $NEXTLINE_SOCKET, then $XDG_RUNTIME_DIR/nextline.sock)")
	flag.Parse()

	if *showVersion {
		fmt.Println("nextlined", Version)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	socketPath := *socket
	if socketPath == "" {
		socketPath = resolveSocketPath()
	}

	srv, err := NewServer(socketPath)
	if err != nil {
		slog.Error("failed to start server", "socket", socketPath, "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	// Closing the server tears down every session, cancelling in-flight
	// generation requests, and removes the socket file.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		srv.Close()
		os.Exit(0)
	}()

	slog.Info("accepting sessions", "socket", socketPath, "version", Version)
	if err := srv.Serve(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// resolveSocketPath picks the socket: $NEXTLINE_SOCKET, then the per-user
// runtime dir, then a uid-scoped path in /tmp.
func resolveSocketPath() string {
	if path := os.Getenv("NEXTLINE_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/nextline.sock"
	}
	return fmt.Sprintf("/tmp/nextline-%d.sock", os.Getuid())
}
