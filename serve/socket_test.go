package main

import (
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestResolveSocketFromNEXTLINE_SOCKET(t *testing.T) {
	t.Setenv("NEXTLINE_SOCKET", "/custom/nextline.sock")
	got := resolveSocketPath()
	if got != "/custom/nextline.sock" {
		t.Errorf("expected /custom/nextline.sock, got %s", got)
	}
}

func TestResolveSocketPath(t *testing.T) {
	tests := []struct {
		name     string
		envSetup func(t *testing.T)
		expected string
	}{
		{
			name: "NEXTLINE_SOCKET",
			envSetup: func(t *testing.T) {
				t.Setenv("NEXTLINE_SOCKET", "/custom/nextline.sock")
			},
			expected: "/custom/nextline.sock",
		},
		{
			name: "XDG_RUNTIME_DIR",
			envSetup: func(t *testing.T) {
				t.Setenv("NEXTLINE_SOCKET", "")
				t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
			},
			expected: "/run/user/1000/nextline.sock",
		},
		{
			name: "fallback",
			envSetup: func(t *testing.T) {
				t.Setenv("NEXTLINE_SOCKET", "")
				t.Setenv("XDG_RUNTIME_DIR", "")
			},
			expected: fmt.Sprintf("/tmp/nextline-%d.sock", os.Getuid()),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.envSetup(t)
			got := resolveSocketPath()
			if got != tt.expected {
				t.Errorf("resolveSocketPath() = %s, expected %s", got, tt.expected)
			}
		})
	}
}

func TestUsageDescribesProtocol(t *testing.T) {
	for _, word := range []string{"update", "state", "watch", "accept", "dismiss", "clear_cache", "reload"} {
		if !strings.Contains(usage, word) {
			t.Errorf("usage does not mention %q", word)
		}
	}
}
