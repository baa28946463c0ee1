package generate

import "testing"

func TestCompletionText(t *testing.T) {
	tests := []struct {
		suggestion, input, want string
	}{
		{"Run the tests", "", "Run the tests"},
		{"Run the tests", "Run", " the tests"},
		{"Run the tests", "run THE", " tests"},
		{"Run the tests", "  Run ", " the tests"},
		{"Run the tests", "Run the tests", "Run the tests"},
		{"Run the tests", "xyz", "Run the tests"},
		{"修复这个错误", "修复", "这个错误"},
	}
	for _, tt := range tests {
		if got := CompletionText(tt.suggestion, tt.input); got != tt.want {
			t.Errorf("CompletionText(%q, %q) = %q, want %q", tt.suggestion, tt.input, got, tt.want)
		}
	}
}

func TestHasPrefixFold(t *testing.T) {
	tests := []struct {
		s, prefix string
		want      bool
	}{
		{"Run the tests", "run", true},
		{"Run the tests", "RUN THE TESTS", true},
		{"Run the tests", "Run the tests now", false},
		{"Run the tests", "xyz", false},
		{"Run the tests", "", true},
	}
	for _, tt := range tests {
		if got := hasPrefixFold(tt.s, tt.prefix); got != tt.want {
			t.Errorf("hasPrefixFold(%q, %q) = %v, want %v", tt.s, tt.prefix, got, tt.want)
		}
	}
}
