package generate

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CompletionText returns the part of suggestion still to be shown after the
// typed input. The match ignores case and surrounding whitespace of input.
// When the suggestion does not extend the input, the whole suggestion is
// returned.
func CompletionText(suggestion, input string) string {
	typed := strings.TrimSpace(input)
	if typed == "" {
		return suggestion
	}
	if n, ok := prefixFold(suggestion, typed); ok && n < len(suggestion) {
		return suggestion[n:]
	}
	return suggestion
}

func hasPrefixFold(s, prefix string) bool {
	_, ok := prefixFold(s, prefix)
	return ok
}

// prefixFold reports whether s starts with prefix ignoring case, and the
// byte length of the matching part of s.
func prefixFold(s, prefix string) (int, bool) {
	i := 0
	for _, pr := range prefix {
		if i >= len(s) {
			return 0, false
		}
		sr, size := utf8.DecodeRuneInString(s[i:])
		if unicode.ToLower(sr) != unicode.ToLower(pr) {
			return 0, false
		}
		i += size
	}
	return i, true
}
