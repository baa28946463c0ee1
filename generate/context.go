package generate

import (
	"strings"
	"unicode"
	"unicode/utf8"

	nextline "github.com/Paranoid-AF/nextline"
	"github.com/Paranoid-AF/nextline/redact"
)

// contextMessageRunes caps each message in the generation context.
const contextMessageRunes = 800

// ConversationContext reduces history to at most maxMessages of its most
// recent messages, rendered as "Role: text" lines. Messages without text are
// skipped. With redactSecrets set, each text passes through redact.Text.
func ConversationContext(history []nextline.Message, maxMessages int, redactSecrets bool) []string {
	if maxMessages <= 0 || len(history) == 0 {
		return nil
	}
	start := len(history) - maxMessages
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, len(history)-start)
	for _, m := range history[start:] {
		text := strings.TrimSpace(m.PlainText())
		if text == "" {
			continue
		}
		if redactSecrets {
			text = redact.Text(text)
		}
		text = truncateRunes(text, contextMessageRunes)
		lines = append(lines, roleLabel(m.Role)+": "+text)
	}
	return lines
}

func roleLabel(role string) string {
	switch role {
	case "user":
		return "User"
	case "assistant":
		return "Assistant"
	case "":
		return "Message"
	default:
		r, size := utf8.DecodeRuneInString(role)
		return string(unicode.ToUpper(r)) + role[size:]
	}
}
