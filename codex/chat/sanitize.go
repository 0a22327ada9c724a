// Package chat cleans player supplied text before it is stored or fanned out.
package chat

import (
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/gosuda/codex-sync/codex/protocol"
)

const (
	MaxNameLength    = 24
	MaxMessageLength = 512
)

// Clients render chat as plain text, so both policies strip every tag.
var (
	namePolicy    = bluemonday.StrictPolicy()
	messagePolicy = bluemonday.StrictPolicy()
)

// SanitizeName strips markup from a game or player name and limits its length.
// The result may be empty.
func SanitizeName(name string) string {
	return clean(namePolicy, name, MaxNameLength)
}

// ValidName reports whether name is non-empty and unchanged by SanitizeName.
func ValidName(name string) bool {
	return name != "" && SanitizeName(name) == name
}

// Sanitize strips markup from a chat message and limits its length.
func Sanitize(message string) string {
	return clean(messagePolicy, message, MaxMessageLength)
}

func clean(p *bluemonday.Policy, s string, limit int) string {
	if s == "" {
		return ""
	}
	out := strings.TrimSpace(html.UnescapeString(p.Sanitize(html.UnescapeString(s))))
	if utf8.RuneCountInString(out) > limit {
		out = strings.TrimSpace(string([]rune(out)[:limit]))
	}
	return out
}

// Prepare stamps a chat line from sender. It reports false when nothing is left
// to say after sanitising.
func Prepare(sender string, m protocol.ChatMessage, now time.Time) (protocol.ChatMessage, bool) {
	out := protocol.ChatMessage{
		Sender:    sender,
		Recipient: SanitizeName(m.Recipient),
		Content:   Sanitize(m.Content),
		Timestamp: now.UnixMilli(),
	}
	return out, out.Content != ""
}
