// Package session persists conversation history in PostgreSQL.
//
// A session is identified by a caller-chosen string ID and holds an ordered
// list of turns. Turns are appended in user/assistant pairs inside one
// transaction with a per-session row lock, so concurrent writers cannot
// interleave sequence numbers or tear an exchange in half.
package session

import (
	"strings"
)

// Turn roles. Only these two appear in stored history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single message in a conversation.
type Turn struct {
	Role    string
	Content string
}

// Session describes a stored conversation.
type Session struct {
	ID        string
	TurnCount int
}

// FormatTurns renders turns as "role: content" lines for prompt injection.
func FormatTurns(turns []Turn) string {
	lines := make([]string, len(turns))
	for i, turn := range turns {
		lines[i] = turn.Role + ": " + turn.Content
	}
	return strings.Join(lines, "\n")
}
