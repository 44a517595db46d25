// Package session persists per-conversation history.
//
// A session is created implicitly on the first appended turn, holds an
// ordered (role, text) sequence capped at a configured maximum (oldest turns
// evicted first), and survives process restarts via PostgreSQL.
//
// Concurrency: appends to the same session must be serialized by holding the
// session's keyed mutex (see KeyedMutex) for the whole read-history /
// generate / append sequence. Different sessions never contend.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Valid turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single utterance in a conversation.
type Turn struct {
	Role      string
	Text      string
	CreatedAt time.Time
}

// Session describes one conversation.
type Session struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	LastActiveAt time.Time
	TurnCount    int
}

// NewUserTurn builds a user turn stamped now.
func NewUserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text, CreatedAt: time.Now()}
}

// NewAssistantTurn builds an assistant turn stamped now.
func NewAssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text, CreatedAt: time.Now()}
}
