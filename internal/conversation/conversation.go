// Package conversation models the role-tagged turns exchanged with the assistant.
package conversation

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message. Turns are never modified after they are appended.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// History is the ordered list of turns in a session.
type History []Turn

// Exchange returns a new history with the user query followed by the assistant reply.
// The receiver is not modified.
func (h History) Exchange(query, reply string, at time.Time) History {
	out := make(History, len(h), len(h)+2)
	copy(out, h)
	at = at.UTC()
	return append(out,
		Turn{Role: RoleUser, Content: query, CreatedAt: at},
		Turn{Role: RoleAssistant, Content: reply, CreatedAt: at},
	)
}

// Tail keeps the newest limit turns. A limit of 0 or less keeps everything.
func (h History) Tail(limit int) History {
	if limit <= 0 || len(h) <= limit {
		return h
	}
	out := make(History, limit)
	copy(out, h[len(h)-limit:])
	return out
}

// Clone returns an independent copy.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}
