package memory

import (
	"context"
	"time"

	"github.com/ent0n29/financeai/internal/conversation"
	"github.com/ent0n29/financeai/internal/permissions"
)

// State is everything the assistant remembers about one session.
type State struct {
	Permissions   permissions.Set      `json:"permissions,omitempty"`
	History       conversation.History `json:"chat_history"`
	PermissionLog []permissions.Change `json:"permission_log,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Clone returns a copy that shares no maps or slices with s.
func (s State) Clone() State {
	out := State{
		Permissions: s.Permissions.Clone(),
		History:     s.History.Clone(),
		UpdatedAt:   s.UpdatedAt,
	}
	if s.PermissionLog != nil {
		out.PermissionLog = make([]permissions.Change, len(s.PermissionLog))
		copy(out.PermissionLog, s.PermissionLog)
	}
	return out
}

// Store persists session state. Load of an unknown session returns a zero State.
type Store interface {
	Load(ctx context.Context, sessionID string) (State, error)
	Save(ctx context.Context, sessionID string, state State) error
	Delete(ctx context.Context, sessionID string) error
	Close() error
}
