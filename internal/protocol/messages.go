package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/financeai/internal/conversation"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatMessage         MessageType = "chat_message"
	TypePermissionUpdate    MessageType = "permission_update"
	TypeClientControl       MessageType = "client_control"
	TypeAssistantReply      MessageType = "assistant_reply"
	TypePermissionsSnapshot MessageType = "permissions_snapshot"
	TypeHistorySnapshot     MessageType = "history_snapshot"
	TypeSystemEvent         MessageType = "system_event"
	TypeErrorEvent          MessageType = "error_event"
)

// Client control actions.
const (
	ActionClearHistory = "clear_history"
	ActionGetHistory   = "get_history"
	ActionEndSession   = "end_session"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ChatMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// PermissionUpdate carries either a single category toggle or a preset id.
type PermissionUpdate struct {
	Type      MessageType `json:"type"`
	Category  string      `json:"category,omitempty"`
	HasAccess *bool       `json:"has_access,omitempty"`
	Preset    string      `json:"preset,omitempty"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type AssistantReply struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Reply     string      `json:"reply"`
	Refused   bool        `json:"refused,omitempty"`
}

type PermissionsSnapshot struct {
	Type        MessageType     `json:"type"`
	SessionID   string          `json:"session_id"`
	Permissions map[string]bool `json:"permissions"`
}

type HistorySnapshot struct {
	Type      MessageType          `json:"type"`
	SessionID string               `json:"session_id"`
	History   conversation.History `json:"history"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes one inbound frame. Message text is not validated here; empty chat
// messages are rejected by the chat service with the same error as the HTTP endpoint.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypePermissionUpdate:
		var msg PermissionUpdate
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Preset != "" && (msg.Category != "" || msg.HasAccess != nil) {
			return nil, errors.New("invalid permission_update: preset and category are exclusive")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch strings.TrimSpace(msg.Action) {
		case ActionClearHistory, ActionGetHistory, ActionEndSession:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
