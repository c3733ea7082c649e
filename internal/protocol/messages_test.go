package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageChat(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"chat_message","message":"How much did I spend last month?"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	chat, ok := msg.(ChatMessage)
	if !ok {
		t.Fatalf("message type = %T, want ChatMessage", msg)
	}
	if chat.Message != "How much did I spend last month?" {
		t.Fatalf("Message = %q", chat.Message)
	}
}

func TestParseClientMessageEmptyChatIsAccepted(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"chat_message"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if msg.(ChatMessage).Message != "" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestParseClientMessagePermissionUpdate(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"permission_update","category":"investments","has_access":false}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	update, ok := msg.(PermissionUpdate)
	if !ok {
		t.Fatalf("message type = %T, want PermissionUpdate", msg)
	}
	if update.Category != "investments" || update.HasAccess == nil || *update.HasAccess {
		t.Fatalf("unexpected update: %+v", update)
	}

	msg, err = ParseClientMessage([]byte(`{"type":"permission_update","category":"assets"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if msg.(PermissionUpdate).HasAccess != nil {
		t.Fatalf("absent has_access decoded as %v", *msg.(PermissionUpdate).HasAccess)
	}
}

func TestParseClientMessagePresetExclusive(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"permission_update","preset":"balanced","category":"assets"}`))
	if err == nil {
		t.Fatalf("expected error for preset combined with category")
	}
}

func TestParseClientMessageControl(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"clear_history"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if msg.(ClientControl).Action != ActionClearHistory {
		t.Fatalf("unexpected control: %+v", msg)
	}

	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"dance"}`)); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsBadJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{`)); err == nil {
		t.Fatalf("expected error for malformed frame")
	}
}
