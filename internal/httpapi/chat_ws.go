package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/financeai/internal/chat"
	"github.com/ent0n29/financeai/internal/protocol"
	"github.com/ent0n29/financeai/internal/session"
)

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sess := s.resolveSession(w, r)

	conn, err := s.upgrader.Upgrade(w, r, w.Header())
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 32)
	outbound := make(chan any, 32)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		defer cancel()
		defer close(outbound)
		s.runChatConnection(ctx, sess, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbound {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				_ = conn.Close()
				// Drain so the runner never blocks on a dead connection.
				for range outbound {
				}
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
			}
		}
		// The runner is done; unblock the reader.
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			parsed = protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      "invalid_client_message",
				Detail:    err.Error(),
			}
		} else if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

// runChatConnection handles client frames one at a time, so a connection never has two turns
// in flight. Parse failures arrive already converted to error events and are echoed back.
func (s *Server) runChatConnection(ctx context.Context, sess *session.Session, inbound <-chan any, outbound chan<- any) {
	send := func(msg any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- msg:
			return true
		}
	}

	if !send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sess.ID, Code: "session_ready"}) {
		return
	}

	for {
		var raw any
		select {
		case <-ctx.Done():
			return
		case m, ok := <-inbound:
			if !ok {
				return
			}
			raw = m
		}

		switch msg := raw.(type) {
		case protocol.ErrorEvent:
			if !send(msg) {
				return
			}
		case protocol.ChatMessage:
			reply, err := s.chat.Chat(ctx, sess.ID, msg.Message)
			if err != nil {
				if !send(s.wsError(sess.ID, err)) {
					return
				}
				continue
			}
			if !send(protocol.AssistantReply{Type: protocol.TypeAssistantReply, SessionID: sess.ID, Reply: reply}) {
				return
			}
		case protocol.PermissionUpdate:
			var (
				perms map[string]bool
				err   error
			)
			if msg.Preset != "" {
				perms, err = s.chat.ApplyPreset(ctx, sess.ID, msg.Preset)
			} else {
				perms, err = s.chat.UpdatePermission(ctx, sess.ID, msg.Category, msg.HasAccess)
			}
			if err != nil {
				if !send(s.wsError(sess.ID, err)) {
					return
				}
				continue
			}
			if !send(protocol.PermissionsSnapshot{Type: protocol.TypePermissionsSnapshot, SessionID: sess.ID, Permissions: perms}) {
				return
			}
		case protocol.ClientControl:
			if !s.handleWSControl(ctx, sess, msg, send) {
				return
			}
		}
	}
}

func (s *Server) handleWSControl(ctx context.Context, sess *session.Session, msg protocol.ClientControl, send func(any) bool) bool {
	switch msg.Action {
	case protocol.ActionGetHistory:
		history, err := s.chat.History(ctx, sess.ID)
		if err != nil {
			return send(s.wsError(sess.ID, err))
		}
		return send(protocol.HistorySnapshot{Type: protocol.TypeHistorySnapshot, SessionID: sess.ID, History: history})
	case protocol.ActionClearHistory:
		if err := s.chat.ClearHistory(ctx, sess.ID); err != nil {
			return send(s.wsError(sess.ID, err))
		}
		return send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sess.ID, Code: "history_cleared"})
	case protocol.ActionEndSession:
		if _, err := s.sessions.End(sess.ID); err == nil {
			s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
			s.metrics.SessionEvents.WithLabelValues("ended").Inc()
		}
		send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sess.ID, Code: "session_ended"})
		return false
	}
	return true
}

func (s *Server) wsError(sessionID string, err error) protocol.ErrorEvent {
	ev := protocol.ErrorEvent{Type: protocol.TypeErrorEvent, SessionID: sessionID}
	var verr *chat.ValidationError
	switch {
	case errors.As(err, &verr):
		ev.Code, ev.Detail = "invalid_request", verr.Message
	case errors.Is(err, chat.ErrDependencyUnavailable):
		ev.Code, ev.Detail, ev.Retryable = "dependency_unavailable", chat.MsgDependencyFailure, true
	case errors.Is(err, session.ErrNotFound):
		ev.Code, ev.Detail = "session_not_found", "Session not found."
	default:
		s.logger.Error("websocket chat failed", "session_id", sessionID, "error", err)
		ev.Code, ev.Detail = "internal", msgInternal
	}
	return ev
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ChatMessage:
		return m.Type, true
	case protocol.PermissionUpdate:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantReply:
		return m.Type, true
	case protocol.PermissionsSnapshot:
		return m.Type, true
	case protocol.HistorySnapshot:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
