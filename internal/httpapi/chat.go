package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ent0n29/financeai/internal/chat"
	"github.com/ent0n29/financeai/internal/permissions"
	"github.com/ent0n29/financeai/internal/session"
)

const msgInternal = "An internal server error occurred."

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type permissionRequest struct {
	Category  string `json:"category"`
	HasAccess *bool  `json:"has_access"`
}

type presetRequest struct {
	Preset string `json:"preset"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondStatusError(w, http.StatusBadRequest, "Invalid JSON.")
		return
	}
	sess := s.resolveSession(w, r)

	reply, err := s.chat.Chat(r.Context(), sess.ID, req.Message)
	if err != nil {
		s.respondChatError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sess := s.resolveSession(w, r)
		history, err := s.chat.History(r.Context(), sess.ID)
		if err != nil {
			s.respondChatError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"history": history})
	case http.MethodDelete:
		sess := s.resolveSession(w, r)
		if err := s.chat.ClearHistory(r.Context(), sess.ID); err != nil {
			s.respondChatError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Chat history cleared."})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sess := s.resolveSession(w, r)
		perms, err := s.chat.Permissions(r.Context(), sess.ID)
		if err != nil {
			s.respondChatError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"permissions": perms})
	case http.MethodPost:
		var req permissionRequest
		if err := decodeJSON(r, &req); err != nil {
			respondStatusError(w, http.StatusBadRequest, "Invalid JSON.")
			return
		}
		sess := s.resolveSession(w, r)
		perms, err := s.chat.UpdatePermission(r.Context(), sess.ID, req.Category, req.HasAccess)
		if err != nil {
			s.respondChatError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, statusResponse{
			Status:      "success",
			Message:     "Permissions for " + strings.TrimSpace(req.Category) + " updated.",
			Permissions: perms,
		})
	default:
		methodNotAllowed(w, http.MethodPost, http.MethodGet)
	}
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req presetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondStatusError(w, http.StatusBadRequest, "Invalid JSON.")
		return
	}
	sess := s.resolveSession(w, r)
	perms, err := s.chat.ApplyPreset(r.Context(), sess.ID, req.Preset)
	if err != nil {
		s.respondChatError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{
		Status:      "success",
		Message:     "Applied " + strings.TrimSpace(req.Preset) + " preset.",
		Permissions: perms,
	})
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := permissions.Presets()
	if err != nil {
		s.logger.Error("load presets failed", "error", err)
		respondStatusError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"presets": presets})
}

func (s *Server) handlePermissionHistory(w http.ResponseWriter, r *http.Request) {
	sess := s.resolveSession(w, r)
	changes, err := s.chat.PermissionLog(r.Context(), sess.ID)
	if err != nil {
		s.respondChatError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"history": changes})
}

func (s *Server) respondChatError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *chat.ValidationError
	switch {
	case errors.As(err, &verr):
		respondStatusError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, chat.ErrDependencyUnavailable):
		respondJSON(w, http.StatusInternalServerError, chatResponse{Reply: chat.MsgDependencyFailure})
	case errors.Is(err, session.ErrNotFound):
		respondStatusError(w, http.StatusNotFound, "Session not found.")
	default:
		s.logger.Error("chat request failed", "path", r.URL.Path, "error", err)
		respondStatusError(w, http.StatusInternalServerError, msgInternal)
	}
}
