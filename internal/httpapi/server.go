package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/financeai/internal/accounts"
	"github.com/ent0n29/financeai/internal/chat"
	"github.com/ent0n29/financeai/internal/config"
	"github.com/ent0n29/financeai/internal/observability"
	"github.com/ent0n29/financeai/internal/profiles"
	"github.com/ent0n29/financeai/internal/session"
)

const (
	sessionCookie    = "financeai_session"
	sessionHeader    = "X-Session-ID"
	oauthStateCookie = "financeai_oauth_state"
)

// Deps are the services the HTTP layer routes to. Google may be nil when OAuth is not configured.
type Deps struct {
	Config    config.Config
	Sessions  *session.Manager
	Chat      *chat.Service
	Accounts  *accounts.Service
	Profiles  *profiles.Service
	Google    *accounts.GoogleLogin
	Metrics   *observability.Metrics
	Logger    *slog.Logger
	StoreMode string
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	chat      *chat.Service
	accounts  *accounts.Service
	profiles  *profiles.Service
	google    *accounts.GoogleLogin
	metrics   *observability.Metrics
	logger    *slog.Logger
	storeMode string
	upgrader  websocket.Upgrader
}

func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := d.Config
	return &Server{
		cfg:       cfg,
		sessions:  d.Sessions,
		chat:      d.Chat,
		accounts:  d.Accounts,
		profiles:  d.Profiles,
		google:    d.Google,
		metrics:   d.Metrics,
		logger:    logger,
		storeMode: d.StoreMode,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/session", s.handleCreateSession)
	r.Post("/v1/session/{id}/end", s.handleEndSession)

	r.HandleFunc("/api/chat/", s.handleChat)
	r.HandleFunc("/api/chat/history/", s.handleChatHistory)
	r.Get("/api/chat/ws", s.handleChatWS)
	r.HandleFunc("/api/permissions/", s.handlePermissions)
	r.HandleFunc("/api/permissions/preset/", s.handleApplyPreset)
	r.Get("/api/permissions/presets/", s.handleListPresets)
	r.Get("/api/permissions/history/", s.handlePermissionHistory)

	r.HandleFunc("/api/register/", s.handleRegister)
	r.HandleFunc("/api/login/", s.handleLogin)
	r.HandleFunc("/api/logout/", s.handleLogout)
	r.HandleFunc("/api/financial-profile/", s.handleFinancialProfile)

	r.Get("/auth/google/login/", s.handleGoogleLogin)
	r.Get("/auth/google/callback/", s.handleGoogleCallback)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"store_mode":       s.storeMode,
		"finance_provider": s.cfg.FinanceProviderMode,
		"assistant_brain":  s.cfg.AssistantBrain,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
		"google_oauth":    s.google != nil,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = s.userIDFrom(r)
	}

	sess := s.sessions.Create(req.UserID)
	s.sessionCreated()
	setSessionCookie(w, sess.ID)

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

// resolveSession finds the caller's session from the X-Session-ID header, the session_id query
// parameter or the session cookie, creating one when none is active. The id is echoed back.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request) *session.Session {
	id := strings.TrimSpace(r.Header.Get(sessionHeader))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("session_id"))
	}
	if id == "" {
		if c, err := r.Cookie(sessionCookie); err == nil {
			id = c.Value
		}
	}
	sess, created := s.sessions.Resolve(id, s.userIDFrom(r))
	if created {
		s.sessionCreated()
	}
	if created || id != sess.ID {
		setSessionCookie(w, sess.ID)
	}
	w.Header().Set(sessionHeader, sess.ID)
	return sess
}

func (s *Server) sessionCreated() {
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()
}

// userIDFrom returns the authenticated user's id, or "anonymous".
func (s *Server) userIDFrom(r *http.Request) string {
	key := bearerToken(r)
	if key == "" || s.accounts == nil {
		return "anonymous"
	}
	u, err := s.accounts.Authenticate(r.Context(), key)
	if err != nil {
		return "anonymous"
	}
	return u.ID
}

// bearerToken accepts both "Token <key>" and "Bearer <key>".
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	for _, prefix := range []string{"Token ", "Bearer "} {
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			return strings.TrimSpace(h[len(prefix):])
		}
	}
	return ""
}

func setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusResponse is the {"status","message"} shape used by the chat and permission endpoints.
type statusResponse struct {
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	Permissions map[string]bool `json:"permissions,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondStatusError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, statusResponse{Status: "error", Message: message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	msg := "Only " + allowed[0] + " method is allowed."
	if len(allowed) > 1 {
		msg = "Only " + strings.Join(allowed, " and ") + " methods are allowed."
	}
	respondStatusError(w, http.StatusMethodNotAllowed, msg)
}
