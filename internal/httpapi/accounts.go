package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/ent0n29/financeai/internal/accounts"
	"github.com/ent0n29/financeai/internal/profiles"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req accounts.RegisterRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "errors": map[string][]string{"detail": {"Invalid JSON."}}})
		return
	}
	if _, err := s.accounts.Register(r.Context(), req); err != nil {
		var fe accounts.FieldErrors
		if errors.As(err, &fe) {
			respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "errors": fe})
			return
		}
		s.logger.Error("register failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "errors": map[string][]string{"detail": {msgInternal}}})
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "User registered successfully."})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req accounts.LoginRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON."})
		return
	}
	res, err := s.accounts.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid Credentials"})
			return
		}
		s.logger.Error("login failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": msgInternal})
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if err := s.accounts.Logout(r.Context(), bearerToken(r)); err != nil {
		s.logger.Error("logout failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"detail": msgInternal})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"detail": "Successfully logged out."})
}

func (s *Server) handleFinancialProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		all, err := s.profiles.List(r.Context())
		if err != nil {
			s.logger.Error("list financial profiles failed", "error", err)
			respondJSON(w, http.StatusInternalServerError, map[string]string{"detail": msgInternal})
			return
		}
		respondJSON(w, http.StatusOK, all)
	case http.MethodPost:
		var req profiles.CreateRequest
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			respondJSON(w, http.StatusBadRequest, map[string][]string{"detail": {"Invalid JSON."}})
			return
		}
		p, err := s.profiles.Create(r.Context(), req)
		if err != nil {
			var fe profiles.FieldErrors
			if errors.As(err, &fe) {
				respondJSON(w, http.StatusBadRequest, fe)
				return
			}
			s.logger.Error("create financial profile failed", "error", err)
			respondJSON(w, http.StatusInternalServerError, map[string]string{"detail": msgInternal})
			return
		}
		respondJSON(w, http.StatusCreated, p)
	default:
		methodNotAllowed(w, http.MethodPost, http.MethodGet)
	}
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.google == nil {
		respondStatusError(w, http.StatusServiceUnavailable, "Google login is not configured.")
		return
	}
	state := s.google.NewState()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/google/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.google.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.google == nil {
		respondStatusError(w, http.StatusServiceUnavailable, "Google login is not configured.")
		return
	}
	issued := ""
	if c, err := r.Cookie(oauthStateCookie); err == nil {
		issued = c.Value
	}
	q := r.URL.Query()
	if err := s.google.VerifyCallback(issued, q.Get("state"), q.Get("code")); err != nil {
		s.logger.Warn("google callback rejected", "error", err)
		respondStatusError(w, http.StatusBadRequest, "Invalid Google login response.")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/auth/google/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusFound)
}
