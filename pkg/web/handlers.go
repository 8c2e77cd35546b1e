package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/login"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// stateCookieName carries the state value across the provider round trip
// so the callback can be tied to the browser that started it
const stateCookieName = "gatehouse_state"

// Options configures cookie behavior
type Options struct {
	// SecureCookies should only be disabled for local development over
	// plain HTTP
	SecureCookies bool
	// StateTTL bounds the state-carrier cookie; align with the state
	// store TTL
	StateTTL time.Duration
	// SessionTTL bounds the session cookie; align with the session
	// manager TTL
	SessionTTL time.Duration
}

// Handlers handles authentication HTTP requests
type Handlers struct {
	flow     *login.Flow
	sessions SessionValidator
	logger   *observability.Logger
	opts     Options
}

// NewHandlers creates an authentication handlers instance
func NewHandlers(flow *login.Flow, sessions SessionValidator, logger *observability.Logger, opts Options) *Handlers {
	if opts.StateTTL <= 0 {
		opts.StateTTL = login.DefaultStateTTL
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &Handlers{
		flow:     flow,
		sessions: sessions,
		logger:   logger.WithComponent("web"),
		opts:     opts,
	}
}

// RegisterRoutes registers authentication routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.handleLogin).Methods("GET")
	router.HandleFunc("/auth/callback", h.handleCallback).Methods("GET")
	router.HandleFunc("/auth/logout", h.handleLogout).Methods("POST")

	authenticated := NewSessionMiddleware(h.sessions, false)
	router.Handle("/auth/me", authenticated.Handler(http.HandlerFunc(h.handleMe))).Methods("GET")
}

// handleLogin handles GET /auth/login
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	redirectTarget := r.URL.Query().Get("redirect")

	authURL, attempt, err := h.flow.BeginLogin(r.Context(), redirectTarget)
	if err != nil {
		h.logger.WithError(err).Error("failed to begin login")
		errorResponse(w, http.StatusInternalServerError, "login unavailable")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    attempt.State,
		Path:     "/auth",
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.opts.StateTTL.Seconds()),
	})

	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback handles GET /auth/callback
func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// The provider reports user-denied consent and its own failures via
	// the error parameter instead of a code.
	if providerErr := query.Get("error"); providerErr != "" {
		h.logger.WithField("provider_error", providerErr).Warn("provider returned error on callback")
		h.clearCookie(w, stateCookieName, "/auth")
		errorResponse(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	state := query.Get("state")
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value != state {
		errorResponse(w, http.StatusBadRequest, "authentication failed")
		return
	}

	result, err := h.flow.HandleCallback(r.Context(), state, query.Get("code"))
	h.clearCookie(w, stateCookieName, "/auth")
	if err != nil {
		outcome := login.Outcome(err)
		h.logger.WithError(err).WithField("outcome", outcome).Warn("callback failed")
		errorResponse(w, callbackStatus(outcome), "authentication failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    result.Session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.opts.SessionTTL.Seconds()),
	})

	http.Redirect(w, r, result.RedirectTarget, http.StatusFound)
}

// handleLogout handles POST /auth/logout
func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.sessions.Revoke(r.Context(), cookie.Value); err != nil {
			h.logger.WithError(err).Error("failed to revoke session")
			errorResponse(w, http.StatusInternalServerError, "logout failed")
			return
		}
	}

	// Logout without a session still clears the cookie and succeeds.
	h.clearCookie(w, SessionCookieName, "/")
	w.WriteHeader(http.StatusNoContent)
}

// handleMe handles GET /auth/me
func (h *Handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r)
	if user == nil {
		unauthorizedResponse(w, "authentication required")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *Handlers) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// callbackStatus maps a callback outcome to an HTTP status. Responses stay
// generic; the outcome detail goes to logs and metrics only.
func callbackStatus(outcome string) int {
	switch outcome {
	case "invalid_state":
		return http.StatusBadRequest
	case "token_invalid":
		return http.StatusUnauthorized
	case "exchange_failed":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
