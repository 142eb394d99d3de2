package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tastybites/storefront/internal/domain"
	"github.com/tastybites/storefront/internal/session"
	apperrors "github.com/tastybites/storefront/pkg/errors"
	"github.com/tastybites/storefront/pkg/httputil"
	"github.com/tastybites/storefront/pkg/logger"
	"github.com/tastybites/storefront/pkg/middleware"
)

var errNoSession = errors.New("request has no session id")

// SessionHandler runs identity transitions for the session.
type SessionHandler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// NewSessionHandler creates a session HTTP handler.
func NewSessionHandler(sessions *session.Manager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// SessionResponse is returned by the sign-in and sign-out endpoints.
type SessionResponse struct {
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id,omitempty"`
	Cart      *domain.Cart `json:"cart"`
}

// SignIn handles POST /api/v1/session/sign-in. The bearer token names the user.
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := middleware.SessionIDFromContext(ctx)
	if sessionID == "" {
		httputil.WriteError(w, r, apperrors.Internal(errNoSession), h.logger)
		return
	}
	userID := middleware.UserIDFromContext(ctx)
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	ctx = logger.WithUserID(ctx, userID)
	store := h.sessions.SignIn(ctx, sessionID, userID)
	httputil.WriteData(w, http.StatusOK, SessionResponse{
		SessionID: sessionID,
		UserID:    userID,
		Cart:      store.Cart(),
	})
}

// SignOut handles POST /api/v1/session/sign-out.
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		httputil.WriteError(w, r, apperrors.Internal(errNoSession), h.logger)
		return
	}

	store := h.sessions.SignOut(r.Context(), sessionID)
	httputil.WriteData(w, http.StatusOK, SessionResponse{
		SessionID: sessionID,
		Cart:      store.Cart(),
	})
}
