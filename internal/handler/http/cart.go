package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tastybites/storefront/internal/cartstore"
	"github.com/tastybites/storefront/internal/session"
	apperrors "github.com/tastybites/storefront/pkg/errors"
	"github.com/tastybites/storefront/pkg/httputil"
	"github.com/tastybites/storefront/pkg/logger"
	"github.com/tastybites/storefront/pkg/middleware"
	"github.com/tastybites/storefront/pkg/validator"
)

// MaxQuantity bounds the quantity a single request may set or add.
const MaxQuantity = 100

// CartHandler serves the session's cart.
type CartHandler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// NewCartHandler creates a cart HTTP handler.
func NewCartHandler(sessions *session.Manager, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON body for adding a product. Quantity defaults to 1.
type AddItemRequest struct {
	ID       string   `json:"id" validate:"required,product_id"`
	Name     string   `json:"name" validate:"required,max=200"`
	Price    *float64 `json:"price" validate:"required,gte=0"`
	Quantity int      `json:"quantity" validate:"lte=100"`
}

// UpdateQuantityRequest is the JSON body for setting a line's quantity.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=1,lte=100"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, http.StatusOK, store.Cart())
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	store, ok := h.store(w, r)
	if !ok {
		return
	}
	store.AddItem(r.Context(), req.ID, req.Name, *req.Price, req.Quantity)
	httputil.WriteData(w, http.StatusOK, store.Cart())
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{id}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	store, ok := h.store(w, r)
	if !ok {
		return
	}
	store.UpdateQuantity(r.Context(), id, req.Quantity)
	httputil.WriteData(w, http.StatusOK, store.Cart())
}

// RemoveItem handles DELETE /api/v1/cart/items/{id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	store, ok := h.store(w, r)
	if !ok {
		return
	}
	store.RemoveItem(r.Context(), id)
	httputil.WriteData(w, http.StatusOK, store.Cart())
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	store.Clear(r.Context())
	httputil.WriteData(w, http.StatusOK, store.Cart())
}

// SyncCart handles POST /api/v1/cart/sync
func (h *CartHandler) SyncCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	store.Load(r.Context())
	httputil.WriteData(w, http.StatusOK, store.Cart())
}

// store resolves the session's cart store. A bearer identity that differs
// from the session's runs the sign-in transition first.
func (h *CartHandler) store(w http.ResponseWriter, r *http.Request) (*cartstore.Store, bool) {
	ctx := r.Context()
	sessionID := middleware.SessionIDFromContext(ctx)
	if sessionID == "" {
		httputil.WriteError(w, r, apperrors.Internal(errNoSession), h.logger)
		return nil, false
	}

	if userID := middleware.UserIDFromContext(ctx); userID != "" {
		ctx = logger.WithUserID(ctx, userID)
		return h.sessions.SignIn(ctx, sessionID, userID), true
	}
	return h.sessions.Store(ctx, sessionID), true
}

func itemID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := validator.Var(id, "required,product_id"); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid item id"), nil)
		return "", false
	}
	return id, true
}
