// Package persist stores a session's cart in local storage using the same
// envelope the storefront's browser client writes:
//
//	{"state":{"items":[...]},"version":0}
//
// A cart mirrored while a user was signed in also carries "user_id" inside
// "state"; only entries without it count as a guest cart.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tastybites/storefront/internal/domain"
	"github.com/tastybites/storefront/internal/repository"
	apperrors "github.com/tastybites/storefront/pkg/errors"
)

// StorageKey is the fixed name of the cart slice in local storage.
const StorageKey = "cart-storage"

const envelopeVersion = 0

type envelope struct {
	State   state `json:"state"`
	Version int   `json:"version"`
}

type state struct {
	Items  []domain.CartItem `json:"items"`
	UserID string            `json:"user_id,omitempty"`
}

// LocalCart is one session's cart entry in local storage. It serves both as
// the store's mirror and as the guest cart repository.
type LocalCart struct {
	storage repository.LocalStorage
	key     string
	logger  *slog.Logger
}

var (
	_ repository.CartMirror          = (*LocalCart)(nil)
	_ repository.GuestCartRepository = (*LocalCart)(nil)
)

// NewLocalCart binds the cart entry of sessionID.
func NewLocalCart(storage repository.LocalStorage, sessionID string, logger *slog.Logger) *LocalCart {
	return &LocalCart{
		storage: storage,
		key:     Key(sessionID),
		logger:  logger,
	}
}

// Key returns the storage key of a session's cart entry.
func Key(sessionID string) string {
	return fmt.Sprintf("session:%s:%s", sessionID, StorageKey)
}

// Load returns the mirrored cart. Missing or malformed entries read as empty.
func (c *LocalCart) Load(ctx context.Context) (repository.LocalSnapshot, error) {
	st, err := c.read(ctx)
	if err != nil {
		return repository.LocalSnapshot{}, err
	}
	return repository.LocalSnapshot{UserID: st.UserID, Items: st.Items}, nil
}

// Store writes snapshot as the session's cart entry.
func (c *LocalCart) Store(ctx context.Context, snapshot repository.LocalSnapshot) error {
	items := snapshot.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	data, err := json.Marshal(envelope{
		State:   state{Items: items, UserID: snapshot.UserID},
		Version: envelopeVersion,
	})
	if err != nil {
		return fmt.Errorf("encode local cart: %w", err)
	}
	if err := c.storage.Write(ctx, c.key, data); err != nil {
		return fmt.Errorf("write local cart: %w", err)
	}
	return nil
}

// Delete removes the entry.
func (c *LocalCart) Delete(ctx context.Context) error {
	if err := c.storage.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("delete local cart: %w", err)
	}
	return nil
}

// ReadGuestCart returns the guest cart. An entry owned by a signed-in user is
// not a guest cart and reads as empty.
func (c *LocalCart) ReadGuestCart(ctx context.Context) ([]domain.CartItem, error) {
	st, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	if st.UserID != "" {
		return []domain.CartItem{}, nil
	}
	return st.Items, nil
}

// ClearGuestCart deletes the entry entirely so the next guest starts clean.
func (c *LocalCart) ClearGuestCart(ctx context.Context) error {
	return c.Delete(ctx)
}

// read decodes the entry. Only storage failures are returned as errors.
func (c *LocalCart) read(ctx context.Context) (state, error) {
	empty := state{Items: []domain.CartItem{}}

	data, err := c.storage.Read(ctx, c.key)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return empty, nil
		}
		return empty, fmt.Errorf("read local cart: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.WarnContext(ctx, "discarding unreadable local cart",
			slog.String("key", c.key),
			slog.String("error", err.Error()),
		)
		return empty, nil
	}

	items := make([]domain.CartItem, 0, len(env.State.Items))
	for _, item := range env.State.Items {
		if item.ID == "" || item.Quantity < 1 {
			continue
		}
		items = append(items, item)
	}
	// Duplicate ids are summed into one line.
	return state{Items: domain.MergeItems(nil, items), UserID: env.State.UserID}, nil
}
