package repository

import (
	"context"

	"github.com/tastybites/storefront/internal/domain"
)

// CartRecordRepository is the remote, per-user cart record store.
type CartRecordRepository interface {
	// Get returns the user's record, or an apperrors.NotFound error when the
	// user has never saved a cart.
	Get(ctx context.Context, userID string) (*domain.CartRecord, error)

	// Upsert inserts or replaces the user's record. There is at most one
	// record per user.
	Upsert(ctx context.Context, record *domain.CartRecord) error
}

// LocalStorage is a key-value blob store standing in for browser-local
// storage. Read returns an apperrors.NotFound error for a missing key.
type LocalStorage interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// LocalSnapshot is the cart state last mirrored to local storage. UserID is
// empty when the cart belonged to a guest.
type LocalSnapshot struct {
	UserID string
	Items  []domain.CartItem
}

// CartMirror keeps a session's last known cart state in local storage.
type CartMirror interface {
	// Load returns the mirrored state; a missing or unreadable entry yields an
	// empty snapshot.
	Load(ctx context.Context) (LocalSnapshot, error)
	Store(ctx context.Context, snapshot LocalSnapshot) error
	Delete(ctx context.Context) error
}

// GuestCartRepository exposes the guest cart held in local storage without
// leaking the storage envelope to the merge logic.
type GuestCartRepository interface {
	// ReadGuestCart returns the guest cart, or an empty slice when there is
	// none or it cannot be parsed.
	ReadGuestCart(ctx context.Context) ([]domain.CartItem, error)

	// ClearGuestCart deletes the guest cart entry entirely.
	ClearGuestCart(ctx context.Context) error
}
