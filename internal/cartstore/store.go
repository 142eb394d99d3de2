// Package cartstore holds the authoritative in-session cart. Every mutation is
// applied in memory first, mirrored to local storage, and then persisted to the
// remote cart record in the background. Replica failures are logged and never
// reach the caller.
package cartstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tastybites/storefront/internal/domain"
	"github.com/tastybites/storefront/internal/repository"
)

const defaultSyncTimeout = 5 * time.Second

// EventPublisher announces replica changes to the rest of the storefront.
type EventPublisher interface {
	PublishCartSynced(ctx context.Context, userID string, items []domain.CartItem) error
	PublishCartMerged(ctx context.Context, userID string, guestLines int, items []domain.CartItem) error
}

// Config wires a Store to its replicas.
type Config struct {
	Remote repository.CartRecordRepository
	Mirror repository.CartMirror
	Guest  repository.GuestCartRepository

	// Events is optional.
	Events EventPublisher

	// SyncTimeout bounds each remote fetch and upsert.
	SyncTimeout time.Duration
}

// Store is one session's cart. It is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	items []domain.CartItem
	user  string
	gen   uint64

	// transition serializes sign-in and sign-out, and holds mutations back
	// while either runs.
	transition sync.Mutex
	// mirrorMu keeps local writes in mutation order.
	mirrorMu sync.Mutex

	syncMu   sync.Mutex
	pending  bool
	running  bool
	syncCtx  context.Context
	syncDone chan struct{}

	remote      repository.CartRecordRepository
	mirror      repository.CartMirror
	guest       repository.GuestCartRepository
	events      EventPublisher
	logger      *slog.Logger
	now         func() time.Time
	syncTimeout time.Duration
}

// New creates an empty, signed-out store.
func New(cfg Config, logger *slog.Logger) *Store {
	timeout := cfg.SyncTimeout
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}
	return &Store{
		items:       []domain.CartItem{},
		remote:      cfg.Remote,
		mirror:      cfg.Mirror,
		guest:       cfg.Guest,
		events:      cfg.Events,
		logger:      logger,
		now:         time.Now,
		syncTimeout: timeout,
	}
}

// Items returns a copy of the current lines.
func (s *Store) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneItems(s.items)
}

// Cart returns the current lines with their derived totals.
func (s *Store) Cart() *domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.NewCart(s.user, domain.CloneItems(s.items))
}

// CurrentUser returns the signed-in user, if any.
func (s *Store) CurrentUser() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.user != ""
}

// AddItem adds quantity units of a product. A quantity below 1 counts as 1.
// An existing line keeps its name and price and only grows.
func (s *Store) AddItem(ctx context.Context, id, name string, price float64, quantity int) {
	if quantity < 1 {
		quantity = 1
	}
	s.mutate(ctx, func(items []domain.CartItem) []domain.CartItem {
		if i := domain.FindItemIndex(items, id); i >= 0 {
			items[i].Quantity += quantity
			return items
		}
		return append(items, domain.CartItem{ID: id, Name: name, Price: price, Quantity: quantity})
	})
}

// RemoveItem drops the line for id. Absent ids are ignored.
func (s *Store) RemoveItem(ctx context.Context, id string) {
	s.mutate(ctx, func(items []domain.CartItem) []domain.CartItem {
		i := domain.FindItemIndex(items, id)
		if i < 0 {
			return items
		}
		return append(items[:i], items[i+1:]...)
	})
}

// UpdateQuantity sets the quantity of the line for id to exactly quantity.
// Callers clamp to at least 1; the store does not.
func (s *Store) UpdateQuantity(ctx context.Context, id string, quantity int) {
	s.mutate(ctx, func(items []domain.CartItem) []domain.CartItem {
		if i := domain.FindItemIndex(items, id); i >= 0 {
			items[i].Quantity = quantity
		}
		return items
	})
}

// Clear empties the cart. For a signed-in user the empty cart is persisted
// remotely as well.
func (s *Store) Clear(ctx context.Context) {
	s.mutate(ctx, func([]domain.CartItem) []domain.CartItem {
		return []domain.CartItem{}
	})
}

// mutate waits for an in-progress sign-in or sign-out, so a change made
// during the transition is applied to the reconciled cart.
func (s *Store) mutate(ctx context.Context, fn func([]domain.CartItem) []domain.CartItem) {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	s.items = fn(s.items)
	s.gen++
	s.mu.Unlock()

	s.mirrorCurrent(ctx)
	s.schedule(ctx)
}

// Restore hydrates a fresh store from its local mirror. A mirror written while
// a user was signed in restores that user as well.
func (s *Store) Restore(ctx context.Context) {
	snapshot, err := s.mirror.Load(ctx)
	if err != nil {
		recordSync(opMirror, resultFailure)
		s.logger.WarnContext(ctx, "failed to restore cart from local storage",
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.items = domain.CloneItems(snapshot.Items)
	s.user = snapshot.UserID
	s.mu.Unlock()
}

// SignIn attaches userID to the store and reconciles carts: the guest cart is
// merged into the account cart, then the account cart is loaded. Signing in
// again as the current user does nothing. A store holding another user's cart
// is reset first. It reports whether a sign-in transition ran.
func (s *Store) SignIn(ctx context.Context, userID string) bool {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	if s.user == userID {
		s.mu.Unlock()
		return false
	}
	foreign := s.user != ""
	s.mu.Unlock()

	if foreign {
		s.reset(ctx)
	}

	s.mu.Lock()
	s.user = userID
	s.mu.Unlock()

	if s.MergeGuestCart(ctx) == MergeUnsaved {
		return true
	}
	s.Load(ctx)
	return true
}

// SignOut detaches the user and empties the cart locally. The account cart is
// left as it is remotely.
func (s *Store) SignOut(ctx context.Context) {
	s.transition.Lock()
	defer s.transition.Unlock()
	s.reset(ctx)
}

func (s *Store) reset(ctx context.Context) {
	s.mu.Lock()
	s.user = ""
	s.items = []domain.CartItem{}
	s.gen++
	s.mu.Unlock()

	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()
	if err := s.mirror.Delete(ctx); err != nil {
		recordSync(opMirror, resultFailure)
		s.logger.WarnContext(ctx, "failed to delete local cart",
			slog.String("error", err.Error()),
		)
	}
}

// mirrorCurrent writes the state as it is now, not as it was when the caller
// changed it, so local writes never go backwards.
func (s *Store) mirrorCurrent(ctx context.Context) {
	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()

	s.mu.Lock()
	snapshot := repository.LocalSnapshot{UserID: s.user, Items: domain.CloneItems(s.items)}
	s.mu.Unlock()

	if err := s.mirror.Store(ctx, snapshot); err != nil {
		recordSync(opMirror, resultFailure)
		s.logger.WarnContext(ctx, "failed to mirror cart to local storage",
			slog.String("error", err.Error()),
		)
	}
}
