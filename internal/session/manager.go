// Package session keeps one cart store per storefront session and routes
// identity transitions to it.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tastybites/storefront/internal/cartstore"
	"github.com/tastybites/storefront/internal/domain"
	"github.com/tastybites/storefront/internal/repository"
	"github.com/tastybites/storefront/internal/repository/persist"
)

var activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "cart_sessions_active",
	Help: "Number of sessions with a live cart store",
})

func init() {
	prometheus.MustRegister(activeSessions)
}

// Config holds the manager's dependencies.
type Config struct {
	Storage repository.LocalStorage
	Remote  repository.CartRecordRepository
	// Events is optional.
	Events cartstore.EventPublisher

	IdleTimeout time.Duration
	SyncTimeout time.Duration
}

type entry struct {
	store    *cartstore.Store
	restore  sync.Once
	lastSeen time.Time
}

// Manager owns the live cart stores, keyed by session ID.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry

	storage     repository.LocalStorage
	remote      repository.CartRecordRepository
	events      cartstore.EventPublisher
	logger      *slog.Logger
	idleTimeout time.Duration
	syncTimeout time.Duration
	now         func() time.Time
}

const (
	defaultIdleTimeout = 30 * time.Minute
	defaultSyncTimeout = 5 * time.Second
)

// NewManager creates a manager with no live sessions.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = defaultSyncTimeout
	}
	return &Manager{
		sessions:    make(map[string]*entry),
		storage:     cfg.Storage,
		remote:      cfg.Remote,
		events:      cfg.Events,
		logger:      logger,
		idleTimeout: cfg.IdleTimeout,
		syncTimeout: cfg.SyncTimeout,
		now:         time.Now,
	}
}

// Store returns the cart store for sessionID, restoring it from local
// storage the first time the session is seen. A restored signed-in session
// is refreshed from the remote record.
func (m *Manager) Store(ctx context.Context, sessionID string) *cartstore.Store {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok {
		local := persist.NewLocalCart(m.storage, sessionID, m.logger)
		e = &entry{
			store: cartstore.New(cartstore.Config{
				Remote:      m.remote,
				Mirror:      local,
				Guest:       local,
				Events:      m.events,
				SyncTimeout: m.syncTimeout,
			}, m.logger),
		}
		m.sessions[sessionID] = e
		activeSessions.Inc()
	}
	e.lastSeen = m.now()
	m.mu.Unlock()

	e.restore.Do(func() {
		e.store.Restore(ctx)
		if _, signedIn := e.store.CurrentUser(); signedIn {
			e.store.Load(ctx)
		}
	})
	return e.store
}

// SignIn runs the sign-in transition for sessionID. Repeating it for the
// user already signed in does nothing; a different user is signed out first.
func (m *Manager) SignIn(ctx context.Context, sessionID, userID string) *cartstore.Store {
	store := m.Store(ctx, sessionID)
	if store.SignIn(ctx, userID) {
		m.logger.InfoContext(ctx, "session signed in",
			slog.String("user_id", userID),
		)
	}
	return store
}

// SignOut detaches the user from sessionID and empties its cart locally.
func (m *Manager) SignOut(ctx context.Context, sessionID string) *cartstore.Store {
	store := m.Store(ctx, sessionID)
	user, signedIn := store.CurrentUser()
	store.SignOut(ctx)
	if signedIn {
		m.logger.InfoContext(ctx, "session signed out",
			slog.String("user_id", user),
		)
	}
	return store
}

// ClearUser empties the carts of every live session signed in as userID.
// With no live session the remote record is emptied directly.
func (m *Manager) ClearUser(ctx context.Context, userID string) error {
	var stores []*cartstore.Store
	m.mu.Lock()
	for _, e := range m.sessions {
		if user, ok := e.store.CurrentUser(); ok && user == userID {
			stores = append(stores, e.store)
		}
	}
	m.mu.Unlock()

	if len(stores) > 0 {
		for _, store := range stores {
			store.Clear(ctx)
		}
		return nil
	}

	record := &domain.CartRecord{UserID: userID, Items: []domain.CartItem{}, UpdatedAt: m.now().UTC()}
	if err := m.remote.Upsert(ctx, record); err != nil {
		return fmt.Errorf("clear cart record: %w", err)
	}
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run evicts idle sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := m.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle(ctx)
		}
	}
}

// evictIdle drops sessions idle for longer than the idle timeout. Their
// pending saves are awaited first; the local mirror is already current.
func (m *Manager) evictIdle(ctx context.Context) int {
	cutoff := m.now().Add(-m.idleTimeout)

	var idle []*entry
	m.mu.Lock()
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e)
			delete(m.sessions, id)
			activeSessions.Dec()
		}
	}
	m.mu.Unlock()

	for _, e := range idle {
		m.await(ctx, e.store)
	}
	if len(idle) > 0 {
		m.logger.DebugContext(ctx, "evicted idle sessions", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Shutdown waits for every live session's pending saves.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	stores := make([]*cartstore.Store, 0, len(m.sessions))
	for _, e := range m.sessions {
		stores = append(stores, e.store)
	}
	m.mu.Unlock()

	for _, store := range stores {
		if err := store.Wait(ctx); err != nil {
			return fmt.Errorf("wait for cart saves: %w", err)
		}
	}
	return nil
}

func (m *Manager) await(ctx context.Context, store *cartstore.Store) {
	wctx, cancel := context.WithTimeout(ctx, m.syncTimeout)
	defer cancel()
	if err := store.Wait(wctx); err != nil {
		m.logger.WarnContext(ctx, "evicted session with unsaved cart",
			slog.String("error", err.Error()),
		)
	}
}
