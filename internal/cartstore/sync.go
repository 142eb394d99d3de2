package cartstore

import (
	"context"
	"log/slog"

	"github.com/tastybites/storefront/internal/domain"
	apperrors "github.com/tastybites/storefront/pkg/errors"
)

// MergeResult describes what MergeGuestCart did.
type MergeResult int

const (
	// MergeSkipped means there was no guest cart or no signed-in user.
	MergeSkipped MergeResult = iota
	// MergeAborted means the account cart could not be read; the guest cart
	// was kept.
	MergeAborted
	// MergeSaved means the merged cart was persisted remotely.
	MergeSaved
	// MergeUnsaved means the merged cart is held locally only because the
	// remote upsert failed.
	MergeUnsaved
)

func (r MergeResult) String() string {
	switch r {
	case MergeSkipped:
		return "skipped"
	case MergeAborted:
		return "aborted"
	case MergeSaved:
		return "saved"
	case MergeUnsaved:
		return "unsaved"
	default:
		return "unknown"
	}
}

// schedule queues a background save. Saves never overlap: a burst of
// mutations collapses into the running save plus at most one more.
func (s *Store) schedule(ctx context.Context) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.pending = true
	s.syncCtx = context.WithoutCancel(ctx)
	if s.running {
		return
	}
	s.running = true
	done := make(chan struct{})
	s.syncDone = done
	go s.drain(done)
}

func (s *Store) drain(done chan struct{}) {
	defer close(done)
	for {
		s.syncMu.Lock()
		if !s.pending {
			s.running = false
			s.syncMu.Unlock()
			return
		}
		s.pending = false
		ctx := s.syncCtx
		s.syncMu.Unlock()

		_ = s.save(ctx)
	}
}

// Wait blocks until no background save is pending or running, or ctx ends.
func (s *Store) Wait(ctx context.Context) error {
	for {
		s.syncMu.Lock()
		running, done := s.running, s.syncDone
		s.syncMu.Unlock()

		if !running {
			return nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Save upserts the current cart as the signed-in user's record. Without a
// user it does nothing. Failures are logged, not returned.
func (s *Store) Save(ctx context.Context) {
	_ = s.save(ctx)
}

func (s *Store) save(ctx context.Context) error {
	s.mu.Lock()
	user, items := s.user, domain.CloneItems(s.items)
	s.mu.Unlock()

	if user == "" {
		return nil
	}

	record := &domain.CartRecord{UserID: user, Items: items, UpdatedAt: s.now().UTC()}

	sctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	if err := s.remote.Upsert(sctx, record); err != nil {
		recordSync(opSave, resultFailure)
		s.logger.WarnContext(ctx, "failed to save cart",
			slog.String("user_id", user),
			slog.String("operation", opSave),
			slog.String("error", err.Error()),
		)
		return err
	}
	recordSync(opSave, resultSuccess)

	if s.events != nil {
		if err := s.events.PublishCartSynced(sctx, user, items); err != nil {
			s.logger.WarnContext(ctx, "failed to publish cart synced event",
				slog.String("user_id", user),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Load replaces the cart with the signed-in user's remote record. Without a
// user, or when no record exists, it does nothing. A response that arrives
// after the cart changed locally is dropped. Failures are logged, not
// returned.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	user, gen := s.user, s.gen
	s.mu.Unlock()

	if user == "" {
		return
	}

	fctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	record, err := s.remote.Get(fctx, user)
	if err != nil {
		if apperrors.IsNotFound(err) {
			recordSync(opLoad, resultNotFound)
			return
		}
		recordSync(opLoad, resultFailure)
		s.logger.WarnContext(ctx, "failed to load cart",
			slog.String("user_id", user),
			slog.String("operation", opLoad),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		recordSync(opLoad, resultStale)
		s.logger.DebugContext(ctx, "discarding stale cart load",
			slog.String("user_id", user),
		)
		return
	}
	s.items = domain.CloneItems(record.Items)
	s.mu.Unlock()

	recordSync(opLoad, resultSuccess)
	s.mirrorCurrent(ctx)
}

// MergeGuestCart folds the guest cart into the signed-in user's account cart,
// persists the result, and deletes the guest cart. An empty guest cart leaves
// the account cart untouched.
func (s *Store) MergeGuestCart(ctx context.Context) MergeResult {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	guest, err := s.guest.ReadGuestCart(ctx)
	if err != nil {
		recordSync(opMerge, resultFailure)
		s.logger.WarnContext(ctx, "failed to read guest cart",
			slog.String("operation", opMerge),
			slog.String("error", err.Error()),
		)
		return MergeAborted
	}
	if len(guest) == 0 {
		return MergeSkipped
	}

	user, ok := s.CurrentUser()
	if !ok {
		return MergeSkipped
	}

	fctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	var account []domain.CartItem
	record, err := s.remote.Get(fctx, user)
	switch {
	case err == nil:
		account = record.Items
	case apperrors.IsNotFound(err):
	default:
		recordSync(opMerge, resultFailure)
		s.logger.WarnContext(ctx, "failed to fetch account cart, keeping guest cart",
			slog.String("user_id", user),
			slog.String("operation", opMerge),
			slog.String("error", err.Error()),
		)
		return MergeAborted
	}

	merged := domain.MergeItems(account, guest)

	s.mu.Lock()
	if s.user != user {
		s.mu.Unlock()
		recordSync(opMerge, resultStale)
		return MergeAborted
	}
	if s.gen != gen {
		// The cart changed while the account cart was fetched; fold in what
		// it holds now rather than the guest cart as it was read.
		merged = domain.MergeItems(account, s.items)
	}
	s.items = domain.CloneItems(merged)
	s.gen++
	s.mu.Unlock()

	result := MergeSaved
	if err := s.save(ctx); err != nil {
		result = MergeUnsaved
	}

	if err := s.guest.ClearGuestCart(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to clear guest cart",
			slog.String("user_id", user),
			slog.String("error", err.Error()),
		)
	}
	if result == MergeUnsaved {
		// The merged lines now exist only in memory.
		s.mirrorCurrent(ctx)
	}

	recordSync(opMerge, resultSuccess)
	s.logger.InfoContext(ctx, "merged guest cart",
		slog.String("user_id", user),
		slog.Int("guest_lines", len(guest)),
		slog.Int("merged_lines", len(merged)),
		slog.String("result", result.String()),
	)

	if s.events != nil {
		if err := s.events.PublishCartMerged(fctx, user, len(guest), domain.CloneItems(merged)); err != nil {
			s.logger.WarnContext(ctx, "failed to publish cart merged event",
				slog.String("user_id", user),
				slog.String("error", err.Error()),
			)
		}
	}
	return result
}
