package cartstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastybites/storefront/internal/domain"
	"github.com/tastybites/storefront/internal/repository"
	"github.com/tastybites/storefront/internal/repository/memory"
	"github.com/tastybites/storefront/internal/repository/persist"
	apperrors "github.com/tastybites/storefront/pkg/errors"
)

// --- Fakes ---

type fakeRemote struct {
	mu        sync.Mutex
	records   map[string]*domain.CartRecord
	getErr    error
	upsertErr error
	gets      int
	upserts   []*domain.CartRecord

	getHook    func()
	upsertHook func(*domain.CartRecord)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{records: make(map[string]*domain.CartRecord)}
}

func (f *fakeRemote) Get(_ context.Context, userID string) (*domain.CartRecord, error) {
	f.mu.Lock()
	f.gets++
	hook := f.getHook
	err := f.getErr
	rec, ok := f.records[userID]
	var out *domain.CartRecord
	if ok {
		cp := *rec
		cp.Items = domain.CloneItems(rec.Items)
		out = &cp
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, apperrors.NotFound("cart record", userID)
	}
	return out, nil
}

func (f *fakeRemote) Upsert(_ context.Context, record *domain.CartRecord) error {
	f.mu.Lock()
	hook := f.upsertHook
	f.mu.Unlock()
	if hook != nil {
		hook(record)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	cp := *record
	cp.Items = domain.CloneItems(record.Items)
	f.records[record.UserID] = &cp
	f.upserts = append(f.upserts, &cp)
	return nil
}

func (f *fakeRemote) put(userID string, items ...domain.CartItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[userID] = &domain.CartRecord{UserID: userID, Items: items}
}

func (f *fakeRemote) record(userID string) *domain.CartRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[userID]
}

func (f *fakeRemote) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func (f *fakeRemote) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

type recordedEvent struct {
	kind       string
	userID     string
	guestLines int
	items      []domain.CartItem
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) PublishCartSynced(_ context.Context, userID string, items []domain.CartItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{kind: "synced", userID: userID, items: items})
	return nil
}

func (f *fakeEvents) PublishCartMerged(_ context.Context, userID string, guestLines int, items []domain.CartItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{kind: "merged", userID: userID, guestLines: guestLines, items: items})
	return nil
}

func (f *fakeEvents) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.kind
	}
	return out
}

// --- Helpers ---

type fixture struct {
	store   *Store
	remote  *fakeRemote
	storage *memory.LocalStorage
	local   *persist.LocalCart
	events  *fakeEvents
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		remote:  newFakeRemote(),
		storage: memory.NewLocalStorage(),
		events:  &fakeEvents{},
	}
	f.local = persist.NewLocalCart(f.storage, "sess-1", discardLogger())
	f.store = f.newStore()
	return f
}

func (f *fixture) newStore() *Store {
	return New(Config{
		Remote:      f.remote,
		Mirror:      f.local,
		Guest:       f.local,
		Events:      f.events,
		SyncTimeout: time.Second,
	}, discardLogger())
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.store.Wait(ctx))
}

func (f *fixture) signInQuietly(t *testing.T, userID string) {
	t.Helper()
	f.store.mu.Lock()
	f.store.user = userID
	f.store.mu.Unlock()
}

func item(id string, qty int) domain.CartItem {
	return domain.CartItem{ID: id, Name: "item " + id, Price: 10, Quantity: qty}
}

func quantities(items []domain.CartItem) map[string]int {
	out := make(map[string]int, len(items))
	for _, it := range items {
		out[it.ID] = it.Quantity
	}
	return out
}

func ids(items []domain.CartItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

// ============================================================
// Mutations
// ============================================================

func TestAddItem_SumsQuantities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.AddItem(ctx, "p1", "Ramen", 12.5, 2)
	f.store.AddItem(ctx, "p1", "Ramen", 12.5, 3)
	f.store.AddItem(ctx, "p1", "Ramen", 12.5, 0)
	f.store.AddItem(ctx, "p1", "Ramen", 12.5, -4)

	items := f.store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 7, items[0].Quantity)
}

func TestAddItem_ExistingLineKeepsDisplayFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.AddItem(ctx, "p1", "Ramen", 12.5, 1)
	f.store.AddItem(ctx, "p2", "Gyoza", 6, 1)
	f.store.AddItem(ctx, "p1", "Renamed", 99, 1)

	items := f.store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, domain.CartItem{ID: "p1", Name: "Ramen", Price: 12.5, Quantity: 2}, items[0])
	assert.Equal(t, domain.CartItem{ID: "p2", Name: "Gyoza", Price: 6, Quantity: 1}, items[1])
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddItem(ctx, "p1", "A", 1, 1)
	f.store.AddItem(ctx, "p2", "B", 1, 1)

	before := f.store.Items()
	f.store.RemoveItem(ctx, "missing")
	assert.Equal(t, before, f.store.Items())

	f.store.RemoveItem(ctx, "p1")
	assert.Equal(t, []string{"p2"}, ids(f.store.Items()))
}

func TestUpdateQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddItem(ctx, "p1", "A", 1, 1)

	before := f.store.Items()
	f.store.UpdateQuantity(ctx, "missing", 5)
	assert.Equal(t, before, f.store.Items())

	f.store.UpdateQuantity(ctx, "p1", 9)
	assert.Equal(t, 9, f.store.Items()[0].Quantity)

	f.store.UpdateQuantity(ctx, "p1", 0)
	assert.Equal(t, 0, f.store.Items()[0].Quantity, "the store performs a literal set")
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddItem(ctx, "p1", "A", 1, 1)

	f.store.Clear(ctx)
	assert.Empty(t, f.store.Items())
	assert.NotNil(t, f.store.Items())

	f.store.Clear(ctx)
	assert.Empty(t, f.store.Items())
}

func TestCart_DerivedValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddItem(ctx, "p1", "A", 100, 2)
	f.store.AddItem(ctx, "p2", "B", 50, 1)

	cart := f.store.Cart()
	assert.Equal(t, 3, cart.ItemCount)
	assert.InDelta(t, 250.0, cart.TotalAmount, 0.0001)
	assert.Empty(t, cart.UserID)
}

func TestItems_ReturnsCopy(t *testing.T) {
	f := newFixture(t)
	f.store.AddItem(context.Background(), "p1", "A", 1, 1)

	items := f.store.Items()
	items[0].Quantity = 42
	assert.Equal(t, 1, f.store.Items()[0].Quantity)
}

// ============================================================
// Replicas
// ============================================================

func TestGuestMutations_MirrorLocallyOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.AddItem(ctx, "p1", "A", 1, 2)
	f.wait(t)

	guest, err := f.local.ReadGuestCart(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.store.Items(), guest)
	assert.Zero(t, f.remote.upsertCount())
	assert.Zero(t, f.remote.getCount())
}

func TestSignedInMutations_PersistRemotely(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signInQuietly(t, "u1")

	f.store.AddItem(ctx, "p1", "A", 1, 2)
	f.wait(t)

	rec := f.remote.record("u1")
	require.NotNil(t, rec)
	assert.Equal(t, f.store.Items(), rec.Items)
	assert.False(t, rec.UpdatedAt.IsZero())

	snap, err := f.local.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", snap.UserID)
}

func TestClear_SignedInUpsertsEmptyRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signInQuietly(t, "u1")
	f.store.AddItem(ctx, "p1", "A", 1, 2)
	f.wait(t)

	f.store.Clear(ctx)
	f.wait(t)

	rec := f.remote.record("u1")
	require.NotNil(t, rec)
	assert.Empty(t, rec.Items)
}

func TestSaveFailure_IsSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signInQuietly(t, "u1")
	f.remote.upsertErr = errors.New("connection refused")

	f.store.AddItem(ctx, "p1", "A", 1, 2)
	f.wait(t)

	assert.Equal(t, 2, f.store.Items()[0].Quantity)
	assert.Nil(t, f.remote.record("u1"))
}

func TestBackgroundSave_ReadsCurrentItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signInQuietly(t, "u1")

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.remote.upsertHook = func(*domain.CartRecord) {
		once.Do(func() {
			close(started)
			<-release
		})
	}

	f.store.AddItem(ctx, "p1", "A", 1, 1)
	<-started
	f.store.AddItem(ctx, "p2", "B", 1, 1)
	f.store.AddItem(ctx, "p3", "C", 1, 1)
	close(release)
	f.wait(t)

	require.Equal(t, 2, f.remote.upsertCount(), "the burst coalesces into one follow-up save")
	assert.Equal(t, []string{"p1"}, ids(f.remote.upserts[0].Items))
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids(f.remote.record("u1").Items))
}

func TestWait_HonoursContext(t *testing.T) {
	f := newFixture(t)
	f.signInQuietly(t, "u1")

	release := make(chan struct{})
	f.remote.upsertHook = func(*domain.CartRecord) { <-release }
	defer close(release)

	f.store.AddItem(context.Background(), "p1", "A", 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.store.Wait(ctx), context.DeadlineExceeded)
}

func TestLoad_WithoutUserIsNoop(t *testing.T) {
	f := newFixture(t)
	f.store.Load(context.Background())
	assert.Zero(t, f.remote.getCount())
}

func TestLoad_ReplacesItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signInQuietly(t, "u1")
	f.remote.put("u1", item("a", 2), item("b", 1))

	f.store.Load(ctx)
	assert.Equal(t, []string{"a", "b"}, ids(f.store.Items()))

	snap, err := f.local.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.store.Items(), snap.Items)

	f.store.Load(ctx)
	assert.Equal(t, []string{"a", "b"}, ids(f.store.Items()))
}

func TestLoad_NotFoundAndErrorsKeepState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddItem(ctx, "p1", "A", 1, 1)
	f.signInQuietly(t, "u1")

	f.store.Load(ctx)
	assert.Equal(t, []string{"p1"}, ids(f.store.Items()))

	f.remote.getErr = errors.New("timeout")
	f.store.Load(ctx)
	assert.Equal(t, []string{"p1"}, ids(f.store.Items()))
}

func TestLoad_StaleResponseIsDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signInQuietly(t, "u1")
	f.remote.put("u1", item("old", 1))

	fetched := make(chan struct{})
	release := make(chan struct{})
	f.remote.getHook = func() {
		close(fetched)
		<-release
	}

	staleBefore := testutil.ToFloat64(syncOperations.WithLabelValues(opLoad, resultStale))

	done := make(chan struct{})
	go func() {
		f.store.Load(ctx)
		close(done)
	}()

	<-fetched
	f.remote.mu.Lock()
	f.remote.getHook = nil
	f.remote.mu.Unlock()
	f.store.AddItem(ctx, "fresh", "Fresh", 1, 1)
	close(release)
	<-done

	assert.Equal(t, []string{"fresh"}, ids(f.store.Items()))
	assert.Equal(t, staleBefore+1, testutil.ToFloat64(syncOperations.WithLabelValues(opLoad, resultStale)))
}

func TestSaveThenLoad_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signInQuietly(t, "u1")
	f.store.AddItem(ctx, "p1", "Ramen", 12.5, 2)
	f.store.AddItem(ctx, "p2", "Gyoza", 6, 1)
	f.wait(t)
	want := f.store.Items()

	f.store.Save(ctx)

	other := f.newStore()
	other.mu.Lock()
	other.user = "u1"
	other.mu.Unlock()
	other.Load(ctx)

	assert.Equal(t, want, other.Items())
}

func TestSave_WithoutUserIsNoop(t *testing.T) {
	f := newFixture(t)
	f.store.Save(context.Background())
	assert.Zero(t, f.remote.upsertCount())
}

func TestSave_PublishesSyncedEvent(t *testing.T) {
	f := newFixture(t)
	f.signInQuietly(t, "u1")
	f.store.AddItem(context.Background(), "p1", "A", 1, 1)
	f.wait(t)

	assert.Equal(t, []string{"synced"}, f.events.kinds())
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.local.Store(ctx, repository.LocalSnapshot{
		UserID: "u1",
		Items:  []domain.CartItem{item("p1", 2)},
	}))

	f.store.Restore(ctx)

	user, ok := f.store.CurrentUser()
	assert.True(t, ok)
	assert.Equal(t, "u1", user)
	assert.Equal(t, []string{"p1"}, ids(f.store.Items()))
}

func TestRestore_DuplicateLinesCollapse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.storage.Write(ctx, persist.Key("sess-1"),
		[]byte(`{"state":{"items":[{"id":"p1","name":"Ramen","price":10,"quantity":1},{"id":"p1","name":"Ramen","price":10,"quantity":2}]},"version":0}`)))

	f.store.Restore(ctx)
	f.store.AddItem(ctx, "p1", "Ramen", 10, 1)

	require.Len(t, f.store.Items(), 1)
	assert.Equal(t, 4, f.store.Items()[0].Quantity)
}

// ============================================================
// Merge
// ============================================================

func TestMergeGuestCart_MergeLaw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddItem(ctx, "a", "A", 1, 3)
	f.store.AddItem(ctx, "b", "B", 1, 1)
	f.wait(t)
	f.remote.put("u1", domain.CartItem{ID: "a", Name: "A", Price: 1, Quantity: 2})
	f.signInQuietly(t, "u1")

	result := f.store.MergeGuestCart(ctx)
	assert.Equal(t, MergeSaved, result)

	want := map[string]int{"a": 5, "b": 1}
	assert.Equal(t, []string{"a", "b"}, ids(f.store.Items()))
	assert.Equal(t, want, quantities(f.store.Items()))
	assert.Equal(t, want, quantities(f.remote.record("u1").Items))
	assert.False(t, f.storage.Has(persist.Key("sess-1")))
}

func TestMergeGuestCart_SecondRunIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddItem(ctx, "a", "A", 1, 1)
	f.wait(t)
	f.signInQuietly(t, "u1")

	require.Equal(t, MergeSaved, f.store.MergeGuestCart(ctx))
	upserts := f.remote.upsertCount()
	rec := f.remote.record("u1")

	assert.Equal(t, MergeSkipped, f.store.MergeGuestCart(ctx))
	assert.Equal(t, upserts, f.remote.upsertCount())
	assert.Equal(t, rec, f.remote.record("u1"))
}

func TestMergeGuestCart_EmptyGuestShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.remote.put("u1", item("a", 2))
	f.signInQuietly(t, "u1")

	assert.Equal(t, MergeSkipped, f.store.MergeGuestCart(context.Background()))
	assert.Zero(t, f.remote.upsertCount())
	assert.Zero(t, f.remote.getCount())
}

func TestMergeGuestCart_WithoutUserIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddItem(ctx, "a", "A", 1, 1)
	f.wait(t)

	assert.Equal(t, MergeSkipped, f.store.MergeGuestCart(ctx))
	assert.True(t, f.storage.Has(persist.Key("sess-1")))
}

func TestMergeGuestCart_RemoteReadFailureKeepsGuestCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddItem(ctx, "a", "A", 1, 1)
	f.wait(t)
	f.signInQuietly(t, "u1")
	f.remote.getErr = errors.New("timeout")

	assert.Equal(t, MergeAborted, f.store.MergeGuestCart(ctx))
	assert.Zero(t, f.remote.upsertCount())

	guest, err := f.local.ReadGuestCart(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(guest))
}

func TestMergeGuestCart_SaveFailureKeepsMergedCartLocally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddItem(ctx, "b", "B", 1, 1)
	f.wait(t)
	f.remote.put("u1", item("a", 2))
	f.remote.upsertErr = errors.New("connection refused")

	assert.True(t, f.store.SignIn(ctx, "u1"))

	assert.Equal(t, map[string]int{"a": 2, "b": 1}, quantities(f.store.Items()))

	guest, err := f.local.ReadGuestCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, guest, "merged cart must not be merged again")

	snap, err := f.local.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, quantities(snap.Items))
}

func TestMergeGuestCart_PublishesMergedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddItem(ctx, "a", "A", 1, 1)
	f.wait(t)
	f.signInQuietly(t, "u1")

	f.store.MergeGuestCart(ctx)

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	require.Len(t, f.events.events, 2)
	assert.Equal(t, "synced", f.events.events[0].kind)
	merged := f.events.events[1]
	assert.Equal(t, "merged", merged.kind)
	assert.Equal(t, "u1", merged.userID)
	assert.Equal(t, 1, merged.guestLines)
}

// ============================================================
// Sign-in / sign-out transitions
// ============================================================

func TestSignIn_GuestToUserScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.AddItem(ctx, "p1", "Ramen", 100, 2)
	f.store.AddItem(ctx, "p2", "Gyoza", 50, 1)
	f.wait(t)
	assert.Zero(t, f.remote.upsertCount())

	f.remote.put("u1", domain.CartItem{ID: "p1", Name: "Ramen", Price: 100, Quantity: 1})

	require.True(t, f.store.SignIn(ctx, "u1"))
	f.wait(t)

	want := map[string]int{"p1": 3, "p2": 1}
	assert.Equal(t, []string{"p1", "p2"}, ids(f.store.Items()))
	assert.Equal(t, want, quantities(f.store.Items()))
	assert.Equal(t, want, quantities(f.remote.record("u1").Items))

	guest, err := f.local.ReadGuestCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, guest)
}

func TestSignIn_ItemAddedDuringMergeIsKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddItem(ctx, "p1", "Ramen", 100, 2)
	f.wait(t)
	f.remote.put("u1", item("a", 5))

	fetching := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.remote.getHook = func() {
		once.Do(func() {
			close(fetching)
			<-release
		})
	}

	signedIn := make(chan struct{})
	go func() {
		f.store.SignIn(ctx, "u1")
		close(signedIn)
	}()
	<-fetching

	added := make(chan struct{})
	go func() {
		f.store.AddItem(ctx, "p2", "Gyoza", 50, 1)
		close(added)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-signedIn
	<-added
	f.wait(t)

	want := map[string]int{"a": 5, "p1": 2, "p2": 1}
	assert.Equal(t, want, quantities(f.store.Items()))
	assert.Equal(t, want, quantities(f.remote.record("u1").Items))
}

func TestMergeGuestCart_FoldsChangesMadeDuringFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddItem(ctx, "p1", "Ramen", 100, 2)
	f.wait(t)
	f.remote.put("u1", item("a", 5))
	f.signInQuietly(t, "u1")

	// A mutation landing mid-fetch, as a caller outside a sign-in would see.
	f.remote.getHook = func() {
		f.store.mu.Lock()
		f.store.items = append(f.store.items, domain.CartItem{ID: "p2", Name: "Gyoza", Price: 50, Quantity: 1})
		f.store.gen++
		f.store.mu.Unlock()
	}

	assert.Equal(t, MergeSaved, f.store.MergeGuestCart(ctx))
	f.wait(t)

	want := map[string]int{"a": 5, "p1": 2, "p2": 1}
	assert.Equal(t, want, quantities(f.store.Items()))
	assert.Equal(t, want, quantities(f.remote.record("u1").Items))
}

func TestSignIn_SameUserIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.put("u1", item("a", 1))

	require.True(t, f.store.SignIn(ctx, "u1"))
	gets := f.remote.getCount()

	assert.False(t, f.store.SignIn(ctx, "u1"))
	assert.Equal(t, gets, f.remote.getCount())
}

func TestSignIn_ReloadedSessionDoesNotDoubleQuantities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.put("u1", item("a", 2))
	require.True(t, f.store.SignIn(ctx, "u1"))

	restored := f.newStore()
	restored.Restore(ctx)
	restored.SignIn(ctx, "u1")

	assert.Equal(t, map[string]int{"a": 2}, quantities(restored.Items()))
	assert.Equal(t, map[string]int{"a": 2}, quantities(f.remote.record("u1").Items))
}

func TestSignIn_DifferentUserResetsFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.put("u1", item("a", 2))
	f.remote.put("u2", item("z", 1))

	require.True(t, f.store.SignIn(ctx, "u1"))
	require.True(t, f.store.SignIn(ctx, "u2"))
	f.wait(t)

	assert.Equal(t, []string{"z"}, ids(f.store.Items()))
	assert.Equal(t, map[string]int{"a": 2}, quantities(f.remote.record("u1").Items))
	assert.Equal(t, map[string]int{"z": 1}, quantities(f.remote.record("u2").Items))
}

func TestSignOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.put("u1", item("a", 2))
	require.True(t, f.store.SignIn(ctx, "u1"))
	f.wait(t)
	upserts := f.remote.upsertCount()

	f.store.SignOut(ctx)
	f.wait(t)

	_, ok := f.store.CurrentUser()
	assert.False(t, ok)
	assert.Empty(t, f.store.Items())
	assert.False(t, f.storage.Has(persist.Key("sess-1")))
	assert.Equal(t, upserts, f.remote.upsertCount())
	assert.Equal(t, map[string]int{"a": 2}, quantities(f.remote.record("u1").Items))
}

func TestSignOut_PendingSaveDoesNotEmptyAccountCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signInQuietly(t, "u1")

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	f.remote.upsertHook = func(*domain.CartRecord) {
		once.Do(func() {
			close(started)
			<-release
		})
	}

	f.store.AddItem(ctx, "a", "A", 1, 1)
	<-started
	f.store.AddItem(ctx, "b", "B", 1, 1)
	f.store.SignOut(ctx)
	close(release)
	f.wait(t)

	rec := f.remote.record("u1")
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.Items)
}

func TestMergeResult_String(t *testing.T) {
	assert.Equal(t, "skipped", MergeSkipped.String())
	assert.Equal(t, "aborted", MergeAborted.String())
	assert.Equal(t, "saved", MergeSaved.String())
	assert.Equal(t, "unsaved", MergeUnsaved.String())
	assert.Equal(t, "unknown", MergeResult(42).String())
}
