package wishlist

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-session/internal/gueststore"
	"github.com/angelmondragon/storefront-session/internal/normalize"
	"github.com/angelmondragon/storefront-session/internal/notify"
	"github.com/angelmondragon/storefront-session/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	mu         sync.Mutex
	server     []string
	addErr     error
	removeErr  error
	fetches    atomic.Int32
	fetchDelay time.Duration
}

func (s *stubBackend) list() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]json.RawMessage, 0, len(s.server))
	for _, id := range s.server {
		raw, _ := json.Marshal(map[string]any{"_id": id, "name": "Item " + id, "price": 10})
		out = append(out, raw)
	}
	return out
}

func (s *stubBackend) FetchWishlist(context.Context) ([]json.RawMessage, error) {
	s.fetches.Add(1)
	if s.fetchDelay > 0 {
		time.Sleep(s.fetchDelay)
	}
	return s.list(), nil
}

func (s *stubBackend) AddToWishlist(_ context.Context, productID string) ([]json.RawMessage, error) {
	if s.addErr != nil {
		return nil, s.addErr
	}
	s.mu.Lock()
	s.server = append(s.server, productID)
	s.mu.Unlock()
	return s.list(), nil
}

func (s *stubBackend) RemoveFromWishlist(_ context.Context, productID string) ([]json.RawMessage, error) {
	if s.removeErr != nil {
		return nil, s.removeErr
	}
	s.mu.Lock()
	kept := s.server[:0]
	for _, id := range s.server {
		if id != productID {
			kept = append(kept, id)
		}
	}
	s.server = kept
	s.mu.Unlock()
	return s.list(), nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (r *recordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recordingNotifier) last() notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[len(r.items)-1]
}

func newTestManager(t *testing.T) (*Manager, *gueststore.Scope, *recordingNotifier) {
	t.Helper()
	store := gueststore.NewStore([]gueststore.Backend{gueststore.NewMemoryBackend()}, nil, nil)
	scope := store.Scope("visitor-1")
	notes := &recordingNotifier{}
	m, err := NewManager(ManagerParams{
		Guest:      scope,
		Normalizer: normalize.New(normalize.NewImageResolver("")),
		Notifier:   notes,
	})
	require.NoError(t, err)
	return m, scope, notes
}

func lamp() normalize.Product {
	price := decimal.NewFromInt(80)
	discount := decimal.NewFromInt(60)
	return normalize.Product{ID: "lamp", Name: "Lamp", Price: &price, DiscountPrice: &discount}
}

func TestGuestToggleRequiresAuth(t *testing.T) {
	m, _, notes := newTestManager(t)

	in, err := m.Toggle(context.Background(), lamp())
	require.False(t, in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAuthRequired))
	require.Zero(t, m.Count())
	require.Equal(t, enums.NotificationKindAuthRequired, notes.last().Kind)
}

func TestToggleAddsThenRemoves(t *testing.T) {
	m, _, notes := newTestManager(t)
	m.Bind(&stubBackend{})
	ctx := context.Background()

	in, err := m.Toggle(ctx, lamp())
	require.NoError(t, err)
	require.True(t, in)
	require.True(t, m.Contains("lamp"))
	require.Equal(t, "Added to wishlist", notes.last().Message)

	in, err = m.Toggle(ctx, lamp())
	require.NoError(t, err)
	require.False(t, in)
	require.False(t, m.Contains("lamp"))
	require.Zero(t, m.Count())
}

func TestToggleFailureRefetchesInsteadOfRollingBack(t *testing.T) {
	m, _, notes := newTestManager(t)
	backend := &stubBackend{server: []string{"rug"}, addErr: errors.New("boom")}
	m.Bind(backend)
	ctx := context.Background()

	in, err := m.Toggle(ctx, lamp())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSyncFailure))
	require.False(t, in)
	require.Equal(t, int32(1), backend.fetches.Load())

	items := m.Items()
	require.Len(t, items, 1)
	require.Equal(t, "rug", items[0].ID, "local list mirrors the server after the failure")
	require.Equal(t, "SYNC_FAILURE", notes.last().Code)
}

type gatedAddBackend struct {
	*stubBackend
	gateID  string
	release chan struct{}
	entered chan struct{}
}

func (g *gatedAddBackend) AddToWishlist(ctx context.Context, productID string) ([]json.RawMessage, error) {
	if productID != g.gateID {
		return g.stubBackend.AddToWishlist(ctx, productID)
	}
	// the response reflects the server state when the request was handled
	entries, err := g.stubBackend.AddToWishlist(ctx, productID)
	close(g.entered)
	<-g.release
	return entries, err
}

func TestSlowerOlderToggleResponseIsDiscarded(t *testing.T) {
	m, _, _ := newTestManager(t)
	backend := &gatedAddBackend{
		stubBackend: &stubBackend{},
		gateID:      "lamp",
		release:     make(chan struct{}),
		entered:     make(chan struct{}),
	}
	m.Bind(backend)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := m.Toggle(ctx, lamp())
		done <- err
	}()
	<-backend.entered

	rug := normalize.Product{ID: "rug", Name: "Rug"}
	in, err := m.Toggle(ctx, rug)
	require.NoError(t, err)
	require.True(t, in)

	close(backend.release)
	require.NoError(t, <-done)

	require.Equal(t, 2, m.Count(), "older response must not overwrite the newer list")
	require.True(t, m.Contains("lamp"))
	require.True(t, m.Contains("rug"))
}

func TestConcurrentResyncsShareOneFetch(t *testing.T) {
	m, _, _ := newTestManager(t)
	backend := &stubBackend{server: []string{"a"}, fetchDelay: 50 * time.Millisecond}
	m.Bind(backend)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Resync(context.Background())
		}()
	}
	wg.Wait()

	require.Less(t, backend.fetches.Load(), int32(5))
	require.True(t, m.Contains("a"))
}

func TestLoadReadsGuestStoreOrServer(t *testing.T) {
	m, scope, _ := newTestManager(t)
	ctx := context.Background()
	scope.Write(ctx, gueststore.WishlistKey, []normalize.RawItem{{DocID: "g1", Name: "Guest pick"}})

	require.NoError(t, m.Load(ctx))
	require.True(t, m.Contains("g1"))

	m.Bind(&stubBackend{server: []string{"s1", "s2"}})
	require.NoError(t, m.Load(ctx))
	require.Equal(t, 2, m.Count())
	require.False(t, m.Contains("g1"))

	m.Reset()
	require.Zero(t, m.Count())
}
