package wishlist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/angelmondragon/storefront-session/internal/gueststore"
	"github.com/angelmondragon/storefront-session/internal/normalize"
	"github.com/angelmondragon/storefront-session/internal/notify"
	"github.com/angelmondragon/storefront-session/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/angelmondragon/storefront-session/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Backend is the signed-in shopper's server-side wishlist.
type Backend interface {
	FetchWishlist(ctx context.Context) ([]json.RawMessage, error)
	AddToWishlist(ctx context.Context, productID string) ([]json.RawMessage, error)
	RemoveFromWishlist(ctx context.Context, productID string) ([]json.RawMessage, error)
}

// ManagerParams groups dependencies for the wishlist manager.
type ManagerParams struct {
	Guest      gueststore.Lists
	Normalizer normalize.Normalizer
	Notifier   notify.Notifier
	Logger     *logger.Logger
	Metrics    *metrics.SessionMetrics
}

// Manager owns one session's wishlist. Toggling is reserved for signed-in
// shoppers; a failed toggle is repaired by re-fetching the server list
// rather than rolled back.
type Manager struct {
	mu      sync.Mutex
	items   []normalize.WishlistItem
	backend Backend

	guest      gueststore.Lists
	normalizer normalize.Normalizer
	notifier   notify.Notifier
	logg       *logger.Logger
	metrics    *metrics.SessionMetrics

	seq        uint64
	appliedSeq uint64
	resync     singleflight.Group
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.Guest == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest store is required")
	}
	if params.Notifier == nil {
		params.Notifier = notify.Discard{}
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Manager{
		guest:      params.Guest,
		normalizer: params.Normalizer,
		notifier:   params.Notifier,
		logg:       params.Logger,
		metrics:    params.Metrics,
	}, nil
}

// Bind switches to the authenticated state; nil returns to guest mode.
func (m *Manager) Bind(backend Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backend = backend
}

// Load populates the wishlist from the guest store or the server.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	backend := m.backend
	if backend == nil {
		m.items = m.normalizer.NormalizeWishlistItems(m.guest.Read(ctx, gueststore.WishlistKey))
		m.mu.Unlock()
		return nil
	}
	seq := m.nextSeqLocked()
	m.mu.Unlock()

	entries, err := backend.FetchWishlist(ctx)
	if err != nil {
		m.metrics.IncSyncFailure("wishlist_fetch")
		m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "wishlist fetch failed")
		return pkgerrors.Wrap(pkgerrors.CodeSyncFailure, err, "wishlist fetch failed")
	}
	m.apply(ctx, seq, entries)
	return nil
}

// Toggle adds product when absent and removes it when present. It reports
// whether the product is now in the wishlist.
func (m *Manager) Toggle(ctx context.Context, product normalize.Product) (bool, error) {
	m.mu.Lock()
	backend := m.backend
	if backend == nil {
		m.mu.Unlock()
		err := pkgerrors.New(pkgerrors.CodeAuthRequired, "sign in to save items to your wishlist")
		m.notifier.Notify(notify.FromError(enums.NotificationKindAuthRequired, err))
		return false, err
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		m.mu.Unlock()
		return false, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	removing := m.indexLocked(productID) >= 0
	if removing {
		idx := m.indexLocked(productID)
		m.items = append(m.items[:idx], m.items[idx+1:]...)
	} else {
		entry := m.normalizer.NormalizeWishlistItems([]normalize.RawItem{{
			Product: &normalize.ProductRef{ID: productID, Product: &product},
		}})
		m.items = append(m.items, entry...)
	}
	seq := m.nextSeqLocked()
	m.mu.Unlock()

	var (
		entries []json.RawMessage
		err     error
		op      = "wishlist_add"
	)
	if removing {
		op = "wishlist_remove"
		entries, err = backend.RemoveFromWishlist(ctx, productID)
	} else {
		entries, err = backend.AddToWishlist(ctx, productID)
	}
	if err != nil {
		m.metrics.IncSyncFailure(op)
		m.logg.Warn(m.logg.WithFields(ctx, map[string]any{"op": op, "product_id": productID, "error": err.Error()}), "wishlist sync failed, refetching")
		m.Resync(ctx)
		wrapped := pkgerrors.Wrap(pkgerrors.CodeSyncFailure, err, fmt.Sprintf("%s failed", op))
		m.notifier.Notify(notify.FromError(enums.NotificationKindSync, wrapped))
		return m.Contains(productID), wrapped
	}

	m.apply(ctx, seq, entries)
	if removing {
		m.notifier.Notify(notify.Success(enums.NotificationKindWishlist, "Removed from wishlist"))
	} else {
		m.notifier.Notify(notify.Success(enums.NotificationKindWishlist, "Added to wishlist"))
	}
	return !removing, nil
}

// Resync replaces the local list with the server's. Concurrent callers share one fetch.
func (m *Manager) Resync(ctx context.Context) {
	m.mu.Lock()
	backend := m.backend
	m.mu.Unlock()
	if backend == nil {
		return
	}

	_, _, _ = m.resync.Do("wishlist", func() (any, error) {
		m.mu.Lock()
		seq := m.nextSeqLocked()
		m.mu.Unlock()

		entries, err := backend.FetchWishlist(ctx)
		if err != nil {
			m.metrics.IncSyncFailure("wishlist_fetch")
			m.logg.Error(ctx, "wishlist resync failed", err)
			return nil, err
		}
		m.apply(ctx, seq, entries)
		return nil, nil
	})
}

func (m *Manager) Contains(productID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexLocked(productID) >= 0
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Manager) Items() []normalize.WishlistItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]normalize.WishlistItem, len(m.items))
	copy(out, m.items)
	return out
}

// Replace installs an authoritative list, superseding responses still in flight.
func (m *Manager) Replace(items []normalize.RawItem) {
	entries := m.normalizer.NormalizeWishlistItems(items)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = entries
	m.appliedSeq = m.nextSeqLocked()
}

func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
	m.appliedSeq = m.nextSeqLocked()
}

func (m *Manager) apply(ctx context.Context, seq uint64, entries []json.RawMessage) {
	items := m.normalizer.NormalizeWishlistItems(normalize.DecodeRawItems(entries))
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq <= m.appliedSeq {
		m.logg.Debug(m.logg.WithField(ctx, "seq", seq), "discarding stale wishlist response")
		return
	}
	m.items = items
	m.appliedSeq = seq
}

func (m *Manager) indexLocked(productID string) int {
	for i, item := range m.items {
		if item.ID == productID {
			return i
		}
	}
	return -1
}

func (m *Manager) nextSeqLocked() uint64 {
	m.seq++
	return m.seq
}
