package cart

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
	"github.com/angelmondragon/storefront-session/pkg/storefront"
	"github.com/shopspring/decimal"
)

// Backend is the signed-in shopper's server-side cart. Every list-returning
// call answers with the full authoritative cart.
type Backend interface {
	FetchCart(ctx context.Context) ([]json.RawMessage, error)
	AddToCart(ctx context.Context, line storefront.CartLine) ([]json.RawMessage, error)
	RemoveFromCart(ctx context.Context, line storefront.CartLine) ([]json.RawMessage, error)
	UpdateCartItem(ctx context.Context, line storefront.CartLine) ([]json.RawMessage, error)
	ClearCart(ctx context.Context) error
	ValidatePromocode(ctx context.Context, code string) (*storefront.PromoCode, error)
}

// ManagerParams groups dependencies for the cart manager.
type ManagerParams struct {
	Guest      gueststore.Lists
	Normalizer normalize.Normalizer
	Notifier   notify.Notifier
	Logger     *logger.Logger
	Metrics    *metrics.SessionMetrics
}

// Manager owns one session's cart. Guests persist to the guest store; signed-in
// shoppers delegate to the Backend and treat its answers as authoritative.
// Network calls are made without holding the lock.
type Manager struct {
	mu      sync.Mutex
	items   []normalize.LineItem
	promo   *Promotion
	backend Backend

	guest      gueststore.Lists
	normalizer normalize.Normalizer
	notifier   notify.Notifier
	logg       *logger.Logger
	metrics    *metrics.SessionMetrics

	seq            uint64
	latest         map[string]uint64
	appliedListSeq uint64

	pending sync.WaitGroup
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
		latest:     make(map[string]uint64),
	}, nil
}

// Bind switches the cart to the authenticated state; a nil backend returns it to guest mode.
func (m *Manager) Bind(backend Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backend = backend
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend != nil
}

// Load populates the cart from the guest store or, when signed in, from the server.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	backend := m.backend
	if backend == nil {
		m.items = m.normalizer.NormalizeCartItems(m.guest.Read(ctx, gueststore.CartKey))
		m.mu.Unlock()
		return nil
	}
	seq := m.nextSeqLocked()
	m.mu.Unlock()

	entries, err := backend.FetchCart(ctx)
	if err != nil {
		return m.syncFailed(ctx, "fetch", err)
	}
	m.applyServerList(ctx, seq, entries)
	return nil
}

// AddToCart adds qty units of product (optionally a specific variant).
func (m *Manager) AddToCart(ctx context.Context, product normalize.Product, variant *normalize.Variant, qty int) error {
	if strings.TrimSpace(product.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if qty < 1 {
		qty = 1
	}

	available := product.AvailableStock()
	variantID := ""
	if variant != nil {
		variantID = variant.ID
		if variant.Stock != nil {
			available = *variant.Stock
		}
	}
	if qty > available {
		err := pkgerrors.New(pkgerrors.CodeOutOfStock, fmt.Sprintf("only %d in stock", available)).
			WithDetails(map[string]any{"available": available, "requested": qty})
		m.notifier.Notify(notify.FromError(enums.NotificationKindCart, err))
		return err
	}

	m.mu.Lock()
	backend := m.backend
	if backend == nil {
		err := m.addGuestLocked(ctx, product, variant, qty)
		m.mu.Unlock()
		if err != nil {
			m.notifier.Notify(notify.FromError(enums.NotificationKindCart, err))
			return err
		}
		m.notifier.Notify(notify.Success(enums.NotificationKindCart, "Added to cart"))
		return nil
	}
	seq := m.nextSeqLocked()
	m.mu.Unlock()

	entries, err := backend.AddToCart(ctx, storefront.CartLine{ProductID: product.ID, VariantID: variantID, Quantity: qty})
	if err != nil {
		return m.syncFailed(ctx, "add", err)
	}
	m.applyServerList(ctx, seq, entries)
	m.notifier.Notify(notify.Success(enums.NotificationKindCart, "Added to cart"))
	return nil
}

func (m *Manager) addGuestLocked(ctx context.Context, product normalize.Product, variant *normalize.Variant, qty int) error {
	variantID := ""
	if variant != nil {
		variantID = variant.ID
	}
	cartID := normalize.CartID(product.ID, variantID)

	if idx := m.indexLocked(cartID); idx >= 0 {
		next := m.items[idx].Quantity + qty
		if next > m.items[idx].Stock {
			return pkgerrors.New(pkgerrors.CodeStockLimit, fmt.Sprintf("cannot add more than %d of this item", m.items[idx].Stock)).
				WithDetails(map[string]any{"cartId": cartID, "stock": m.items[idx].Stock, "requested": next})
		}
		m.items[idx].Quantity = next
		m.persistLocked(ctx)
		return nil
	}

	snapshot := normalize.RawItem{
		Product:  &normalize.ProductRef{ID: product.ID, Product: &product},
		Quantity: &qty,
	}
	if variant != nil {
		v := *variant
		snapshot.Variant = &normalize.VariantRef{ID: v.ID, Variant: &v}
	}
	lines := m.normalizer.NormalizeCartItems([]normalize.RawItem{snapshot})
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product could not be added")
	}
	m.items = append(m.items, lines[0])
	m.persistLocked(ctx)
	return nil
}

// RemoveFromCart removes the line optimistically and rolls back if the server rejects it.
func (m *Manager) RemoveFromCart(ctx context.Context, cartID string) error {
	m.mu.Lock()
	idx := m.indexLocked(cartID)
	if idx < 0 {
		m.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeNotFound, "item is not in the cart")
	}
	backend := m.backend
	if backend == nil {
		m.items = append(m.items[:idx], m.items[idx+1:]...)
		m.persistLocked(ctx)
		m.mu.Unlock()
		m.notifier.Notify(notify.Success(enums.NotificationKindCart, "Removed from cart"))
		return nil
	}
	tx := m.beginLocked(idx)
	m.items = append(m.items[:idx], m.items[idx+1:]...)
	m.mu.Unlock()

	entries, err := backend.RemoveFromCart(ctx, tx.line())
	if err != nil {
		m.rollback(ctx, tx, "remove")
		return m.syncFailed(ctx, "remove", err)
	}
	m.commit(tx)
	m.applyServerList(ctx, tx.seq, entries)
	m.notifier.Notify(notify.Success(enums.NotificationKindCart, "Removed from cart"))
	return nil
}

// UpdateQuantity sets the line quantity; anything below 1 removes the line.
func (m *Manager) UpdateQuantity(ctx context.Context, cartID string, qty int) error {
	if qty < 1 {
		return m.RemoveFromCart(ctx, cartID)
	}

	m.mu.Lock()
	idx := m.indexLocked(cartID)
	if idx < 0 {
		m.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeNotFound, "item is not in the cart")
	}
	if qty > m.items[idx].Stock {
		stock := m.items[idx].Stock
		m.mu.Unlock()
		err := pkgerrors.New(pkgerrors.CodeStockLimit, fmt.Sprintf("only %d in stock", stock)).
			WithDetails(map[string]any{"cartId": cartID, "stock": stock, "requested": qty})
		m.notifier.Notify(notify.FromError(enums.NotificationKindCart, err))
		return err
	}
	backend := m.backend
	if backend == nil {
		m.items[idx].Quantity = qty
		m.persistLocked(ctx)
		m.mu.Unlock()
		m.notifier.Notify(notify.Success(enums.NotificationKindCart, "Cart updated"))
		return nil
	}
	tx := m.beginLocked(idx)
	m.items[idx].Quantity = qty
	m.mu.Unlock()

	line := tx.line()
	line.Quantity = qty
	entries, err := backend.UpdateCartItem(ctx, line)
	if err != nil {
		m.rollback(ctx, tx, "update")
		return m.syncFailed(ctx, "update", err)
	}
	m.commit(tx)
	m.applyServerList(ctx, tx.seq, entries)
	m.notifier.Notify(notify.Success(enums.NotificationKindCart, "Cart updated"))
	return nil
}

// ClearCart empties the cart and drops the promotion. The server clear is
// fire-and-forget: its failure is logged and never rolled back.
func (m *Manager) ClearCart(ctx context.Context) {
	m.mu.Lock()
	m.items = nil
	m.promo = nil
	// Responses to requests issued before the clear must not repopulate the cart.
	m.appliedListSeq = m.nextSeqLocked()
	backend := m.backend
	if backend == nil {
		m.persistLocked(ctx)
	}
	m.mu.Unlock()

	if backend != nil {
		m.pending.Add(1)
		go func(ctx context.Context) {
			defer m.pending.Done()
			if err := backend.ClearCart(ctx); err != nil {
				m.metrics.IncSyncFailure("clear")
				m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "background cart clear failed")
			}
		}(context.WithoutCancel(ctx))
	}
	m.notifier.Notify(notify.Success(enums.NotificationKindCart, "Cart cleared"))
}

// Wait blocks until background server calls (cart clears) have finished.
func (m *Manager) Wait() {
	m.pending.Wait()
}

// ApplyPromocode validates code with the server. Guests get AUTH_REQUIRED.
// A rejection clears any applied promotion and carries the server's reason.
func (m *Manager) ApplyPromocode(ctx context.Context, code string) error {
	m.mu.Lock()
	backend := m.backend
	m.mu.Unlock()

	if backend == nil {
		err := pkgerrors.New(pkgerrors.CodeAuthRequired, "sign in to use promo codes")
		m.notifier.Notify(notify.FromError(enums.NotificationKindAuthRequired, err))
		return err
	}
	if strings.TrimSpace(code) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "promo code is required")
	}

	wire, err := backend.ValidatePromocode(ctx, code)
	var promo *Promotion
	if err == nil {
		promo, err = promotionFromWire(code, wire)
	}
	if err != nil {
		m.mu.Lock()
		m.promo = nil
		m.mu.Unlock()
		if !pkgerrors.IsCode(err, pkgerrors.CodePromoRejected) && !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			return m.syncFailed(ctx, "promo", err)
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodePromoRejected) {
			err = pkgerrors.Wrap(pkgerrors.CodePromoRejected, err, pkgerrors.As(err).Message())
		}
		m.notifier.Notify(notify.FromError(enums.NotificationKindPromo, err))
		return err
	}

	m.mu.Lock()
	m.promo = promo
	m.mu.Unlock()
	m.notifier.Notify(notify.Success(enums.NotificationKindPromo, fmt.Sprintf("Promo code %s applied", promo.Code)))
	return nil
}

// RemovePromocode clears the promotion locally.
func (m *Manager) RemovePromocode() {
	m.mu.Lock()
	m.promo = nil
	m.mu.Unlock()
	m.notifier.Notify(notify.Info(enums.NotificationKindPromo, "Promo code removed"))
}

func (m *Manager) Promotion() *Promotion {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.promo == nil {
		return nil
	}
	promo := *m.promo
	return &promo
}

// Totals prices the cart with the applied promotion; the total is never negative.
func (m *Manager) Totals() Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	subtotal := decimal.Zero
	for _, item := range m.items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	return computeTotals(subtotal, m.promo)
}

// ItemsCount is the total number of units, not lines.
func (m *Manager) ItemsCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, item := range m.items {
		count += item.Quantity
	}
	return count
}

func (m *Manager) Items() []normalize.LineItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]normalize.LineItem, len(m.items))
	copy(out, m.items)
	return out
}

// Replace installs an authoritative list, superseding any response still in flight.
func (m *Manager) Replace(items []normalize.RawItem) {
	lines := m.normalizer.NormalizeCartItems(items)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = lines
	m.appliedListSeq = m.nextSeqLocked()
}

// Reset drops the local cart and promotion without touching any store.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
	m.promo = nil
	m.appliedListSeq = m.nextSeqLocked()
}

func (m *Manager) applyServerList(ctx context.Context, seq uint64, entries []json.RawMessage) {
	lines := m.normalizer.NormalizeCartItems(normalize.DecodeRawItems(entries))
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq <= m.appliedListSeq {
		m.logg.Debug(m.logg.WithFields(ctx, map[string]any{"seq": seq, "applied_seq": m.appliedListSeq}), "discarding stale cart response")
		return
	}
	m.items = lines
	m.appliedListSeq = seq
}

func (m *Manager) syncFailed(ctx context.Context, op string, err error) error {
	m.metrics.IncSyncFailure(op)
	m.logg.Warn(m.logg.WithFields(ctx, map[string]any{"op": op, "error": err.Error()}), "cart sync failed")
	if pkgerrors.IsCode(err, pkgerrors.CodeAuthRequired) {
		m.notifier.Notify(notify.FromError(enums.NotificationKindAuthRequired, err))
		return err
	}
	wrapped := pkgerrors.Wrap(pkgerrors.CodeSyncFailure, err, fmt.Sprintf("cart %s failed", op))
	m.notifier.Notify(notify.FromError(enums.NotificationKindSync, wrapped))
	return wrapped
}

func (m *Manager) persistLocked(ctx context.Context) {
	raws := make([]normalize.RawItem, 0, len(m.items))
	for _, item := range m.items {
		raws = append(raws, item.Raw())
	}
	m.guest.Write(ctx, gueststore.CartKey, raws)
}

func (m *Manager) indexLocked(cartID string) int {
	for i, item := range m.items {
		if item.CartID == cartID {
			return i
		}
	}
	return -1
}

func (m *Manager) nextSeqLocked() uint64 {
	m.seq++
	return m.seq
}
