package cart

import (
	"context"

	"github.com/angelmondragon/storefront-session/internal/normalize"
	"github.com/angelmondragon/storefront-session/pkg/storefront"
)

// txn captures the state an optimistic mutation may have to restore.
type txn struct {
	cartID string
	seq    uint64
	index  int
	item   normalize.LineItem
}

func (t txn) line() storefront.CartLine {
	return storefront.CartLine{ProductID: t.item.ProductID, VariantID: t.item.VariantID, Quantity: t.item.Quantity}
}

// beginLocked snapshots the line at idx and marks it as the newest mutation of its cart id.
func (m *Manager) beginLocked(idx int) txn {
	item := m.items[idx]
	if item.SelectedVariant != nil {
		sv := *item.SelectedVariant
		item.SelectedVariant = &sv
	}
	tx := txn{cartID: item.CartID, seq: m.nextSeqLocked(), index: idx, item: item}
	m.latest[tx.cartID] = tx.seq
	return tx
}

// rollback restores the snapshotted line at its original position. It is a
// no-op when a newer mutation of the same line has started or a newer
// authoritative list has already been applied.
func (m *Manager) rollback(ctx context.Context, tx txn, op string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.latest[tx.cartID] != tx.seq || m.appliedListSeq > tx.seq {
		m.logg.Debug(m.logg.WithFields(ctx, map[string]any{"cart_id": tx.cartID, "op": op}), "skipping superseded rollback")
		return
	}
	delete(m.latest, tx.cartID)

	if idx := m.indexLocked(tx.cartID); idx >= 0 {
		m.items[idx] = tx.item
	} else {
		at := tx.index
		if at > len(m.items) {
			at = len(m.items)
		}
		m.items = append(m.items, normalize.LineItem{})
		copy(m.items[at+1:], m.items[at:])
		m.items[at] = tx.item
	}
	m.metrics.IncRollback(op)
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{"cart_id": tx.cartID, "op": op}), "rolled back cart mutation")
}

// commit forgets the snapshot once the server accepted the mutation.
func (m *Manager) commit(tx txn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest[tx.cartID] == tx.seq {
		delete(m.latest, tx.cartID)
	}
}
