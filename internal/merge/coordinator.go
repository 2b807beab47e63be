package merge

import (
	"context"
	"encoding/json"

	"github.com/angelmondragon/storefront-session/internal/gueststore"
	"github.com/angelmondragon/storefront-session/internal/normalize"
	"github.com/angelmondragon/storefront-session/internal/notify"
	"github.com/angelmondragon/storefront-session/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/angelmondragon/storefront-session/pkg/metrics"
	"github.com/angelmondragon/storefront-session/pkg/storefront"
	"go.uber.org/multierr"
)

// CartBackend is the server side of a cart merge.
type CartBackend interface {
	FetchCart(ctx context.Context) ([]json.RawMessage, error)
	MergeCart(ctx context.Context, items []storefront.MergeCartItem) ([]json.RawMessage, error)
}

// WishlistBackend is the server side of a wishlist merge.
type WishlistBackend interface {
	FetchWishlist(ctx context.Context) ([]json.RawMessage, error)
	MergeWishlist(ctx context.Context, productIDs []string) ([]json.RawMessage, error)
}

// ListSink receives the authoritative list once the server answered.
type ListSink interface {
	Replace(items []normalize.RawItem)
}

// Target is everything one sign-in merge touches.
type Target struct {
	Guest           gueststore.Lists
	Cart            ListSink
	Wishlist        ListSink
	CartBackend     CartBackend
	WishlistBackend WishlistBackend
	Notifier        notify.Notifier
}

// Coordinator folds a guest's persisted lists into the signed-in account.
type Coordinator struct {
	normalizer normalize.Normalizer
	logg       *logger.Logger
	metrics    *metrics.SessionMetrics
}

func NewCoordinator(normalizer normalize.Normalizer, logg *logger.Logger, m *metrics.SessionMetrics) *Coordinator {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Coordinator{normalizer: normalizer, logg: logg, metrics: m}
}

// Run merges the cart and the wishlist independently. A failed merge keeps
// its guest list so the next sign-in can retry; all failures are returned together.
func (c *Coordinator) Run(ctx context.Context, target Target) error {
	if target.Notifier == nil {
		target.Notifier = notify.Discard{}
	}
	var errs error
	if target.CartBackend != nil && target.Cart != nil {
		errs = multierr.Append(errs, c.mergeCart(ctx, target))
	}
	if target.WishlistBackend != nil && target.Wishlist != nil {
		errs = multierr.Append(errs, c.mergeWishlist(ctx, target))
	}
	return errs
}

func (c *Coordinator) mergeCart(ctx context.Context, target Target) error {
	ctx = c.logg.WithField(ctx, "list", metrics.MergeListCart)
	lines := c.normalizer.NormalizeCartItems(target.Guest.Read(ctx, gueststore.CartKey))

	if len(lines) == 0 {
		entries, err := target.CartBackend.FetchCart(ctx)
		if err != nil {
			return c.failed(ctx, target, metrics.MergeListCart, err)
		}
		target.Cart.Replace(normalize.DecodeRawItems(entries))
		c.metrics.IncMerge(metrics.MergeListCart, metrics.MergeOutcomeEmpty)
		return nil
	}

	items := make([]storefront.MergeCartItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, storefront.MergeCartItem{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			Price:     line.Price,
		})
	}

	entries, err := target.CartBackend.MergeCart(ctx, items)
	if err != nil {
		return c.failed(ctx, target, metrics.MergeListCart, err)
	}
	target.Cart.Replace(normalize.DecodeRawItems(entries))
	target.Guest.Remove(ctx, gueststore.CartKey)
	c.metrics.IncMerge(metrics.MergeListCart, metrics.MergeOutcomeMerged)
	c.logg.Info(c.logg.WithField(ctx, "items", len(items)), "guest cart merged")
	target.Notifier.Notify(notify.Info(enums.NotificationKindCart, "Your cart items were saved to your account"))
	return nil
}

func (c *Coordinator) mergeWishlist(ctx context.Context, target Target) error {
	ctx = c.logg.WithField(ctx, "list", metrics.MergeListWishlist)
	entries := c.normalizer.NormalizeWishlistItems(target.Guest.Read(ctx, gueststore.WishlistKey))

	if len(entries) == 0 {
		server, err := target.WishlistBackend.FetchWishlist(ctx)
		if err != nil {
			return c.failed(ctx, target, metrics.MergeListWishlist, err)
		}
		target.Wishlist.Replace(normalize.DecodeRawItems(server))
		c.metrics.IncMerge(metrics.MergeListWishlist, metrics.MergeOutcomeEmpty)
		return nil
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}

	server, err := target.WishlistBackend.MergeWishlist(ctx, ids)
	if err != nil {
		return c.failed(ctx, target, metrics.MergeListWishlist, err)
	}
	target.Wishlist.Replace(normalize.DecodeRawItems(server))
	target.Guest.Remove(ctx, gueststore.WishlistKey)
	c.metrics.IncMerge(metrics.MergeListWishlist, metrics.MergeOutcomeMerged)
	c.logg.Info(c.logg.WithField(ctx, "items", len(ids)), "guest wishlist merged")
	return nil
}

func (c *Coordinator) failed(ctx context.Context, target Target, list string, err error) error {
	c.metrics.IncMerge(list, metrics.MergeOutcomeFailed)
	c.logg.Error(ctx, "guest merge failed", err)
	wrapped := pkgerrors.Wrap(pkgerrors.CodeSyncFailure, err, list+" merge failed")
	target.Notifier.Notify(notify.FromError(enums.NotificationKindSync, wrapped))
	return wrapped
}
