package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LineItem is the canonical cart entry. CartID is unique within a cart.
type LineItem struct {
	CartID          string           `json:"cartId"`
	ProductID       string           `json:"productId"`
	VariantID       string           `json:"variantId,omitempty"`
	Name            string           `json:"name"`
	Image           string           `json:"image"`
	Price           decimal.Decimal  `json:"price"`
	Quantity        int              `json:"quantity"`
	Stock           int              `json:"stock"`
	SelectedVariant *SelectedVariant `json:"selectedVariant,omitempty"`
}

// Raw returns the canonical raw shape; normalizing it yields the same item.
func (l LineItem) Raw() RawItem {
	raw := RawItem{
		CartID:    l.CartID,
		ProductID: l.ProductID,
		VariantID: l.VariantID,
		Name:      l.Name,
		Image:     l.Image,
		Price:     decimalPtr(l.Price),
		Quantity:  intPtr(l.Quantity),
		Stock:     intPtr(l.Stock),
	}
	if l.SelectedVariant != nil {
		sv := *l.SelectedVariant
		raw.SelectedVariant = &sv
	}
	return raw
}

// LineTotal is price times quantity.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// WishlistItem is the canonical wishlist entry keyed by product id.
type WishlistItem struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Image         string          `json:"image"`
	Price         decimal.Decimal `json:"price"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	Discount      int             `json:"discount"`
	Rating        float64         `json:"rating"`
	Reviews       int             `json:"reviews"`
}

func (w WishlistItem) Raw() RawItem {
	rating := w.Rating
	return RawItem{
		ID:            w.ID,
		Name:          w.Name,
		Image:         w.Image,
		Price:         decimalPtr(w.Price),
		OriginalPrice: decimalPtr(w.OriginalPrice),
		Discount:      intPtr(w.Discount),
		Rating:        &rating,
		Reviews:       intPtr(w.Reviews),
	}
}

// CartID derives the line identity: the product id, suffixed with the variant id when present.
func CartID(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + "_" + variantID
}

// Normalizer turns heterogeneous raw items into canonical cart and wishlist items.
type Normalizer struct {
	images ImageResolver
}

func New(images ImageResolver) Normalizer {
	return Normalizer{images: images}
}

// NormalizeCartItems normalizes every entry with a resolvable product id.
// Entries sharing a cart id collapse into one line with summed quantity.
func (n Normalizer) NormalizeCartItems(items []RawItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		line, ok := n.cartItem(item)
		if !ok {
			continue
		}
		if at, seen := index[line.CartID]; seen {
			out[at].Quantity += line.Quantity
			continue
		}
		index[line.CartID] = len(out)
		out = append(out, line)
	}
	return out
}

// NormalizeWishlistItems normalizes entries and drops duplicate product ids.
func (n Normalizer) NormalizeWishlistItems(items []RawItem) []WishlistItem {
	out := make([]WishlistItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		entry, ok := n.wishlistItem(item)
		if !ok {
			continue
		}
		if _, dup := seen[entry.ID]; dup {
			continue
		}
		seen[entry.ID] = struct{}{}
		out = append(out, entry)
	}
	return out
}

func (n Normalizer) cartItem(item RawItem) (LineItem, bool) {
	if item.CartID != "" {
		return canonicalLine(item), true
	}

	var product *Product
	var variant *Variant
	productID := strings.TrimSpace(item.ProductID)
	variantID := strings.TrimSpace(item.VariantID)
	if item.Product != nil {
		product = item.Product.Product
		if productID == "" {
			productID = item.Product.ID
		}
	}
	if item.Variant != nil {
		variant = item.Variant.Variant
		if variantID == "" {
			variantID = item.Variant.ID
		}
	}
	if productID == "" {
		return LineItem{}, false
	}

	line := LineItem{
		CartID:    CartID(productID, variantID),
		ProductID: productID,
		VariantID: variantID,
		Name:      item.Name,
		Image:     n.cartImage(item, product, variant),
		Price:     cartPrice(item, product, variant),
		Quantity:  quantity(item.Quantity),
		Stock:     cartStock(item, product, variant),
	}
	if line.Name == "" && product != nil {
		line.Name = product.Name
	}

	switch {
	case item.SelectedVariant != nil:
		sv := *item.SelectedVariant
		line.SelectedVariant = &sv
	case variant != nil:
		line.SelectedVariant = &SelectedVariant{ID: variantID, Color: variant.Color, Size: variant.Size}
	case variantID != "":
		line.SelectedVariant = &SelectedVariant{ID: variantID}
	}

	return line, true
}

func canonicalLine(item RawItem) LineItem {
	line := LineItem{
		CartID:    item.CartID,
		ProductID: item.ProductID,
		VariantID: item.VariantID,
		Name:      item.Name,
		Image:     item.Image,
		Quantity:  quantity(item.Quantity),
		Stock:     firstInt(item.Stock),
	}
	if line.Image == "" {
		line.Image = PlaceholderImage
	}
	if item.Price != nil {
		line.Price = *item.Price
	}
	if item.SelectedVariant != nil {
		sv := *item.SelectedVariant
		line.SelectedVariant = &sv
	}
	return line
}

func (n Normalizer) cartImage(item RawItem, product *Product, variant *Variant) string {
	var candidate string
	if variant != nil {
		candidate = pickImage(variant.Images)
	}
	if candidate == "" && product != nil {
		candidate = pickImage(product.Images)
	}
	if candidate == "" {
		candidate = strings.TrimSpace(item.Image)
	}
	if candidate == "" && len(item.Images) > 0 {
		candidate = strings.TrimSpace(item.Images[0].URL)
	}
	if candidate == "" {
		return PlaceholderImage
	}
	return n.images.Resolve(candidate)
}

func cartStock(item RawItem, product *Product, variant *Variant) int {
	candidates := make([]*int, 0, 5)
	if variant != nil {
		candidates = append(candidates, variant.Stock)
	}
	candidates = append(candidates, item.Stock, item.CountInStock)
	if product != nil {
		candidates = append(candidates, product.Stock, product.CountInStock)
	}
	return firstInt(candidates...)
}

func cartPrice(item RawItem, product *Product, variant *Variant) decimal.Decimal {
	if item.Price != nil {
		return *item.Price
	}
	if variant != nil && variant.Price != nil {
		return *variant.Price
	}
	if product != nil {
		if positive(product.DiscountPrice) {
			return *product.DiscountPrice
		}
		if product.Price != nil {
			return *product.Price
		}
	}
	return decimal.Zero
}

func (n Normalizer) wishlistItem(item RawItem) (WishlistItem, bool) {
	if item.ID != "" && item.DocID == "" {
		return canonicalWishlist(item), true
	}

	source := item.asProduct()
	if item.Product != nil {
		if item.Product.Product != nil {
			source = *item.Product.Product
		}
		if item.Product.ID != "" {
			source.ID = item.Product.ID
		}
	}
	if source.ID == "" {
		return WishlistItem{}, false
	}

	entry := WishlistItem{
		ID:    source.ID,
		Name:  source.Name,
		Image: n.wishlistImage(item, source),
	}
	if source.Rating != nil {
		entry.Rating = *source.Rating
	}
	entry.Reviews = firstInt(nonZero(source.NumReviews), item.Reviews)

	var price decimal.Decimal
	if source.Price != nil {
		price = *source.Price
	}
	entry.OriginalPrice = price
	entry.Price = price
	if positive(source.DiscountPrice) {
		entry.Price = *source.DiscountPrice
		entry.Discount = discountPercent(*source.DiscountPrice, price)
	}
	return entry, true
}

func canonicalWishlist(item RawItem) WishlistItem {
	entry := WishlistItem{
		ID:       item.ID,
		Name:     item.Name,
		Image:    item.Image,
		Discount: firstInt(item.Discount),
		Reviews:  firstInt(item.Reviews),
	}
	if entry.Image == "" {
		entry.Image = PlaceholderImage
	}
	if item.Price != nil {
		entry.Price = *item.Price
	}
	if item.OriginalPrice != nil {
		entry.OriginalPrice = *item.OriginalPrice
	} else {
		entry.OriginalPrice = entry.Price
	}
	if item.Rating != nil {
		entry.Rating = *item.Rating
	}
	return entry
}

func (n Normalizer) wishlistImage(item RawItem, source Product) string {
	candidate := pickImage(source.Images)
	if candidate == "" {
		candidate = strings.TrimSpace(item.Image)
	}
	if candidate == "" && len(item.Images) > 0 {
		candidate = strings.TrimSpace(item.Images[0].URL)
	}
	if candidate == "" {
		return PlaceholderImage
	}
	return n.images.Resolve(candidate)
}

// discountPercent is round((1 - discounted/price) * 100), or 0 when there is no markdown.
func discountPercent(discounted, price decimal.Decimal) int {
	if !price.IsPositive() || !discounted.LessThan(price) {
		return 0
	}
	ratio := decimal.NewFromInt(1).Sub(discounted.Div(price))
	return int(ratio.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

func quantity(q *int) int {
	if q == nil || *q < 1 {
		return 1
	}
	return *q
}

func positive(d *decimal.Decimal) bool {
	return d != nil && d.IsPositive()
}

func nonZero(v *int) *int {
	if v == nil || *v == 0 {
		return nil
	}
	return v
}
