package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Image is a product or variant image. On the wire it is either a bare URL
// string or an object {url, isPrimary}.
type Image struct {
	URL       string `json:"url"`
	IsPrimary bool   `json:"isPrimary,omitempty"`
}

func (i *Image) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var url string
		if err := json.Unmarshal(trimmed, &url); err != nil {
			return err
		}
		*i = Image{URL: url}
		return nil
	}
	type plain Image
	var decoded plain
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return err
	}
	*i = Image(decoded)
	return nil
}

// Product is the catalog document as the commerce API returns it.
type Product struct {
	ID            string           `json:"_id,omitempty" validate:"required"`
	Name          string           `json:"name,omitempty"`
	Images        []Image          `json:"images,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	DiscountPrice *decimal.Decimal `json:"discountPrice,omitempty"`
	Stock         *int             `json:"stock,omitempty"`
	CountInStock  *int             `json:"countInStock,omitempty"`
	Rating        *float64         `json:"rating,omitempty"`
	NumReviews    *int             `json:"numReviews,omitempty"`
}

// AvailableStock is the product-level stock: stock, then countInStock, then 0.
func (p Product) AvailableStock() int {
	return firstInt(p.Stock, p.CountInStock)
}

// Variant is a purchasable configuration of a product.
type Variant struct {
	ID     string           `json:"_id,omitempty" validate:"required"`
	Color  string           `json:"color,omitempty"`
	Size   string           `json:"size,omitempty"`
	Price  *decimal.Decimal `json:"price,omitempty"`
	Stock  *int             `json:"stock,omitempty"`
	Images []Image          `json:"images,omitempty"`
}

// ProductRef is a product reference that may or may not be populated.
type ProductRef struct {
	ID      string
	Product *Product
}

func (r *ProductRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &r.ID)
	}
	var product Product
	if err := json.Unmarshal(trimmed, &product); err != nil {
		return err
	}
	r.ID = product.ID
	r.Product = &product
	return nil
}

func (r ProductRef) MarshalJSON() ([]byte, error) {
	if r.Product != nil {
		return json.Marshal(r.Product)
	}
	return json.Marshal(r.ID)
}

// VariantRef is a variant reference that may or may not be populated.
type VariantRef struct {
	ID      string
	Variant *Variant
}

func (r *VariantRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &r.ID)
	}
	var variant Variant
	if err := json.Unmarshal(trimmed, &variant); err != nil {
		return err
	}
	r.ID = variant.ID
	r.Variant = &variant
	return nil
}

func (r VariantRef) MarshalJSON() ([]byte, error) {
	if r.Variant != nil {
		return json.Marshal(r.Variant)
	}
	return json.Marshal(r.ID)
}

type SelectedVariant struct {
	ID    string `json:"id"`
	Color string `json:"color,omitempty"`
	Size  string `json:"size,omitempty"`
}

// RawItem is any cart or wishlist entry before normalization: a server cart
// entry, a guest snapshot, a bare catalog product, or an already-canonical item.
type RawItem struct {
	CartID    string      `json:"cartId,omitempty"`
	ID        string      `json:"id,omitempty"`
	DocID     string      `json:"_id,omitempty"`
	ProductID string      `json:"productId,omitempty"`
	VariantID string      `json:"variantId,omitempty"`
	Product   *ProductRef `json:"product,omitempty"`
	Variant   *VariantRef `json:"variant,omitempty"`

	Name          string           `json:"name,omitempty"`
	Image         string           `json:"image,omitempty"`
	Images        []Image          `json:"images,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	DiscountPrice *decimal.Decimal `json:"discountPrice,omitempty"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	Discount      *int             `json:"discount,omitempty"`
	Quantity      *int             `json:"quantity,omitempty"`
	Stock         *int             `json:"stock,omitempty"`
	CountInStock  *int             `json:"countInStock,omitempty"`
	Rating        *float64         `json:"rating,omitempty"`
	NumReviews    *int             `json:"numReviews,omitempty"`
	Reviews       *int             `json:"reviews,omitempty"`

	SelectedVariant *SelectedVariant `json:"selectedVariant,omitempty"`
}

// asProduct views a bare product entry (server wishlist shape) as a Product.
func (r RawItem) asProduct() Product {
	id := r.DocID
	if id == "" {
		id = r.ProductID
	}
	return Product{
		ID:            id,
		Name:          r.Name,
		Images:        r.Images,
		Price:         r.Price,
		DiscountPrice: r.DiscountPrice,
		Stock:         r.Stock,
		CountInStock:  r.CountInStock,
		Rating:        r.Rating,
		NumReviews:    r.NumReviews,
	}
}

// DecodeRawItems decodes server list entries, skipping any that are not objects.
func DecodeRawItems(entries []json.RawMessage) []RawItem {
	items := make([]RawItem, 0, len(entries))
	for _, entry := range entries {
		var item RawItem
		if err := json.Unmarshal(entry, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items
}

// ParseRawList decodes a persisted JSON array of raw items.
func ParseRawList(payload string) ([]RawItem, error) {
	if strings.TrimSpace(payload) == "" {
		return []RawItem{}, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &entries); err != nil {
		return nil, err
	}
	return DecodeRawItems(entries), nil
}

func firstInt(values ...*int) int {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

func intPtr(v int) *int {
	return &v
}

func decimalPtr(v decimal.Decimal) *decimal.Decimal {
	return &v
}
