package cart

import (
	"strings"

	"github.com/angelmondragon/storefront-session/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/storefront"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Promotion is the validated promo code applied to this session's cart.
// It is never persisted; the discount is recomputed on every read.
type Promotion struct {
	Code          string             `json:"code"`
	DiscountType  enums.DiscountType `json:"discountType"`
	DiscountValue decimal.Decimal    `json:"discountValue"`
	MinPurchase   decimal.Decimal    `json:"minPurchase"`
	MaxDiscount   *decimal.Decimal   `json:"maxDiscount,omitempty"`
}

func promotionFromWire(code string, promo *storefront.PromoCode) (*Promotion, error) {
	if promo == nil {
		return nil, pkgerrors.New(pkgerrors.CodePromoRejected, "promo code could not be validated")
	}
	discountType, err := enums.ParseDiscountType(promo.DiscountType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePromoRejected, err, "promo code has an unsupported discount type")
	}
	if promo.DiscountValue.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodePromoRejected, "promo code has a negative discount")
	}
	applied := &Promotion{
		Code:          strings.TrimSpace(promo.Code),
		DiscountType:  discountType,
		DiscountValue: promo.DiscountValue,
		MinPurchase:   promo.MinPurchase,
	}
	if applied.Code == "" {
		applied.Code = strings.TrimSpace(code)
	}
	// the commerce API stores an unset cap as 0
	if promo.MaxDiscount != nil && promo.MaxDiscount.IsPositive() {
		ceiling := *promo.MaxDiscount
		applied.MaxDiscount = &ceiling
	}
	return applied, nil
}

// Discount returns the discount earned on subtotal: zero below the minimum
// purchase, otherwise the flat or percentage value clamped to MaxDiscount.
func (p *Promotion) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if p == nil || subtotal.LessThan(p.MinPurchase) {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch p.DiscountType {
	case enums.DiscountTypeFixed:
		amount = p.DiscountValue
	case enums.DiscountTypePercentage:
		amount = subtotal.Mul(p.DiscountValue).Div(hundred)
	default:
		return decimal.Zero
	}

	if p.MaxDiscount != nil && amount.GreaterThan(*p.MaxDiscount) {
		amount = *p.MaxDiscount
	}
	return amount.Round(2)
}

// Totals is the priced summary of a cart.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Total          decimal.Decimal `json:"total"`
}

func computeTotals(subtotal decimal.Decimal, promo *Promotion) Totals {
	discount := promo.Discount(subtotal)
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return Totals{Subtotal: subtotal, DiscountAmount: discount, Total: total}
}
