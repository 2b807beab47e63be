package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-session/api/responses"
	"github.com/angelmondragon/storefront-session/api/validators"
	"github.com/angelmondragon/storefront-session/internal/cart"
	"github.com/angelmondragon/storefront-session/internal/normalize"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
)

const maxPromoCodeLength = 64

type cartView struct {
	Items     []normalize.LineItem `json:"items"`
	Count     int                  `json:"count"`
	Totals    cart.Totals          `json:"totals"`
	Promotion *cart.Promotion      `json:"promotion"`
}

func viewCart(manager *cart.Manager) cartView {
	return cartView{
		Items:     manager.Items(),
		Count:     manager.ItemsCount(),
		Totals:    manager.Totals(),
		Promotion: manager.Promotion(),
	}
}

type addCartItemRequest struct {
	Product  normalize.Product  `json:"product"`
	Variant  *normalize.Variant `json:"variant,omitempty"`
	Quantity int                `json:"quantity" validate:"min=0,max=999"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"min=0,max=999"`
}

type promoCodeRequest struct {
	Code string `json:"code" validate:"required,max=64,promocode"`
}

// CartFetch returns the session's cart with totals and the applied promotion.
func CartFetch(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, viewCart(sess.Cart()))
	}
}

// CartAddItem adds a product (or one of its variants) to the cart. Quantity defaults to 1.
func CartAddItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}

		var req addCartItemRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		qty := req.Quantity
		if qty == 0 {
			qty = 1
		}

		if err := sess.Cart().AddToCart(r.Context(), req.Product, req.Variant, qty); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewCart(sess.Cart()))
	}
}

// CartUpdateItem sets a line's quantity; zero removes the line.
func CartUpdateItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}

		cartID := strings.TrimSpace(chi.URLParam(r, "cartId"))
		if cartID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required"))
			return
		}

		var req updateCartItemRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := sess.Cart().UpdateQuantity(r.Context(), cartID, req.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewCart(sess.Cart()))
	}
}

func CartRemoveItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}

		cartID := strings.TrimSpace(chi.URLParam(r, "cartId"))
		if cartID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required"))
			return
		}

		if err := sess.Cart().RemoveFromCart(r.Context(), cartID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewCart(sess.Cart()))
	}
}

// CartClear empties the cart locally and asks the server to follow; it never fails.
func CartClear(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		sess.Cart().ClearCart(r.Context())
		responses.WriteSuccess(w, viewCart(sess.Cart()))
	}
}

func CartApplyPromocode(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}

		var req promoCodeRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		code := validators.SanitizeString(req.Code, maxPromoCodeLength)

		if err := sess.Cart().ApplyPromocode(r.Context(), code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewCart(sess.Cart()))
	}
}

func CartRemovePromocode(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		sess.Cart().RemovePromocode()
		responses.WriteSuccess(w, viewCart(sess.Cart()))
	}
}
