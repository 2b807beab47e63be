package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-session/api/responses"
	"github.com/angelmondragon/storefront-session/api/validators"
	"github.com/angelmondragon/storefront-session/internal/normalize"
	"github.com/angelmondragon/storefront-session/internal/wishlist"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
)

type wishlistView struct {
	Items []normalize.WishlistItem `json:"items"`
	Count int                      `json:"count"`
}

func viewWishlist(manager *wishlist.Manager) wishlistView {
	return wishlistView{Items: manager.Items(), Count: manager.Count()}
}

type toggleWishlistRequest struct {
	Product normalize.Product `json:"product"`
}

func WishlistFetch(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, viewWishlist(sess.Wishlist()))
	}
}

// WishlistToggle adds the product when absent and removes it when present.
func WishlistToggle(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}

		var req toggleWishlistRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		in, err := sess.Wishlist().Toggle(r.Context(), req.Product)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"inWishlist": in,
			"wishlist":   viewWishlist(sess.Wishlist()),
		})
	}
}

func WishlistContains(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		productID := strings.TrimSpace(chi.URLParam(r, "productId"))
		if productID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product id is required"))
			return
		}
		responses.WriteSuccess(w, map[string]bool{"inWishlist": sess.Wishlist().Contains(productID)})
	}
}
