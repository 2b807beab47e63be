package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-session/api/responses"
	"github.com/angelmondragon/storefront-session/internal/session"
	"github.com/angelmondragon/storefront-session/pkg/enums"
	"github.com/angelmondragon/storefront-session/pkg/logger"
)

type sessionView struct {
	ID            string             `json:"id"`
	State         enums.SessionState `json:"state"`
	UserID        string             `json:"userId,omitempty"`
	CartCount     int                `json:"cartCount"`
	WishlistCount int                `json:"wishlistCount"`
}

func viewSession(sess *session.Session) sessionView {
	return sessionView{
		ID:            sess.ID(),
		State:         sess.State(),
		UserID:        sess.UserID(),
		CartCount:     sess.Cart().ItemsCount(),
		WishlistCount: sess.Wishlist().Count(),
	}
}

func SessionInfo(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, viewSession(sess))
	}
}

// SessionLogout returns the session to the guest state.
func SessionLogout(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		sess.Logout(r.Context())
		responses.WriteSuccess(w, viewSession(sess))
	}
}
