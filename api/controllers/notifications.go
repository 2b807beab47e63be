package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-session/api/responses"
	"github.com/angelmondragon/storefront-session/pkg/logger"
)

// ListNotifications drains and returns the session's pending notifications.
func ListNotifications(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, sess.Notifications().Drain())
	}
}
