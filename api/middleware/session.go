package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-session/api/responses"
	"github.com/angelmondragon/storefront-session/internal/session"
	"github.com/angelmondragon/storefront-session/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
)

// SessionIDHeader lets non-browser clients carry the session id without cookies.
const SessionIDHeader = "X-Session-Id"

// SessionSource resolves a visitor session by id.
type SessionSource interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// GuestSession attaches the visitor session to the request. The id comes from
// the X-Session-Id header, then the session cookie; a missing or malformed id
// starts a fresh session and sets the cookie.
func GuestSession(cfg config.SessionConfig, sessions SessionSource, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sessionIDFromRequest(r, cfg.CookieName)
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   cfg.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(SessionIDHeader, id)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithSessionID(ctx, id)
			}

			sess, err := sessions.Get(ctx, id)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve session"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(ctx, sess)))
		})
	}
}

func sessionIDFromRequest(r *http.Request, cookieName string) string {
	candidates := []string{r.Header.Get(SessionIDHeader)}
	if cookie, err := r.Cookie(cookieName); err == nil {
		candidates = append(candidates, cookie.Value)
	}
	for _, candidate := range candidates {
		parsed, err := uuid.Parse(strings.TrimSpace(candidate))
		if err == nil {
			return parsed.String()
		}
	}
	return ""
}
