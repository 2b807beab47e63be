package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgAuth "github.com/angelmondragon/storefront-session/pkg/auth"
	"github.com/angelmondragon/storefront-session/pkg/config"
	"github.com/angelmondragon/storefront-session/pkg/enums"
)

func jwtConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "storefront"}
}

func authChain(t *testing.T, next http.HandlerFunc) http.Handler {
	t.Helper()
	reg := newTestRegistry(t)
	return GuestSession(sessionConfig(), reg, nil)(OptionalAuth(jwtConfig(), nil)(next))
}

func TestOptionalAuthPassesAnonymousRequests(t *testing.T) {
	called := false
	handler := authChain(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Equal(t, enums.SessionStateGuest, SessionFromContext(r.Context()).State())
		require.Empty(t, UserIDFromContext(r.Context()))
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, called)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOptionalAuthAuthenticatesSession(t *testing.T) {
	token, err := pkgAuth.MintCustomerToken(jwtConfig(), time.Now(), "user-42", time.Hour)
	require.NoError(t, err)

	handler := authChain(t, func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		require.Equal(t, enums.SessionStateAuthenticated, sess.State())
		require.Equal(t, "user-42", sess.UserID())
		require.Equal(t, "user-42", UserIDFromContext(r.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOptionalAuthRejectsInvalidToken(t *testing.T) {
	handler := authChain(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
