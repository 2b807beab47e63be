package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-session/api/controllers"
	"github.com/angelmondragon/storefront-session/api/middleware"
	"github.com/angelmondragon/storefront-session/internal/gueststore"
	"github.com/angelmondragon/storefront-session/internal/normalize"
	"github.com/angelmondragon/storefront-session/internal/session"
	pkgAuth "github.com/angelmondragon/storefront-session/pkg/auth"
	"github.com/angelmondragon/storefront-session/pkg/config"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/angelmondragon/storefront-session/pkg/metrics"
	"github.com/angelmondragon/storefront-session/pkg/storefront"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type memoryLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (l *memoryLimiter) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = make(map[string]int64)
	}
	l.counts[key]++
	return l.counts[key], nil
}

func (l *memoryLimiter) RateLimitKey(parts ...string) string {
	return strings.Join(parts, ":")
}

type fakeUpstream struct {
	mu     sync.Mutex
	cart   []map[string]any
	merged int
}

func (u *fakeUpstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cart/merge", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Items []map[string]any `json:"items"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		u.mu.Lock()
		u.merged++
		u.cart = append(u.cart, body.Items...)
		items := u.cart
		u.mu.Unlock()
		writeUpstream(w, items)
	})
	mux.HandleFunc("/cart", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		items := u.cart
		u.mu.Unlock()
		writeUpstream(w, items)
	})
	mux.HandleFunc("/wishlist", func(w http.ResponseWriter, r *http.Request) {
		writeUpstream(w, nil)
	})
	mux.HandleFunc("/promocodes/validate", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"code":"SAVE10","discountType":"percentage","discountValue":10,"minPurchase":0}}`))
	})
	return mux
}

func (u *fakeUpstream) mergeCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.merged
}

func writeUpstream(w http.ResponseWriter, items []map[string]any) {
	if items == nil {
		items = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": items})
}

type harness struct {
	handler  http.Handler
	cfg      *config.Config
	upstream *fakeUpstream
}

func newHarness(t *testing.T, ready map[string]controllers.Pinger) *harness {
	t.Helper()
	up := &fakeUpstream{}
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)

	client, err := storefront.NewClient(srv.URL)
	require.NoError(t, err)

	cfg := &config.Config{
		App:     config.AppConfig{Env: "test"},
		JWT:     config.JWTConfig{Secret: "router-secret"},
		Session: config.SessionConfig{CookieName: "sf_session"},
		RateLimit: config.RateLimitConfig{
			PromoWindow:       time.Minute,
			PromoSessionLimit: 3,
		},
	}
	reg := prometheus.NewRegistry()
	sessionMetrics := metrics.NewSessionMetrics(reg)
	logg := logger.Nop()

	sessions, err := session.NewRegistry(session.RegistryParams{
		Guest:      gueststore.NewStore([]gueststore.Backend{gueststore.NewMemoryBackend()}, logg, sessionMetrics),
		Normalizer: normalize.New(normalize.NewImageResolver("https://cdn.shop.test")),
		Backends: func(token string) (session.Backend, error) {
			return client.ForToken(token)
		},
		Logger:  logg,
		Metrics: sessionMetrics,
	})
	require.NoError(t, err)

	return &harness{
		handler: NewRouter(RouterParams{
			Config:   cfg,
			Logger:   logg,
			Sessions: sessions,
			Limiter:  &memoryLimiter{},
			Gatherer: reg,
			HTTP:     metrics.NewHTTPMetrics(reg),
			Ready:    ready,
		}),
		cfg:      cfg,
		upstream: up,
	}
}

func (h *harness) do(t *testing.T, method, path, sessionID, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set(middleware.SessionIDHeader, sessionID)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var envelope map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	}
	return rec, envelope
}

func dataOf(t *testing.T, envelope map[string]any) map[string]any {
	t.Helper()
	data, ok := envelope["data"].(map[string]any)
	require.True(t, ok, "expected object data, got %v", envelope)
	return data
}

func errorCode(envelope map[string]any) string {
	errObj, _ := envelope["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

const panProduct = `{"product":{"_id":"P","name":"Pan","price":12.5,"stock":5,"images":["/img/pan.png"]},"quantity":2}`

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, map[string]controllers.Pinger{"redis": stubPinger{}})

	rec, _ := h.do(t, http.MethodGet, "/health/live", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", rec.Header().Get("X-Storefront-Env"))

	rec, _ = h.do(t, http.MethodGet, "/health/ready", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	failing := newHarness(t, map[string]controllers.Pinger{"db": stubPinger{err: errors.New("down")}})
	rec, envelope := failing.do(t, http.MethodGet, "/health/ready", "", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "DEPENDENCY_ERROR", errorCode(envelope))
}

func TestGuestCartFlow(t *testing.T) {
	h := newHarness(t, nil)

	rec, envelope := h.do(t, http.MethodPost, "/api/v1/cart/items", "", "", panProduct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sessionID := rec.Header().Get(middleware.SessionIDHeader)
	require.NotEmpty(t, sessionID)
	require.Len(t, rec.Result().Cookies(), 1)

	data := dataOf(t, envelope)
	require.Equal(t, float64(2), data["count"])
	items := data["items"].([]any)
	require.Len(t, items, 1)
	line := items[0].(map[string]any)
	require.Equal(t, "P", line["cartId"])
	require.Equal(t, "https://cdn.shop.test/img/pan.png", line["image"])

	totals := data["totals"].(map[string]any)
	subtotal, err := decimal.NewFromString(totals["subtotal"].(string))
	require.NoError(t, err)
	require.True(t, subtotal.Equal(decimal.NewFromInt(25)))

	rec, envelope = h.do(t, http.MethodPatch, "/api/v1/cart/items/P", sessionID, "", `{"quantity":6}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "STOCK_LIMIT", errorCode(envelope))

	rec, envelope = h.do(t, http.MethodPatch, "/api/v1/cart/items/P", sessionID, "", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(0), dataOf(t, envelope)["count"])
}

func TestGuestRestrictions(t *testing.T) {
	h := newHarness(t, nil)

	rec, envelope := h.do(t, http.MethodPost, "/api/v1/cart/promocode", "", "", `{"code":"SAVE10"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "AUTH_REQUIRED", errorCode(envelope))

	rec, envelope = h.do(t, http.MethodPost, "/api/v1/wishlist/toggle", "", "", `{"product":{"_id":"P"}}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "AUTH_REQUIRED", errorCode(envelope))
}

func TestValidationErrors(t *testing.T) {
	h := newHarness(t, nil)

	rec, envelope := h.do(t, http.MethodPost, "/api/v1/cart/items", "", "", `{"product":{"name":"No id"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", errorCode(envelope))

	rec, _ = h.do(t, http.MethodPost, "/api/v1/cart/items", "", "", `{"product":{"_id":"P"},"unknown":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/api/v1/cart", "", "Bearer-less-garbage", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignInMergesGuestCart(t *testing.T) {
	h := newHarness(t, nil)

	rec, _ := h.do(t, http.MethodPost, "/api/v1/cart/items", "", "", panProduct)
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get(middleware.SessionIDHeader)

	token, err := pkgAuth.MintCustomerToken(h.cfg.JWT, time.Now(), "user-7", time.Hour)
	require.NoError(t, err)

	rec, envelope := h.do(t, http.MethodGet, "/api/v1/session", sessionID, token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataOf(t, envelope)
	require.Equal(t, "authenticated", data["state"])
	require.Equal(t, "user-7", data["userId"])
	require.Equal(t, float64(2), data["cartCount"])
	require.Equal(t, 1, h.upstream.mergeCount())

	_, _ = h.do(t, http.MethodGet, "/api/v1/cart", sessionID, token, "")
	require.Equal(t, 1, h.upstream.mergeCount())

	rec, envelope = h.do(t, http.MethodPost, "/api/v1/cart/promocode", sessionID, token, `{"code":" SAVE10 "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	promo := dataOf(t, envelope)["promotion"].(map[string]any)
	require.Equal(t, "SAVE10", promo["code"])

	rec, envelope = h.do(t, http.MethodPost, "/api/v1/session/logout", sessionID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "guest", dataOf(t, envelope)["state"])
	require.Equal(t, float64(0), dataOf(t, envelope)["cartCount"])
}

func TestNotificationsDrain(t *testing.T) {
	h := newHarness(t, nil)

	rec, _ := h.do(t, http.MethodPost, "/api/v1/cart/items", "", "", panProduct)
	sessionID := rec.Header().Get(middleware.SessionIDHeader)

	_, envelope := h.do(t, http.MethodGet, "/api/v1/notifications", sessionID, "", "")
	notes := envelope["data"].([]any)
	require.NotEmpty(t, notes)
	require.Equal(t, "cart", notes[0].(map[string]any)["kind"])

	_, envelope = h.do(t, http.MethodGet, "/api/v1/notifications", sessionID, "", "")
	require.Empty(t, envelope["data"].([]any))
}

func TestPromoRateLimitPerSession(t *testing.T) {
	h := newHarness(t, nil)
	rec, _ := h.do(t, http.MethodGet, "/api/v1/cart", "", "", "")
	sessionID := rec.Header().Get(middleware.SessionIDHeader)

	for i := 0; i < 3; i++ {
		rec, _ = h.do(t, http.MethodPost, "/api/v1/cart/promocode", sessionID, "", `{"code":"SAVE10"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec, envelope := h.do(t, http.MethodPost, "/api/v1/cart/promocode", sessionID, "", `{"code":"SAVE10"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(envelope))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	_, _ = h.do(t, http.MethodGet, "/api/v1/cart", "", "", "")

	rec, _ := h.do(t, http.MethodGet, "/metrics", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "storefront_http_requests_total")
	require.Contains(t, body, "storefront_active_sessions 1")
}
