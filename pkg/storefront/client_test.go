package storefront

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTokenClient(t *testing.T, rt roundTripFunc) *TokenClient {
	t.Helper()
	client, err := NewClient("http://shop.test/api", WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)
	tc, err := client.ForToken("tok-123")
	require.NoError(t, err)
	return tc
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	require.ErrorIs(t, err, errBaseURLRequired)

	client, err := NewClient("http://shop.test")
	require.NoError(t, err)
	_, err = client.ForToken("")
	require.ErrorIs(t, err, errTokenRequired)
}

func TestMergeCartSendsItemsWithBearerToken(t *testing.T) {
	var captured *http.Request
	var body map[string][]map[string]any

	tc := newTokenClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		raw, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))
		return jsonResponse(http.StatusOK, `{"data":[{"_id":"c1","product":"p1","quantity":2}]}`), nil
	})

	items, err := tc.MergeCart(context.Background(), []MergeCartItem{
		{ProductID: "p1", VariantID: "v1", Quantity: 2, Price: decimal.NewFromInt(10)},
		{ProductID: "p2", Quantity: 1, Price: decimal.RequireFromString("4.5")},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.Equal(t, http.MethodPost, captured.Method)
	require.Equal(t, "http://shop.test/api/cart/merge", captured.URL.String())
	require.Equal(t, "Bearer tok-123", captured.Header.Get("Authorization"))
	require.Len(t, body["items"], 2)
	require.Equal(t, "v1", body["items"][0]["variantId"])
	_, hasVariant := body["items"][1]["variantId"]
	require.False(t, hasVariant)
}

func TestFetchCartAcceptsDocumentEnvelope(t *testing.T) {
	tc := newTokenClient(t, func(req *http.Request) (*http.Response, error) {
		require.Equal(t, http.MethodGet, req.Method)
		require.Equal(t, "/api/cart", req.URL.Path)
		return jsonResponse(http.StatusOK, `{"data":{"_id":"cart","items":[{"product":"p1"},{"product":"p2"}]}}`), nil
	})

	items, err := tc.FetchCart(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestFetchWishlistNullDataIsEmpty(t *testing.T) {
	tc := newTokenClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"data":null}`), nil
	})

	items, err := tc.FetchWishlist(context.Background())
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestServerErrorsMapToDependency(t *testing.T) {
	tc := newTokenClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `upstream down`), nil
	})

	_, err := tc.RemoveFromCart(context.Background(), CartLine{ProductID: "p1"})
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestUnauthorizedMapsToAuthRequired(t *testing.T) {
	tc := newTokenClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"message":"jwt expired"}`), nil
	})

	err := tc.ClearCart(context.Background())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAuthRequired))
}

func TestValidatePromocode(t *testing.T) {
	tc := newTokenClient(t, func(req *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(req.Body)
		require.JSONEq(t, `{"code":"SAVE10"}`, string(raw))
		return jsonResponse(http.StatusOK, `{"data":{"code":"SAVE10","discountType":"Percentage","discountValue":10,"minPurchase":100,"maxDiscount":50}}`), nil
	})

	promo, err := tc.ValidatePromocode(context.Background(), " SAVE10 ")
	require.NoError(t, err)
	require.Equal(t, "Percentage", promo.DiscountType)
	require.True(t, promo.DiscountValue.Equal(decimal.NewFromInt(10)))
	require.True(t, promo.MinPurchase.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, promo.MaxDiscount)
	require.True(t, promo.MaxDiscount.Equal(decimal.NewFromInt(50)))
}

func TestValidatePromocodeRejectionKeepsServerMessage(t *testing.T) {
	tc := newTokenClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"message":"Minimum purchase of $100 required"}`), nil
	})

	_, err := tc.ValidatePromocode(context.Background(), "SAVE10")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodePromoRejected, typed.Code())
	require.Equal(t, "Minimum purchase of $100 required", typed.Message())
}

func TestTransportFailureMapsToDependency(t *testing.T) {
	tc := newTokenClient(t, func(req *http.Request) (*http.Response, error) {
		return nil, io.ErrUnexpectedEOF
	})

	_, err := tc.AddToWishlist(context.Background(), "p1")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
