package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	defaultTimeout        = 10 * time.Second
	responseBodyReadLimit = int64(4096)
)

var (
	errBaseURLRequired = errors.New("storefront base url is required")
	errTokenRequired   = errors.New("storefront bearer token is required")
)

// Client talks to the commerce API on behalf of signed-in shoppers.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds the commerce API client.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	client := &Client{
		baseURL:    strings.TrimSpace(baseURL),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.baseURL == "" {
		return nil, errBaseURLRequired
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return client, nil
}

// ForToken binds the client to one shopper's bearer token.
func (c *Client) ForToken(token string) (*TokenClient, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "storefront client not configured")
	}
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errTokenRequired
	}
	return &TokenClient{client: c, token: trimmed}, nil
}

// TokenClient issues cart, wishlist and promo calls as a single shopper.
type TokenClient struct {
	client *Client
	token  string
}

// CartLine identifies a cart entry on the wire.
type CartLine struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
}

// MergeCartItem is one guest line item submitted on sign-in.
type MergeCartItem struct {
	ProductID string          `json:"productId"`
	VariantID string          `json:"variantId,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// PromoCode is the validated promotion returned by the promo endpoint.
type PromoCode struct {
	Code          string           `json:"code"`
	DiscountType  string           `json:"discountType"`
	DiscountValue decimal.Decimal  `json:"discountValue"`
	MinPurchase   decimal.Decimal  `json:"minPurchase"`
	MaxDiscount   *decimal.Decimal `json:"maxDiscount,omitempty"`
}

func (t *TokenClient) FetchCart(ctx context.Context) ([]json.RawMessage, error) {
	return t.list(ctx, http.MethodGet, "/cart", nil, "fetch cart")
}

func (t *TokenClient) AddToCart(ctx context.Context, line CartLine) ([]json.RawMessage, error) {
	return t.list(ctx, http.MethodPost, "/cart/add", line, "add to cart")
}

func (t *TokenClient) RemoveFromCart(ctx context.Context, line CartLine) ([]json.RawMessage, error) {
	return t.list(ctx, http.MethodPost, "/cart/remove", line, "remove from cart")
}

func (t *TokenClient) UpdateCartItem(ctx context.Context, line CartLine) ([]json.RawMessage, error) {
	return t.list(ctx, http.MethodPost, "/cart/update", line, "update cart item")
}

func (t *TokenClient) ClearCart(ctx context.Context) error {
	_, err := t.do(ctx, http.MethodPost, "/cart/clear", struct{}{}, "clear cart")
	return err
}

func (t *TokenClient) MergeCart(ctx context.Context, items []MergeCartItem) ([]json.RawMessage, error) {
	if items == nil {
		items = []MergeCartItem{}
	}
	body := struct {
		Items []MergeCartItem `json:"items"`
	}{Items: items}
	return t.list(ctx, http.MethodPost, "/cart/merge", body, "merge cart")
}

func (t *TokenClient) FetchWishlist(ctx context.Context) ([]json.RawMessage, error) {
	return t.list(ctx, http.MethodGet, "/wishlist", nil, "fetch wishlist")
}

func (t *TokenClient) AddToWishlist(ctx context.Context, productID string) ([]json.RawMessage, error) {
	return t.list(ctx, http.MethodPost, "/wishlist/add", productRef{ProductID: productID}, "add to wishlist")
}

func (t *TokenClient) RemoveFromWishlist(ctx context.Context, productID string) ([]json.RawMessage, error) {
	return t.list(ctx, http.MethodPost, "/wishlist/remove", productRef{ProductID: productID}, "remove from wishlist")
}

func (t *TokenClient) MergeWishlist(ctx context.Context, productIDs []string) ([]json.RawMessage, error) {
	if productIDs == nil {
		productIDs = []string{}
	}
	body := struct {
		ProductIDs []string `json:"productIds"`
	}{ProductIDs: productIDs}
	return t.list(ctx, http.MethodPost, "/wishlist/merge", body, "merge wishlist")
}

// ValidatePromocode asks the commerce API to validate code for the shopper's cart.
// Rejections carry the server's message verbatim as a PROMO_REJECTED error.
func (t *TokenClient) ValidatePromocode(ctx context.Context, code string) (*PromoCode, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "promo code is required")
	}

	payload, err := t.do(ctx, http.MethodPost, "/promocodes/validate", struct {
		Code string `json:"code"`
	}{Code: trimmed}, "validate promocode")
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
			return nil, pkgerrors.Wrap(pkgerrors.CodePromoRejected, err, typed.Message())
		}
		return nil, err
	}

	body := payload
	if data := dataField(payload); data != nil {
		body = data
	}
	var promo PromoCode
	if err := json.Unmarshal(body, &promo); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode promocode response")
	}
	if promo.Code == "" {
		promo.Code = trimmed
	}
	return &promo, nil
}

type productRef struct {
	ProductID string `json:"productId"`
}

func (t *TokenClient) list(ctx context.Context, method, path string, body any, op string) ([]json.RawMessage, error) {
	payload, err := t.do(ctx, method, path, body, op)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s response", op))
	}
	return items, nil
}

// do executes one request and returns the raw response body of a 2xx reply.
// 4xx replies map to VALIDATION_ERROR (or AUTH_REQUIRED for 401/403) carrying the
// server message; transport failures and 5xx map to DEPENDENCY_ERROR.
func (t *TokenClient) do(ctx context.Context, method, path string, body any, op string) ([]byte, error) {
	if t == nil || t.client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "storefront client not configured")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("marshal %s request", op))
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.client.buildURL(path), reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("build %s request", op))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("execute %s request", op))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, statusError(resp.StatusCode, raw, op)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("read %s response", op))
	}
	return payload, nil
}

func statusError(status int, raw []byte, op string) error {
	cause := fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(raw)))
	message := serverMessage(raw)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pkgerrors.Wrap(pkgerrors.CodeAuthRequired, cause, fmt.Sprintf("%s request not authorized", op))
	case status >= 400 && status < 500:
		if message == "" {
			message = fmt.Sprintf("%s request rejected", op)
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, message)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, fmt.Sprintf("%s request failed", op))
	}
}

func serverMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(body.Message); msg != "" {
		return msg
	}
	switch e := body.Error.(type) {
	case string:
		return strings.TrimSpace(e)
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return strings.TrimSpace(msg)
		}
	}
	return ""
}

func dataField(payload []byte) json.RawMessage {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	return envelope.Data
}

// decodeList extracts the authoritative list from a {data} envelope. The data
// field is either the list itself or a document holding it under items/products.
func decodeList(payload []byte) ([]json.RawMessage, error) {
	data := dataField(payload)
	if data == nil {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(payload, &probe); err != nil {
			return nil, err
		}
		if _, ok := probe["data"]; !ok {
			return nil, errors.New("response has no data field")
		}
		return []json.RawMessage{}, nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var doc struct {
		Items    []json.RawMessage `json:"items"`
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	if doc.Items != nil {
		return doc.Items, nil
	}
	if doc.Products != nil {
		return doc.Products, nil
	}
	return []json.RawMessage{}, nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
