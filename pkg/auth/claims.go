package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// CustomerClaims is the access token the commerce API issues to shoppers.
// Older tokens carry the user id in "id"; newer ones use the standard subject.
type CustomerClaims struct {
	UserID string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the shopper id, preferring the explicit claim over the subject.
func (c *CustomerClaims) Identity() string {
	if c == nil {
		return ""
	}
	if id := strings.TrimSpace(c.UserID); id != "" {
		return id
	}
	return strings.TrimSpace(c.Subject)
}
