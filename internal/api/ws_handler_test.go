package api

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvStudio/internal/auth"
)

type tokenTable map[string]*auth.TokenClaims

func (t tokenTable) ValidateToken(token string) (*auth.TokenClaims, error) {
	claims, ok := t[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return claims, nil
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "no origin", origin: "", want: true},
		{name: "same host", origin: "http://api.test", want: true},
		{name: "other host", origin: "http://evil.test", want: false},
		{name: "allow list hit", allowed: []string{"https://app.test"}, origin: "https://app.test", want: true},
		{name: "allow list miss", allowed: []string{"https://app.test"}, origin: "http://api.test", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "http://api.test/v1/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, originChecker(tt.allowed)(r))
		})
	}
}

func TestWsHandler_ValidateAuthMessage(t *testing.T) {
	h := &WsHandler{validator: tokenTable{
		"access":  {UserID: 7, TokenType: auth.TokenTypeAccess},
		"refresh": {UserID: 7, TokenType: auth.TokenTypeRefresh},
	}}

	userID, err := h.validateAuthMessage([]byte(`{"type":"auth","token":"access"}`))
	require.NoError(t, err)
	assert.Equal(t, uint(7), userID)

	for _, raw := range []string{
		`not json`,
		`{"type":"edit","token":"access"}`,
		`{"type":"auth"}`,
		`{"type":"auth","token":"unknown"}`,
		`{"type":"auth","token":"refresh"}`,
	} {
		_, err := h.validateAuthMessage([]byte(raw))
		assert.ErrorIs(t, err, errWsUnauthorized, raw)
	}
}
