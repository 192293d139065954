package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"cvStudio/internal/auth"
)

type stubValidator map[string]*auth.TokenClaims

func (s stubValidator) ValidateToken(token string) (*auth.TokenClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := stubValidator{
		"access":  {UserID: 42, TokenType: auth.TokenTypeAccess},
		"refresh": {UserID: 42, TokenType: auth.TokenTypeRefresh},
	}

	router := gin.New()
	router.GET("/me", AuthMiddleware(validator), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetUint("userID")})
	})

	tests := []struct {
		header string
		status int
	}{
		{"Bearer access", http.StatusOK},
		{"bearer access", http.StatusOK},
		{"Bearer refresh", http.StatusUnauthorized},
		{"Bearer unknown", http.StatusUnauthorized},
		{"Token access", http.StatusUnauthorized},
		{"", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"user":42}`, w.Body.String())
			}
		})
	}
}

func TestInternalSecretMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(secret string) *gin.Engine {
		r := gin.New()
		r.GET("/internal", InternalSecretMiddleware(secret), func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}
	do := func(r *gin.Engine, header string) int {
		req := httptest.NewRequest(http.MethodGet, "/internal?secret=s3cret", nil)
		if header != "" {
			req.Header.Set(InternalSecretHeader, header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	r := newRouter("s3cret")
	assert.Equal(t, http.StatusOK, do(r, "s3cret"))
	assert.Equal(t, http.StatusUnauthorized, do(r, "wrong"))
	assert.Equal(t, http.StatusUnauthorized, do(r, ""), "query secret is ignored")

	assert.Equal(t, http.StatusInternalServerError, do(newRouter(" "), "s3cret"))
}

func TestCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetCorrelationID(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Body.String())
	assert.Equal(t, w.Body.String(), w.Header().Get(CorrelationIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "bad id\nwith newline")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEqual(t, "bad id\nwith newline", w.Body.String())
	assert.Len(t, w.Body.String(), 36)
}
