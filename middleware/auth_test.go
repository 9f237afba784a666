package middleware

import (
	"discord-rag-backend/config"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAuthTest(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.Cfg.JWT.SecretKey = "test-secret"

	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, Principal(c))
	})
	return r
}

func TestAuthMiddlewareExposesPrincipal(t *testing.T) {
	r := setupAuthTest(t)

	token, err := GenerateToken("user@example.com")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user@example.com", w.Body.String())
}

func TestAuthMiddlewareRejectsInvalidRequests(t *testing.T) {
	r := setupAuthTest(t)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, tc.name)
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := bearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)

	_, ok = bearerToken("")
	assert.False(t, ok)
	_, ok = bearerToken("abc.def.ghi")
	assert.False(t, ok)
}
