package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticMatcher string

func (s staticMatcher) MatchesStaticToken(credential string) bool {
	return credential == string(s)
}

func newTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t).Sugar()
	router := gin.New()
	router.Use(RecoveryMiddleware(logger), ErrorHandlerMiddleware(logger), TracingMiddleware())
	router.NoRoute(NotFoundHandler())
	return router
}

func TestStaticTokenAuthMiddleware(t *testing.T) {
	router := newTestRouter(t)
	router.POST("/admin", StaticTokenAuthMiddleware(staticMatcher("s3cret")), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer s3cret", http.StatusNoContent},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestNotFoundHandler(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/anything", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body["error"])
}

func TestRecoveryMiddleware(t *testing.T) {
	router := newTestRouter(t)
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/panic", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
