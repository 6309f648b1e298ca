package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newInternalRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	mw := NewInternalAuthMiddleware(&InternalAPIConfig{
		TrustedNetworks: []string{"10.0.0.0/8", "not-a-cidr"},
		APIKey:          "secret",
		HeaderName:      "X-Internal-API-Key",
	})

	router := gin.New()
	router.GET("/internal", mw.Required(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestInternalAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		key        string
		wantStatus int
	}{
		{name: "trusted network", remoteAddr: "10.1.2.3:5000", wantStatus: http.StatusNoContent},
		{name: "valid key from outside", remoteAddr: "203.0.113.7:5000", key: "secret", wantStatus: http.StatusNoContent},
		{name: "wrong key from outside", remoteAddr: "203.0.113.7:5000", key: "guess", wantStatus: http.StatusForbidden},
		{name: "no key from outside", remoteAddr: "203.0.113.7:5000", wantStatus: http.StatusForbidden},
	}

	router := newInternalRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/internal", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.key != "" {
				req.Header.Set("X-Internal-API-Key", tt.key)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestInternalAPIConfigFromEnv(t *testing.T) {
	t.Setenv("INTERNAL_API_KEY", "from-env")
	t.Setenv("INTERNAL_TRUSTED_NETWORKS", "10.0.0.0/8")

	cfg := NewInternalAPIConfig()

	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.TrustedNetworks)
}
