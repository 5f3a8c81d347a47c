package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func limitedRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

// remoteAddr isolates the per-key limiter state between tests.
func pingFrom(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitAllowsBurstThenRejects(t *testing.T) {
	r := limitedRouter(RateLimitMiddleware(0.0001, 3))

	for i := 0; i < 3; i++ {
		w := pingFrom(r, "10.1.0.1:1000")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}
	w := pingFrom(r, "10.1.0.1:1000")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimitKeysAreIndependent(t *testing.T) {
	r := limitedRouter(RateLimitMiddleware(0.0001, 1))

	require.Equal(t, http.StatusOK, pingFrom(r, "10.1.0.2:1000").Code)
	require.Equal(t, http.StatusTooManyRequests, pingFrom(r, "10.1.0.2:1000").Code)
	// a different client still has its own bucket
	require.Equal(t, http.StatusOK, pingFrom(r, "10.1.0.3:1000").Code)
}

func TestRateLimitKeyPrefersPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	require.Equal(t, "ip:192.0.2.1", rateLimitKey(c))

	c.Set("principal", &Principal{Subject: "u-9"})
	require.Equal(t, "sub:u-9", rateLimitKey(c))
}
