package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestPrometheusHandler_ServesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", prometheusHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}

func TestComputeApproximateRequestSize(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/calls", strings.NewReader("0123456789"))
	req.Host = "api.local"
	req.Header.Set("X-Request-ID", "abc")

	want := len("/calls") + len(http.MethodPost) + len("HTTP/1.1") +
		len("X-Request-Id") + len("abc") + len("api.local") + 10

	require.Equal(t, want, computeApproximateRequestSize(req))
}
