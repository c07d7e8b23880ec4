package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesServiceCollectors(t *testing.T) {
	RateLimited.WithLabelValues("auth").Inc()

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `hanguk_rate_limited_requests_total{policy="auth"}`)
	assert.Contains(t, body, "go_goroutines")
}
