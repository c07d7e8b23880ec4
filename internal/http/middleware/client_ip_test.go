package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seenClientIP(t *testing.T, trusted TrustedProxies, remote string, headers map[string]string) string {
	t.Helper()
	var got string
	h := RealIP(trusted)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestParseTrustedProxies(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", "", "2001:db8::/32"})
	require.NoError(t, err)
	require.Len(t, trusted, 3)
	assert.Equal(t, "192.0.2.1/32", trusted[1].String())

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestRealIP_IgnoresHeadersFromUntrustedPeers(t *testing.T) {
	spoof := map[string]string{"X-Forwarded-For": "10.0.0.7", "X-Real-IP": "10.0.0.8"}

	assert.Equal(t, "192.0.2.1", seenClientIP(t, nil, "192.0.2.1:4711", spoof))

	trusted, err := ParseTrustedProxies([]string{"203.0.113.10"})
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", seenClientIP(t, trusted, "192.0.2.1:4711", spoof))
}

func TestRealIP_TrustedProxy(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"single hop", map[string]string{"X-Forwarded-For": "198.51.100.4"}, "198.51.100.4"},
		{"prepended entries are not believed", map[string]string{"X-Forwarded-For": "1.1.1.1, 198.51.100.4"}, "198.51.100.4"},
		{"trusted hops are skipped", map[string]string{"X-Forwarded-For": "198.51.100.4, 10.1.2.3"}, "198.51.100.4"},
		{"all hops trusted", map[string]string{"X-Forwarded-For": "10.9.9.9, 10.1.2.3"}, "10.9.9.9"},
		{"x-real-ip", map[string]string{"X-Real-IP": "198.51.100.9"}, "198.51.100.9"},
		{"garbage keeps socket address", map[string]string{"X-Forwarded-For": "nonsense"}, "10.0.0.1"},
		{"no headers", nil, "10.0.0.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, seenClientIP(t, trusted, "10.0.0.1:5000", tc.headers))
		})
	}
}

func TestClientIP_IPv6RemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", ClientIP(req))
}
