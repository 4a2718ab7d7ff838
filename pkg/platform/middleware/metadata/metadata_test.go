package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"openletter/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "first forwarded address", headers: map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.1"}, remote: "10.0.0.2:1234", want: "203.0.113.1"},
		{name: "real ip header", headers: map[string]string{"X-Real-IP": " 198.51.100.7 "}, remote: "10.0.0.2:1234", want: "198.51.100.7"},
		{name: "ipv4 remote addr", remote: "192.0.2.10:5555", want: "192.0.2.10"},
		{name: "ipv6 remote addr", remote: "[::1]:5555", want: "::1"},
		{name: "remote addr without port", remote: "192.0.2.11", want: "192.0.2.11"},
		{name: "mapped ipv4 is unmapped", remote: "[::ffff:192.0.2.12]:80", want: "192.0.2.12"},
		{name: "garbage forwarded header ignored", headers: map[string]string{"X-Forwarded-For": "not-an-ip"}, remote: "192.0.2.10:5555", want: "192.0.2.10"},
		{name: "garbage real ip ignored", headers: map[string]string{"X-Real-IP": "<script>"}, remote: "192.0.2.10:5555", want: "192.0.2.10"},
		{name: "no address at all", remote: "", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	var ip, ua string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("User-Agent", "Mozilla/5.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.0.2.10", ip)
	assert.Equal(t, "Mozilla/5.0", ua)
}
