package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimit(1, 2)(ok)

	fire := func(remoteAddr string) int {
		req := httptest.NewRequest("POST", "/markets", nil)
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		return w.Code
	}

	// Burst of 2 passes, the third request in the same instant is rejected.
	assert.Equal(t, http.StatusOK, fire("10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, fire("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, fire("10.0.0.1:1234"))

	// A different client has its own bucket.
	assert.Equal(t, http.StatusOK, fire("10.0.0.2:1234"))
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "RemoteAddr", remoteAddr: "192.168.1.5:4321", want: "192.168.1.5"},
		{name: "XForwardedFor", remoteAddr: "10.0.0.1:80",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, want: "203.0.113.7"},
		{name: "XRealIP", remoteAddr: "10.0.0.1:80",
			headers: map[string]string{"X-Real-IP": "203.0.113.9"}, want: "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractClientIP(req))
		})
	}
}
