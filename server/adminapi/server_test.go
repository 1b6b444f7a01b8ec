package adminapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nextmail/mailbridge/mirror"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(new(mockStore), ServerOptions{}); err == nil {
		t.Error("New accepted empty API key")
	}
}

func TestNewRequiresTLSFiles(t *testing.T) {
	_, err := New(new(mockStore), ServerOptions{APIKey: "k", TLS: true})
	if err == nil {
		t.Error("New accepted TLS without cert/key files")
	}
}

func TestAuthMiddleware(t *testing.T) {
	h := newTestHarness(t)
	h.store.On("ListConfigs", mock.Anything).Return([]mirror.ServerConfig{}, nil)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc123", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong-key", http.StatusForbidden},
		{"correct token", "Bearer " + testAPIKey, http.StatusOK},
		{"case-insensitive scheme", "bearer " + testAPIKey, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			h.router.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestAllowedHostsMiddleware(t *testing.T) {
	h := newTestHarness(t, func(o *ServerOptions) {
		o.AllowedHosts = []string{"10.1.2.3", "192.168.0.0/16"}
	})
	h.store.On("ListConfigs", mock.Anything).Return([]mirror.ServerConfig{}, nil)

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		wantStatus int
	}{
		{"exact ip allowed", "10.1.2.3:5511", "", http.StatusOK},
		{"cidr match allowed", "192.168.44.9:5511", "", http.StatusOK},
		{"other ip denied", "172.16.0.1:5511", "", http.StatusForbidden},
		{"forwarded-for wins", "172.16.0.1:5511", "10.1.2.3", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			rec := h.do(req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "10.0.0.1:12345",
			want:       "10.0.0.1",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5"},
			want:       "203.0.113.5",
		},
		{
			name:       "x-forwarded-for chain takes first",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2"},
			want:       "203.0.113.5",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := newTestHarness(t)
	h.store.On("ListConfigs", mock.Anything).Return([]mirror.ServerConfig{}, nil)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("response carries no X-Request-Id header")
	}
}
