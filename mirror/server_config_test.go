package mirror

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestValidEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     bool
	}{
		{
			name:     "https with host",
			endpoint: "https://mail.example.com/api",
			want:     true,
		},
		{
			name:     "http allowed",
			endpoint: "http://mail.example.com/api",
			want:     true,
		},
		{
			name:     "bare hostname",
			endpoint: "https://localhost/api",
			want:     true,
		},
		{
			name:     "with port",
			endpoint: "https://mail.example.com:8080/api",
			want:     true,
		},
		{
			name:     "deep subdomain",
			endpoint: "https://a.b.c.example.com/api",
			want:     true,
		},
		{
			name:     "hyphenated labels",
			endpoint: "https://mail-01.example-corp.com/api",
			want:     true,
		},
		{
			name:     "empty",
			endpoint: "",
			want:     false,
		},
		{
			name:     "missing api suffix",
			endpoint: "https://mail.example.com",
			want:     false,
		},
		{
			name:     "trailing slash",
			endpoint: "https://mail.example.com/api/",
			want:     false,
		},
		{
			name:     "extra path segment",
			endpoint: "https://mail.example.com/api/v1",
			want:     false,
		},
		{
			name:     "wrong scheme",
			endpoint: "ftp://mail.example.com/api",
			want:     false,
		},
		{
			name:     "uppercase host rejected",
			endpoint: "https://MAIL.example.com/api",
			want:     false,
		},
		{
			name:     "port too long",
			endpoint: "https://mail.example.com:123456/api",
			want:     false,
		},
		{
			name:     "leading whitespace",
			endpoint: " https://mail.example.com/api",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidEndpoint(tt.endpoint); got != tt.want {
				t.Errorf("ValidEndpoint(%q) = %v, want %v", tt.endpoint, got, tt.want)
			}
		})
	}
}

func TestUpdateCredential(t *testing.T) {
	base := ServerConfig{
		ID:       7,
		Endpoint: "https://old.example.com/api",
		Username: "olduser",
		Password: "oldsecret",
		Health:   HealthSuccess,
		Expires:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("replaces all credentials", func(t *testing.T) {
		got := base.UpdateCredential("https://new.example.com/api", "newuser", "newsecret")
		if got.Endpoint != "https://new.example.com/api" || got.Username != "newuser" || got.Password != "newsecret" {
			t.Errorf("unexpected credentials after update: %+v", got)
		}
		if got.ID != base.ID {
			t.Errorf("ID changed: got %d, want %d", got.ID, base.ID)
		}
	})

	t.Run("empty password keeps the stored one", func(t *testing.T) {
		got := base.UpdateCredential("https://new.example.com/api", "newuser", "")
		if got.Password != "oldsecret" {
			t.Errorf("password = %q, want stored password preserved", got.Password)
		}
		if got.Username != "newuser" {
			t.Errorf("username = %q, want %q", got.Username, "newuser")
		}
	})

	t.Run("health and expiry survive rotation", func(t *testing.T) {
		got := base.UpdateCredential("https://new.example.com/api", "newuser", "newsecret")
		if got.Health != HealthSuccess || !got.Expires.Equal(base.Expires) {
			t.Errorf("health state disturbed by credential rotation: %+v", got)
		}
	})

	t.Run("original is unchanged", func(t *testing.T) {
		base.UpdateCredential("https://new.example.com/api", "x", "y")
		if base.Username != "olduser" || base.Password != "oldsecret" {
			t.Errorf("UpdateCredential mutated the receiver: %+v", base)
		}
	})
}

func TestWithHealth(t *testing.T) {
	base := ServerConfig{ID: 3, Endpoint: "https://mail.example.com/api", Username: "u", Password: "p"}
	expires := time.Now().Add(time.Hour)

	got := base.WithHealth(HealthBadNetwork, expires)
	if got.Health != HealthBadNetwork || !got.Expires.Equal(expires) {
		t.Errorf("WithHealth result = %+v", got)
	}
	if got.Endpoint != base.Endpoint || got.Password != base.Password {
		t.Errorf("WithHealth disturbed credentials: %+v", got)
	}
}

func TestAPIURL(t *testing.T) {
	cfg := ServerConfig{Endpoint: "https://mail.example.com/api"}
	got, err := cfg.APIURL("/health/live")
	if err != nil {
		t.Fatalf("APIURL returned error: %v", err)
	}
	if got != "https://mail.example.com/api/health/live" {
		t.Errorf("APIURL = %q", got)
	}

	bad := ServerConfig{Endpoint: "not-a-url"}
	if _, err := bad.APIURL("/health/live"); err == nil {
		t.Error("APIURL accepted an invalid endpoint")
	}
}

func TestBasicAuth(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		want     string
	}{
		{"both set", "admin", "secret", "Basic YWRtaW46c2VjcmV0"},
		{"missing username", "", "secret", ""},
		{"missing password", "admin", "", ""},
		{"both missing", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ServerConfig{Username: tt.username, Password: tt.password}
			if got := cfg.BasicAuth(); got != tt.want {
				t.Errorf("BasicAuth() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummaryOmitsPassword(t *testing.T) {
	cfg := ServerConfig{
		ID:       1,
		Endpoint: "https://mail.example.com/api",
		Username: "admin",
		Password: "supersecret",
		Health:   HealthSuccess,
	}

	data, err := json.Marshal(cfg.Summary())
	if err != nil {
		t.Fatalf("marshal summary: %v", err)
	}
	if strings.Contains(string(data), "supersecret") {
		t.Errorf("summary JSON leaks the password: %s", data)
	}
	if !strings.Contains(string(data), "mail.example.com") {
		t.Errorf("summary JSON missing endpoint: %s", data)
	}
}
