package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/nextmail/mailbridge/config"
)

func ocsEnvelope(status string, statusCode int, data string) string {
	return fmt.Sprintf(`{"ocs":{"meta":{"status":%q,"statuscode":%d},"data":%s}}`, status, statusCode, data)
}

func newTestProvider(t *testing.T, handler http.Handler) (*NextcloudProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	provider, err := NewNextcloudProvider(config.DirectoryConfig{
		BaseURL:  srv.URL,
		Username: "admin",
		Password: "adminpass",
	})
	if err != nil {
		t.Fatalf("NewNextcloudProvider: %v", err)
	}
	return provider, srv
}

func TestGetUser(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/ocs/v2.php/cloud/users/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("OCS-APIRequest") != "true" {
			t.Error("missing OCS-APIRequest header")
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "adminpass" {
			t.Error("missing or wrong basic auth")
		}
		fmt.Fprint(w, ocsEnvelope("ok", 200, `{"id":"alice","displayname":"Alice A.","email":"alice@example.com"}`))
	}))

	user, err := provider.GetUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.UID != "alice" || user.DisplayName != "Alice A." {
		t.Errorf("user = %+v", user)
	}
	if user.Email == nil || *user.Email != "alice@example.com" {
		t.Errorf("email = %v", user.Email)
	}
}

func TestGetUserWithoutEmail(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ocsEnvelope("ok", 200, `{"id":"bob","displayname":"Bob","email":""}`))
	}))

	user, err := provider.GetUser(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Email != nil {
		t.Errorf("email = %q, want nil", *user.Email)
	}
}

func TestGetUserNotFound(t *testing.T) {
	t.Run("http 404", func(t *testing.T) {
		provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		_, err := provider.GetUser(context.Background(), "ghost")
		if !errors.Is(err, ErrUserNotFound) {
			t.Errorf("err = %v, want ErrUserNotFound", err)
		}
	})

	t.Run("ocs meta 404 under http 200", func(t *testing.T) {
		provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, ocsEnvelope("failure", 404, `{}`))
		}))
		_, err := provider.GetUser(context.Background(), "ghost")
		if !errors.Is(err, ErrUserNotFound) {
			t.Errorf("err = %v, want ErrUserNotFound", err)
		}
	})
}

func TestGetUserServerError(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	if _, err := provider.GetUser(context.Background(), "alice"); err == nil {
		t.Error("GetUser succeeded on a 500 response")
	}
}

func TestNewNextcloudProviderRequiresBaseURL(t *testing.T) {
	if _, err := NewNextcloudProvider(config.DirectoryConfig{}); err == nil {
		t.Error("NewNextcloudProvider accepted an empty base_url")
	}
}

func TestPasswordHashIsValidBcrypt(t *testing.T) {
	provider, _ := newTestProvider(t, http.NotFoundHandler())

	hash, err := provider.PasswordHash(context.Background(), "alice")
	if err != nil {
		t.Fatalf("PasswordHash: %v", err)
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		t.Errorf("hash is not bcrypt: %v", err)
	}

	// Each provisioning must produce distinct placeholder material.
	other, err := provider.PasswordHash(context.Background(), "alice")
	if err != nil {
		t.Fatalf("PasswordHash: %v", err)
	}
	if hash == other {
		t.Error("placeholder hashes are not unique")
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")); err == nil {
		t.Error("hash verifies a wrong password")
	}
}
