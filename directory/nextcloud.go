package directory

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nextmail/mailbridge/config"
)

// NextcloudProvider resolves users through the Nextcloud OCS provisioning
// API. It implements Provider.
type NextcloudProvider struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewNextcloudProvider builds a provider from the directory configuration.
func NewNextcloudProvider(cfg config.DirectoryConfig) (*NextcloudProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("directory base_url is required")
	}
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid directory timeout: %w", err)
	}
	return &NextcloudProvider{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// ocsUserResponse is the OCS envelope around a single user record.
type ocsUserResponse struct {
	OCS struct {
		Meta struct {
			Status     string `json:"status"`
			StatusCode int    `json:"statuscode"`
		} `json:"meta"`
		Data struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayname"`
			Email       string `json:"email"`
		} `json:"data"`
	} `json:"ocs"`
}

// GetUser fetches one user record from the provisioning API.
func (p *NextcloudProvider) GetUser(ctx context.Context, uid string) (*User, error) {
	endpoint := fmt.Sprintf("%s/ocs/v2.php/cloud/users/%s?format=json", p.baseURL, url.PathEscape(uid))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory request: %w", err)
	}
	req.SetBasicAuth(p.username, p.password)
	req.Header.Set("OCS-APIRequest", "true")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory response: %w", err)
	}

	var parsed ocsUserResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode directory response: %w", err)
	}
	// The OCS layer reports some failures with HTTP 200 and a meta code.
	if parsed.OCS.Meta.Status != "ok" {
		if parsed.OCS.Meta.StatusCode == 404 {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("directory returned OCS status %d", parsed.OCS.Meta.StatusCode)
	}

	user := &User{
		UID:         parsed.OCS.Data.ID,
		DisplayName: parsed.OCS.Data.DisplayName,
	}
	if user.UID == "" {
		user.UID = uid
	}
	if addr := parsed.OCS.Data.Email; addr != "" {
		user.Email = &addr
	}
	return user, nil
}

// PasswordHash derives the hash mirrored at provisioning time. The OCS
// provisioning API never exposes stored password hashes, so a freshly
// provisioned account starts with an unusable random-material hash; the
// real hash arrives with the first password-changed event.
func (p *NextcloudProvider) PasswordHash(ctx context.Context, uid string) (string, error) {
	material := make([]byte, 32)
	if _, err := rand.Read(material); err != nil {
		return "", fmt.Errorf("failed to generate placeholder password material: %w", err)
	}
	return HashPassword(base64.StdEncoding.EncodeToString(material))
}

// headRequestTimeout bounds the connectivity probe in Ping.
const headRequestTimeout = 5 * time.Second

// Ping verifies the directory is reachable with the configured credentials.
func (p *NextcloudProvider) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, headRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.baseURL+"/status.php", nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("directory unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}
