package mirror

import (
	"encoding/base64"
	"regexp"
	"time"

	"github.com/nextmail/mailbridge/consts"
)

// endpointPattern matches the only endpoint form the bridge will talk to:
// scheme://host[:port]/api with no path beyond the API root.
var endpointPattern = regexp.MustCompile(`^https?://([a-z0-9-]+\.)*[a-z0-9-]+(:\d{1,5})?/api$`)

// ValidEndpoint reports whether endpoint is a well-formed API base URL.
func ValidEndpoint(endpoint string) bool {
	return endpointPattern.MatchString(endpoint)
}

// ServerConfig is one configured remote mail server. Values are immutable;
// updates return a new instance.
type ServerConfig struct {
	ID       int64
	Endpoint string
	Username string
	Password string
	Health   Health
	Expires  time.Time
}

// UpdateCredential returns a copy with rotated credentials. Endpoint and
// username always replace the prior values. The password is replaced only
// when a non-empty value is supplied, so an update can change the endpoint
// without re-supplying the secret. Health is never touched by rotation.
func (c ServerConfig) UpdateCredential(endpoint, username, password string) ServerConfig {
	if password == "" {
		password = c.Password
	}
	return ServerConfig{
		ID:       c.ID,
		Endpoint: endpoint,
		Username: username,
		Password: password,
		Health:   c.Health,
		Expires:  c.Expires,
	}
}

// WithHealth returns a copy carrying the result of a health probe.
func (c ServerConfig) WithHealth(health Health, expires time.Time) ServerConfig {
	return ServerConfig{
		ID:       c.ID,
		Endpoint: c.Endpoint,
		Username: c.Username,
		Password: c.Password,
		Health:   health,
		Expires:  expires,
	}
}

// APIURL returns the endpoint joined with subpath, or ErrInvalidEndpoint
// when the configured endpoint does not match the required form.
func (c ServerConfig) APIURL(subpath string) (string, error) {
	if !ValidEndpoint(c.Endpoint) {
		return "", consts.ErrInvalidEndpoint
	}
	return c.Endpoint + subpath, nil
}

// BasicAuth returns the Authorization header value for the stored
// credentials, or "" when either credential is missing.
func (c ServerConfig) BasicAuth() string {
	if c.Username == "" || c.Password == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
}

// ServerSummary is the outward-facing shape of a server configuration.
// The password is deliberately absent.
type ServerSummary struct {
	ID       int64  `json:"id"`
	Endpoint string `json:"endpoint"`
	Username string `json:"username"`
	Health   Health `json:"health"`
}

// Summary returns the serializable view of the configuration.
func (c ServerConfig) Summary() ServerSummary {
	return ServerSummary{
		ID:       c.ID,
		Endpoint: c.Endpoint,
		Username: c.Username,
		Health:   c.Health,
	}
}
