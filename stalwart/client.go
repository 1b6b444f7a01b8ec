// Package stalwart talks to the remote mail servers the bridge provisions
// into. The wire protocol is treated as an opaque HTTP API; the bridge only
// needs to classify reachability and authentication outcomes.
package stalwart

import (
	"context"
	"net/http"
	"time"

	"github.com/nextmail/mailbridge/mirror"
	"github.com/nextmail/mailbridge/pkg/metrics"
)

// Client probes remote mail servers.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a client with the given probe timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CheckHealth probes a configured server and classifies the outcome. It
// never retries: the caller decides when a probe result has expired.
//
// Classification:
//   - malformed endpoint or missing credentials -> invalid
//   - transport failure                         -> bad_network
//   - 401/403                                   -> unauthorized
//   - any other non-2xx status                  -> bad_server
//   - 2xx                                       -> success
func (c *Client) CheckHealth(ctx context.Context, cfg mirror.ServerConfig) mirror.Health {
	health := c.probe(ctx, cfg)
	metrics.HealthProbesTotal.WithLabelValues(string(health)).Inc()
	return health
}

func (c *Client) probe(ctx context.Context, cfg mirror.ServerConfig) mirror.Health {
	target, err := cfg.APIURL("/health/live")
	if err != nil {
		return mirror.HealthInvalid
	}

	auth := cfg.BasicAuth()
	if auth == "" {
		return mirror.HealthInvalid
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return mirror.HealthInvalid
	}
	req.Header.Set("Authorization", auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mirror.HealthBadNetwork
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return mirror.HealthUnauthorized
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return mirror.HealthSuccess
	default:
		return mirror.HealthBadServer
	}
}
