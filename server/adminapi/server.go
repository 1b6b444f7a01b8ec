// Package adminapi exposes the bridge's administrative HTTP API: server
// configuration CRUD, per-server user provisioning, health probes, and the
// directory event webhook.
package adminapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nextmail/mailbridge/db"
	"github.com/nextmail/mailbridge/directory"
	"github.com/nextmail/mailbridge/logger"
	"github.com/nextmail/mailbridge/mirror"
	"github.com/nextmail/mailbridge/pkg/metrics"
)

// Store is the mirror storage surface the API needs. *db.Database satisfies
// it; tests substitute a mock.
type Store interface {
	ListConfigs(ctx context.Context) ([]mirror.ServerConfig, error)
	CreateConfig(ctx context.Context) (*mirror.ServerConfig, error)
	FindConfig(ctx context.Context, cid int64) (*mirror.ServerConfig, error)
	UpdateConfig(ctx context.Context, cfg mirror.ServerConfig) (*mirror.ServerConfig, error)
	RefreshConfigHealth(ctx context.Context, cid int64, health mirror.Health, expires time.Time) (*mirror.ServerConfig, error)
	DeleteConfig(ctx context.Context, cid int64) error

	ListAccounts(ctx context.Context, cid int64) ([]mirror.Account, error)
	FindAccount(ctx context.Context, cid int64, uid string) (*mirror.Account, error)
	CreateIndividualAccount(ctx context.Context, cid int64, uid, displayName, passwordHash string) (*mirror.Account, error)
	DeleteAccount(ctx context.Context, cid int64, uid string) error

	FindPrimaryEmail(ctx context.Context, cid int64, uid string) (*mirror.Email, error)
	SetPrimaryEmail(ctx context.Context, cid int64, uid, address string) (*mirror.Email, error)
}

// HealthChecker probes a remote server. *stalwart.Client satisfies it.
type HealthChecker interface {
	CheckHealth(ctx context.Context, cfg mirror.ServerConfig) mirror.Health
}

// EventHandler applies directory events. *dirsync.Adapter satisfies it.
type EventHandler interface {
	HandlePasswordUpdated(ctx context.Context, event directory.PasswordUpdatedEvent) error
}

var _ Store = (*db.Database)(nil)

// Server represents the HTTP API server.
type Server struct {
	addr         string
	apiKey       string
	allowedHosts []string
	store        Store
	provider     directory.Provider
	checker      HealthChecker
	events       EventHandler
	healthTTL    time.Duration
	server       *http.Server
	tls          bool
	tlsCertFile  string
	tlsKeyFile   string
}

// ServerOptions holds configuration options for the HTTP API server.
type ServerOptions struct {
	Addr         string
	APIKey       string
	AllowedHosts []string
	Provider     directory.Provider
	Checker      HealthChecker
	Events       EventHandler
	HealthTTL    time.Duration
	TLS          bool
	TLSCertFile  string
	TLSKeyFile   string
}

// New creates a new HTTP API server.
func New(store Store, options ServerOptions) (*Server, error) {
	if options.APIKey == "" {
		return nil, fmt.Errorf("API key is required for HTTP API server")
	}

	if options.TLS {
		if options.TLSCertFile == "" || options.TLSKeyFile == "" {
			return nil, fmt.Errorf("TLS certificate and key files are required when TLS is enabled")
		}
	}

	healthTTL := options.HealthTTL
	if healthTTL <= 0 {
		healthTTL = time.Hour
	}

	s := &Server{
		addr:         options.Addr,
		apiKey:       options.APIKey,
		allowedHosts: options.AllowedHosts,
		store:        store,
		provider:     options.Provider,
		checker:      options.Checker,
		events:       options.Events,
		healthTTL:    healthTTL,
		tls:          options.TLS,
		tlsCertFile:  options.TLSCertFile,
		tlsKeyFile:   options.TLSKeyFile,
	}

	return s, nil
}

// Start starts the HTTP API server.
func Start(ctx context.Context, store Store, options ServerOptions, errChan chan error) {
	server, err := New(store, options)
	if err != nil {
		errChan <- fmt.Errorf("failed to create HTTP API server: %w", err)
		return
	}

	protocol := "HTTP"
	if options.TLS {
		protocol = "HTTPS"
	}
	logger.Info("starting admin API server", "protocol", protocol, "addr", options.Addr)
	if err := server.start(ctx); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		errChan <- fmt.Errorf("HTTP API server failed: %w", err)
	}
}

// start initializes and starts the HTTP server.
func (s *Server) start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("shutting down admin API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down admin API server", "error", err)
		}
	}()

	if s.tls {
		return s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	}
	return s.server.ListenAndServe()
}

// setupRoutes configures all HTTP routes and middleware.
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.loggingMiddleware)
	router.Use(s.allowedHostsMiddleware)
	router.Use(s.authMiddleware)
	router.Use(s.metricsMiddleware)

	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Server configuration routes
	v1.HandleFunc("/servers", s.handleListServers).Methods("GET")
	v1.HandleFunc("/servers", s.handleCreateServer).Methods("POST")
	v1.HandleFunc("/servers/{cid:[0-9]+}", s.handleGetServer).Methods("GET")
	v1.HandleFunc("/servers/{cid:[0-9]+}", s.handleUpdateServer).Methods("PUT")
	v1.HandleFunc("/servers/{cid:[0-9]+}", s.handleDeleteServer).Methods("DELETE")
	v1.HandleFunc("/servers/{cid:[0-9]+}/health", s.handleProbeServer).Methods("POST")

	// Per-server user provisioning routes
	v1.HandleFunc("/servers/{cid:[0-9]+}/users", s.handleListUsers).Methods("GET")
	v1.HandleFunc("/servers/{cid:[0-9]+}/users/{uid}", s.handleGetUser).Methods("GET")
	v1.HandleFunc("/servers/{cid:[0-9]+}/users/{uid}", s.handleProvisionUser).Methods("POST")
	v1.HandleFunc("/servers/{cid:[0-9]+}/users/{uid}", s.handleDeprovisionUser).Methods("DELETE")

	// Directory event webhook
	v1.HandleFunc("/events/password-changed", s.handlePasswordChanged).Methods("POST")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

// Middleware functions

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		logger.Debug("admin API request", "id", requestID, "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
		logger.Debug("admin API request completed", "id", requestID, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, fmt.Sprintf("%d", rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) allowedHostsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedHosts) == 0 {
			// No restrictions, allow all hosts
			next.ServeHTTP(w, r)
			return
		}

		clientIP := getClientIP(r)

		allowed := false
		for _, allowedHost := range s.allowedHosts {
			if allowedHost == clientIP {
				allowed = true
				break
			}
			// Check CIDR blocks
			if strings.Contains(allowedHost, "/") {
				if _, cidr, err := net.ParseCIDR(allowedHost); err == nil {
					if ip := net.ParseIP(clientIP); ip != nil {
						if cidr.Contains(ip) {
							allowed = true
							break
						}
					}
				}
			}
		}

		if !allowed {
			s.writeError(w, http.StatusForbidden, "Host not allowed")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			s.writeError(w, http.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.apiKey)) != 1 {
			s.writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Utility functions

func getClientIP(r *http.Request) string {
	// Try X-Forwarded-For header first (for proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	// Try X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("error encoding JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
