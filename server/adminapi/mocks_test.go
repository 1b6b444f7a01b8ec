package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/mock"

	"github.com/nextmail/mailbridge/directory"
	"github.com/nextmail/mailbridge/mirror"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListConfigs(ctx context.Context) ([]mirror.ServerConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mirror.ServerConfig), args.Error(1)
}

func (m *mockStore) CreateConfig(ctx context.Context) (*mirror.ServerConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mirror.ServerConfig), args.Error(1)
}

func (m *mockStore) FindConfig(ctx context.Context, cid int64) (*mirror.ServerConfig, error) {
	args := m.Called(ctx, cid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mirror.ServerConfig), args.Error(1)
}

func (m *mockStore) UpdateConfig(ctx context.Context, cfg mirror.ServerConfig) (*mirror.ServerConfig, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mirror.ServerConfig), args.Error(1)
}

func (m *mockStore) RefreshConfigHealth(ctx context.Context, cid int64, health mirror.Health, expires time.Time) (*mirror.ServerConfig, error) {
	args := m.Called(ctx, cid, health, expires)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mirror.ServerConfig), args.Error(1)
}

func (m *mockStore) DeleteConfig(ctx context.Context, cid int64) error {
	return m.Called(ctx, cid).Error(0)
}

func (m *mockStore) ListAccounts(ctx context.Context, cid int64) ([]mirror.Account, error) {
	args := m.Called(ctx, cid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mirror.Account), args.Error(1)
}

func (m *mockStore) FindAccount(ctx context.Context, cid int64, uid string) (*mirror.Account, error) {
	args := m.Called(ctx, cid, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mirror.Account), args.Error(1)
}

func (m *mockStore) CreateIndividualAccount(ctx context.Context, cid int64, uid, displayName, passwordHash string) (*mirror.Account, error) {
	args := m.Called(ctx, cid, uid, displayName, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mirror.Account), args.Error(1)
}

func (m *mockStore) DeleteAccount(ctx context.Context, cid int64, uid string) error {
	return m.Called(ctx, cid, uid).Error(0)
}

func (m *mockStore) FindPrimaryEmail(ctx context.Context, cid int64, uid string) (*mirror.Email, error) {
	args := m.Called(ctx, cid, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mirror.Email), args.Error(1)
}

func (m *mockStore) SetPrimaryEmail(ctx context.Context, cid int64, uid, address string) (*mirror.Email, error) {
	args := m.Called(ctx, cid, uid, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mirror.Email), args.Error(1)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetUser(ctx context.Context, uid string) (*directory.User, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*directory.User), args.Error(1)
}

func (m *mockProvider) PasswordHash(ctx context.Context, uid string) (string, error) {
	args := m.Called(ctx, uid)
	return args.String(0), args.Error(1)
}

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) CheckHealth(ctx context.Context, cfg mirror.ServerConfig) mirror.Health {
	return m.Called(ctx, cfg).Get(0).(mirror.Health)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) HandlePasswordUpdated(ctx context.Context, event directory.PasswordUpdatedEvent) error {
	return m.Called(ctx, event).Error(0)
}

const testAPIKey = "test-api-key"

type testHarness struct {
	store    *mockStore
	provider *mockProvider
	checker  *mockChecker
	events   *mockEvents
	router   *mux.Router
}

func newTestHarness(t *testing.T, opts ...func(*ServerOptions)) *testHarness {
	t.Helper()
	h := &testHarness{
		store:    new(mockStore),
		provider: new(mockProvider),
		checker:  new(mockChecker),
		events:   new(mockEvents),
	}

	options := ServerOptions{
		APIKey:    testAPIKey,
		Provider:  h.provider,
		Checker:   h.checker,
		Events:    h.events,
		HealthTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(&options)
	}

	srv, err := New(h.store, options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.router = srv.setupRoutes()
	return h
}

// do runs an authenticated request through the full middleware chain.
func (h *testHarness) do(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}
