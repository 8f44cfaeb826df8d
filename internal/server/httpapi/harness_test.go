package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/logging"
	"github.com/dmitrijs2005/boardcontext/internal/server/monday"
	"github.com/dmitrijs2005/boardcontext/internal/server/ratelimit"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/boardcontext/internal/server/services"
)

const (
	testClientSecret  = "client-secret"
	testSigningSecret = "signing-secret"
)

type stubRoles struct {
	mu    sync.Mutex
	facts map[string]monday.RoleFacts
}

func (s *stubRoles) Roles(_ context.Context, _, _ string, ids []string) (map[string]monday.RoleFacts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]monday.RoleFacts, len(ids))
	for _, id := range ids {
		out[id] = s.facts[id]
	}
	return out, nil
}

type stubStore struct {
	mu      sync.Mutex
	objects map[string]int64
}

func (s *stubStore) put(key string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = size
}

func (s *stubStore) PresignPut(_ context.Context, key, _ string) (string, error) {
	return "https://upload.test/" + key, nil
}

func (s *stubStore) PresignGet(_ context.Context, key, _ string) (string, error) {
	return "https://download.test/" + key, nil
}

func (s *stubStore) Size(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.objects[key]
	if !ok {
		return 0, fmt.Errorf("object %s: %w", key, common.ErrorNotFound)
	}
	return n, nil
}

func (s *stubStore) Move(_ context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.objects[from]
	if !ok {
		return common.ErrorNotFound
	}
	delete(s.objects, from)
	s.objects[to] = n
	return nil
}

func (s *stubStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

type plainSealer struct{}

func (plainSealer) Seal(v string) (string, error) { return "sealed:" + v, nil }
func (plainSealer) Open(v string) (string, error) { return strings.TrimPrefix(v, "sealed:"), nil }

type stubOAuth struct{}

func (stubOAuth) AuthCodeURL() (string, error) {
	return "https://auth.test/authorize?state=good", nil
}

func (stubOAuth) VerifyState(state string) error {
	if state != "good" {
		return common.ErrInvalidToken
	}
	return nil
}

type stubExchanger struct{}

func (stubExchanger) Exchange(_ context.Context, code string) (*monday.Tokens, error) {
	return &monday.Tokens{AccessToken: "at-" + code, RefreshToken: "rt"}, nil
}

type stubAccounts struct{}

func (stubAccounts) Me(context.Context, string) (string, string, error) {
	return "100", "admin", nil
}

type apiHarness struct {
	db      *repomanager.InMemoryRepositoryManager
	roles   *stubRoles
	store   *stubStore
	handler http.Handler
}

func newAPI(t *testing.T, rateLimit int) *apiHarness {
	t.Helper()
	db := repomanager.NewInMemoryRepositoryManager()
	roles := &stubRoles{facts: map[string]monday.RoleFacts{
		"admin": {IsAdmin: true},
		"owner": {IsOwner: true},
	}}
	store := &stubStore{objects: map[string]int64{}}
	l := logging.NewNopLogger()

	access := services.NewAccessAuthority(db, roles, l)
	resolver := services.NewResolver(db, access, plainSealer{}, l)
	accountant := services.NewAccountant(db)
	svc := Services{
		Resolver: resolver,
		Access:   access,
		Usage:    accountant,
		Files:    services.NewFileService(db, store, access, accountant, l),
		Notes:    services.NewNoteService(db, access, l),
		Boards:   services.NewBoardService(db, access, accountant, store, l),
		Billing:  services.NewBillingService(db, resolver, access, l),
		Tenants:  services.NewTenantService(db, stubExchanger{}, stubAccounts{}, plainSealer{}, l),
	}
	srv := NewServer(Options{
		Sessions:  monday.NewSessionVerifier(testClientSecret),
		Webhooks:  monday.NewWebhookVerifier(testSigningSecret),
		OAuth:     stubOAuth{},
		Limiter:   ratelimit.NewInMemory(time.Minute),
		RateLimit: rateLimit,
	}, svc, l)
	return &apiHarness{db: db, roles: roles, store: store, handler: srv.Handler()}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := monday.IssueSession(testClientSecret, monday.Session{AccountID: "100", UserID: userID}, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a request as userID; an empty userID sends no session.
func (h *apiHarness) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:1234"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
