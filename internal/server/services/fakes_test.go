package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/logging"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/monday"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/repomanager"
)

// testClock advances one second per reading so rows get distinct,
// ordered timestamps.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Second)
	return t
}

func (c *testClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeRoles answers role queries from a fixed table.
type fakeRoles struct {
	mu    sync.Mutex
	facts map[string]monday.RoleFacts
	err   error
	calls int
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{facts: map[string]monday.RoleFacts{}}
}

func (f *fakeRoles) set(userID string, admin, owner bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facts[userID] = monday.RoleFacts{IsAdmin: admin, IsOwner: owner}
}

func (f *fakeRoles) Roles(ctx context.Context, credential, ext string, ids []string) (map[string]monday.RoleFacts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]monday.RoleFacts, len(ids))
	for _, id := range ids {
		out[id] = f.facts[id]
	}
	return out, nil
}

// fakeStore is an object store keyed by path holding object sizes.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string]int64
	failOn  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]int64{}, failOn: map[string]error{}}
}

func (s *fakeStore) fail(op string) error {
	if err, ok := s.failOn[op]; ok {
		delete(s.failOn, op)
		return err
	}
	return nil
}

func (s *fakeStore) put(key string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = size
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *fakeStore) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	return "https://s3.test/put/" + key, nil
}

func (s *fakeStore) PresignGet(ctx context.Context, key, filename string) (string, error) {
	return "https://s3.test/get/" + key, nil
}

func (s *fakeStore) Size(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.objects[key]
	if !ok {
		return 0, fmt.Errorf("head %s: %w", key, common.ErrorNotFound)
	}
	return n, nil
}

func (s *fakeStore) Move(ctx context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("move"); err != nil {
		return err
	}
	n, ok := s.objects[from]
	if !ok {
		return common.ErrorNotFound
	}
	delete(s.objects, from)
	s.objects[to] = n
	return nil
}

func (s *fakeStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("remove"); err != nil {
		return err
	}
	delete(s.objects, key)
	return nil
}

// plainSealer marks sealed values with a readable prefix.
type plainSealer struct{}

func (plainSealer) Seal(v string) (string, error) { return "sealed:" + v, nil }
func (plainSealer) Open(v string) (string, error) {
	if len(v) > 7 && v[:7] == "sealed:" {
		return v[7:], nil
	}
	return v, nil
}

var errBoom = errors.New("boom")

// harness wires every service over the fakes.
type harness struct {
	db       *repomanager.InMemoryRepositoryManager
	clock    *testClock
	roles    *fakeRoles
	store    *fakeStore
	access   *AccessAuthority
	resolver *Resolver
	usage    *Accountant
	files    *FileService
	notes    *NoteService
	boards   *BoardService
	billing  *BillingService
}

func newHarness() *harness {
	h := &harness{
		db:    repomanager.NewInMemoryRepositoryManager(),
		clock: &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		roles: newFakeRoles(),
		store: newFakeStore(),
	}
	h.db.Clock = h.clock.Now
	log := logging.NewNopLogger()
	h.access = NewAccessAuthority(h.db, h.roles, log)
	h.resolver = NewResolver(h.db, h.access, plainSealer{}, log)
	h.usage = NewAccountant(h.db)
	h.files = NewFileService(h.db, h.store, h.access, h.usage, log)
	h.notes = NewNoteService(h.db, h.access, log)
	h.boards = NewBoardService(h.db, h.access, h.usage, h.store, log)
	h.billing = NewBillingService(h.db, h.resolver, h.access, log)
	return h
}

// scope resolves a board and checks viewer access the way the API does.
func (h *harness) scope(ctx context.Context, account, ext, userID string) (*Scope, *Resolution, error) {
	res, err := h.resolver.Resolve(ctx, account, ext, userID)
	if err != nil {
		return nil, nil, err
	}
	if err := h.access.WithRollback(ctx, res, userID, "cred"); err != nil {
		return nil, res, err
	}
	return NewScope(res, userID, "cred"), res, nil
}

func (h *harness) tick() time.Time {
	return h.clock.Now()
}

// storageSum adds up the live file sizes of the tenant.
func (h *harness) storageSum(tenantID string) int64 {
	ctx := context.Background()
	list, _ := h.db.Boards(nil).ListByTenant(ctx, tenantID)
	var sum int64
	for _, b := range list {
		n, _ := h.db.Files(nil).SumByBoard(ctx, b.ID)
		sum += n
	}
	return sum
}

func (h *harness) tenant(id string) models.Tenant {
	t, err := h.db.Tenants(nil).GetByID(context.Background(), id)
	if err != nil {
		return models.Tenant{}
	}
	return *t
}

// boardCount counts the tenant's boards, only those with ext when set.
func (h *harness) boardCount(tenantID, ext string) int {
	list, _ := h.db.Boards(nil).ListByTenant(context.Background(), tenantID)
	n := 0
	for _, b := range list {
		if ext == "" || b.ExternalBoardID == ext {
			n++
		}
	}
	return n
}

func (h *harness) viewer(boardID, userID string) (models.BoardViewer, bool) {
	v, err := h.db.Viewers(nil).Get(context.Background(), boardID, userID)
	if err != nil {
		return models.BoardViewer{}, false
	}
	return *v, true
}

// putViewer stores a row last updated at ts.
func (h *harness) putViewer(boardID, userID string, status models.ViewerStatus, ts time.Time) {
	h.clock.set(ts)
	_ = h.db.Viewers(nil).SetStatus(context.Background(), boardID, userID, status)
}

func (h *harness) setPlan(tenantID string, p plans.Plan) {
	_ = h.db.Tenants(nil).SetPlan(context.Background(), tenantID, p, models.BillingStatusActive)
}
