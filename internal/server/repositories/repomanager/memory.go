package repomanager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/dbx"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/boards"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/files"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/notes"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/tenants"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/viewers"
)

// memState is the in-memory database behind the map repositories.
type memState struct {
	tenants   map[string]models.Tenant
	boards    map[string]models.Board
	files     map[string]models.File
	recovery  map[string]models.FileRecoveryRecord
	notes     map[string]models.Note
	snapshots map[string]models.NoteSnapshot
	viewers   map[[2]string]models.BoardViewer
}

func newMemState() memState {
	return memState{
		tenants:   map[string]models.Tenant{},
		boards:    map[string]models.Board{},
		files:     map[string]models.File{},
		recovery:  map[string]models.FileRecoveryRecord{},
		notes:     map[string]models.Note{},
		snapshots: map[string]models.NoteSnapshot{},
		viewers:   map[[2]string]models.BoardViewer{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s memState) clone() memState {
	return memState{
		tenants:   copyMap(s.tenants),
		boards:    copyMap(s.boards),
		files:     copyMap(s.files),
		recovery:  copyMap(s.recovery),
		notes:     copyMap(s.notes),
		snapshots: copyMap(s.snapshots),
		viewers:   copyMap(s.viewers),
	}
}

var _ RepositoryManager = (*InMemoryRepositoryManager)(nil)

// InMemoryRepositoryManager keeps every table in maps. It backs local runs
// without Postgres and the service tests. InTx restores the previous state
// when fn fails, the way a rollback would; transactions are serialized but
// not isolated from writes made outside them.
type InMemoryRepositoryManager struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state memState
	// Clock stamps created_at and updated_at.
	Clock func() time.Time

	failOn map[string]error
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		state:  newMemState(),
		Clock:  time.Now,
		failOn: map[string]error{},
	}
}

// FailNext makes the next call of op return err. Ops are named
// "<table>.<method>", e.g. "tenants.increment".
func (m *InMemoryRepositoryManager) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[op] = err
}

func (m *InMemoryRepositoryManager) tick() time.Time {
	return m.Clock().UTC()
}

func (m *InMemoryRepositoryManager) fail(op string) error {
	if err, ok := m.failOn[op]; ok {
		delete(m.failOn, op)
		return err
	}
	return nil
}

func (m *InMemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *InMemoryRepositoryManager) Conn() dbx.DBTX { return nil }

func (m *InMemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	saved := m.state.clone()
	m.mu.Unlock()
	if err := fn(ctx, nil); err != nil {
		m.mu.Lock()
		m.state = saved
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *InMemoryRepositoryManager) Tenants(dbx.DBTX) tenants.Repository { return memTenants{m} }
func (m *InMemoryRepositoryManager) Boards(dbx.DBTX) boards.Repository   { return memBoards{m} }
func (m *InMemoryRepositoryManager) Files(dbx.DBTX) files.Repository     { return memFiles{m} }
func (m *InMemoryRepositoryManager) Notes(dbx.DBTX) notes.Repository     { return memNotes{m} }
func (m *InMemoryRepositoryManager) Viewers(dbx.DBTX) viewers.Repository { return memViewers{m} }

type memTenants struct{ m *InMemoryRepositoryManager }

func (r memTenants) Upsert(ctx context.Context, accountID string) (*models.Tenant, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("tenants.upsert"); err != nil {
		return nil, err
	}
	for _, t := range m.state.tenants {
		if t.AccountID == accountID {
			return &t, nil
		}
	}
	now := m.tick()
	t := models.Tenant{
		ID: uuid.NewString(), AccountID: accountID, Plan: plans.Free,
		BillingStatus: models.BillingStatusNone, CreatedAt: now, UpdatedAt: now,
	}
	m.state.tenants[t.ID] = t
	return &t, nil
}

func (r memTenants) UpsertCredentials(ctx context.Context, accountID, access, refresh string) (*models.Tenant, error) {
	t, err := r.Upsert(ctx, accountID)
	if err != nil {
		return nil, err
	}
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	t.AccessToken = access
	if refresh != "" {
		t.RefreshToken = refresh
	}
	m.state.tenants[t.ID] = *t
	return t, nil
}

func (r memTenants) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.state.tenants[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r memTenants) GetByAccountID(ctx context.Context, accountID string) (*models.Tenant, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.state.tenants {
		if t.AccountID == accountID {
			return &t, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memTenants) IncrementStorage(ctx context.Context, id string, delta int64) (int64, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("tenants.increment"); err != nil {
		return 0, err
	}
	t, ok := m.state.tenants[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	t.StorageBytesUsed += delta
	m.state.tenants[id] = t
	return t.StorageBytesUsed, nil
}

func (r memTenants) update(id string, fn func(t *models.Tenant)) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.state.tenants[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(&t)
	m.state.tenants[id] = t
	return nil
}

func (r memTenants) SetPlan(ctx context.Context, id string, p plans.Plan, status string) error {
	return r.update(id, func(t *models.Tenant) { t.Plan, t.BillingStatus, t.PendingPlan = p, status, "" })
}

func (r memTenants) SetPendingPlan(ctx context.Context, id string, p plans.Plan) error {
	return r.update(id, func(t *models.Tenant) { t.PendingPlan = string(p) })
}

func (r memTenants) SetBoardAdminDelete(ctx context.Context, id string, enabled bool) error {
	return r.update(id, func(t *models.Tenant) { t.BoardAdminDeleteEnabled = enabled })
}

type memBoards struct{ m *InMemoryRepositoryManager }

func (r memBoards) Get(ctx context.Context, tenantID, ext string) (*models.Board, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.state.boards {
		if b.TenantID == tenantID && b.ExternalBoardID == ext {
			return &b, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memBoards) GetByID(ctx context.Context, id string) (*models.Board, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.state.boards[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &b, nil
}

func (r memBoards) Create(ctx context.Context, tenantID, ext string) (*models.Board, bool, error) {
	if b, err := r.Get(ctx, tenantID, ext); err == nil {
		return b, false, nil
	}
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	b := models.Board{ID: uuid.NewString(), TenantID: tenantID, ExternalBoardID: ext, CreatedAt: m.tick()}
	m.state.boards[b.ID] = b
	return &b, true, nil
}

func (r memBoards) CountByTenant(ctx context.Context, tenantID string) (int64, error) {
	list, err := r.ListByTenant(ctx, tenantID)
	return int64(len(list)), err
}

func (r memBoards) ListByTenant(ctx context.Context, tenantID string) ([]*models.Board, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Board
	for _, b := range m.state.boards {
		if b.TenantID == tenantID {
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memBoards) ListSummaries(ctx context.Context, tenantID string) ([]*models.BoardSummary, error) {
	list, _ := r.ListByTenant(ctx, tenantID)
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.BoardSummary, 0, len(list))
	for _, b := range list {
		s := &models.BoardSummary{Board: *b}
		for _, f := range m.state.files {
			if f.BoardID == b.ID {
				s.FileCount++
				s.FileBytes += f.SizeBytes
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (r memBoards) Delete(ctx context.Context, id string) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("boards.delete"); err != nil {
		return err
	}
	if _, ok := m.state.boards[id]; !ok {
		return common.ErrorNotFound
	}
	m.dropBoard(id)
	return nil
}

func (r memBoards) DeleteIfUnused(ctx context.Context, id, userID string) (bool, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("boards.delete"); err != nil {
		return false, err
	}
	if _, ok := m.state.boards[id]; !ok {
		return false, nil
	}
	for _, f := range m.state.files {
		if f.BoardID == id {
			return false, nil
		}
	}
	for _, rec := range m.state.recovery {
		if rec.BoardID == id {
			return false, nil
		}
	}
	if _, ok := m.state.notes[id]; ok {
		return false, nil
	}
	for _, v := range m.state.viewers {
		if v.BoardID == id && v.UserID != userID {
			return false, nil
		}
	}
	m.dropBoard(id)
	return true, nil
}

// dropBoard removes the board and everything that cascades from it.
// Callers hold m.mu.
func (m *InMemoryRepositoryManager) dropBoard(id string) {
	delete(m.state.boards, id)
	for k, f := range m.state.files {
		if f.BoardID == id {
			delete(m.state.files, k)
		}
	}
	for k, rec := range m.state.recovery {
		if rec.BoardID == id {
			delete(m.state.recovery, k)
		}
	}
	for k, v := range m.state.viewers {
		if v.BoardID == id {
			delete(m.state.viewers, k)
		}
	}
	for k, s := range m.state.snapshots {
		if s.BoardID == id {
			delete(m.state.snapshots, k)
		}
	}
	delete(m.state.notes, id)
}

type memFiles struct{ m *InMemoryRepositoryManager }

func (r memFiles) Create(ctx context.Context, f *models.File) (*models.File, bool, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("files.create"); err != nil {
		return nil, false, err
	}
	for _, existing := range m.state.files {
		if existing.StoragePath == f.StoragePath {
			return &existing, false, nil
		}
	}
	row := *f
	row.CreatedAt = m.tick()
	m.state.files[row.ID] = row
	return &row, true, nil
}

func (r memFiles) GetByID(ctx context.Context, boardID, id string) (*models.File, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.state.files[id]
	if !ok || f.BoardID != boardID {
		return nil, common.ErrorNotFound
	}
	return &f, nil
}

func (r memFiles) ListByBoard(ctx context.Context, boardID string) ([]*models.File, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.File
	for _, f := range m.state.files {
		if f.BoardID == boardID {
			out = append(out, &f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memFiles) Delete(ctx context.Context, boardID, id string) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("files.delete"); err != nil {
		return err
	}
	f, ok := m.state.files[id]
	if !ok || f.BoardID != boardID {
		return common.ErrorNotFound
	}
	delete(m.state.files, id)
	return nil
}

func (r memFiles) SumByBoard(ctx context.Context, boardID string) (int64, error) {
	list, _ := r.ListByBoard(ctx, boardID)
	var sum int64
	for _, f := range list {
		sum += f.SizeBytes
	}
	return sum, nil
}

func (r memFiles) ObjectPathsByBoard(ctx context.Context, boardID string) ([]string, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, f := range m.state.files {
		if f.BoardID == boardID {
			out = append(out, f.StoragePath)
		}
	}
	for _, rec := range m.state.recovery {
		if rec.BoardID == boardID {
			out = append(out, rec.VaultPath)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r memFiles) CreateRecovery(ctx context.Context, rec *models.FileRecoveryRecord) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("files.createRecovery"); err != nil {
		return err
	}
	m.state.recovery[rec.ID] = *rec
	return nil
}

func (r memFiles) GetRecovery(ctx context.Context, boardID, id string) (*models.FileRecoveryRecord, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.state.recovery[id]
	if !ok || rec.BoardID != boardID {
		return nil, common.ErrorNotFound
	}
	return &rec, nil
}

func (r memFiles) ListRecovery(ctx context.Context, boardID string) ([]*models.FileRecoveryRecord, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.FileRecoveryRecord
	for _, rec := range m.state.recovery {
		if rec.BoardID == boardID {
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt.After(out[j].DeletedAt) })
	return out, nil
}

func (r memFiles) DeleteRecovery(ctx context.Context, id string) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("files.deleteRecovery"); err != nil {
		return err
	}
	if _, ok := m.state.recovery[id]; !ok {
		return common.ErrorNotFound
	}
	delete(m.state.recovery, id)
	return nil
}

func (r memFiles) ListExpiredRecovery(ctx context.Context, now time.Time, limit int) ([]*models.FileRecoveryRecord, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.FileRecoveryRecord
	for _, rec := range m.state.recovery {
		if !rec.ExpiresAt.After(now) {
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memNotes struct{ m *InMemoryRepositoryManager }

func (r memNotes) Get(ctx context.Context, boardID string) (*models.Note, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.state.notes[boardID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &n, nil
}

func (r memNotes) Save(ctx context.Context, n *models.Note, allowClear bool) (*models.Note, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.state.notes[n.BoardID]; ok && n.IsEmpty && !cur.IsEmpty && !allowClear {
		return nil, common.ErrNoteClearRejected
	}
	row := *n
	row.UpdatedAt = m.tick()
	m.state.notes[n.BoardID] = row
	return &row, nil
}

func (r memNotes) ListSnapshotCandidates(ctx context.Context) ([]*notes.SnapshotCandidate, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notes.SnapshotCandidate
	for _, n := range m.state.notes {
		if n.IsEmpty {
			continue
		}
		b := m.state.boards[n.BoardID]
		out = append(out, &notes.SnapshotCandidate{Note: n, Plan: m.state.tenants[b.TenantID].Plan})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Note.BoardID < out[j].Note.BoardID })
	return out, nil
}

func (r memNotes) UpsertSnapshot(ctx context.Context, boardID string, day time.Time, html string) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, s := range m.state.snapshots {
		if s.BoardID == boardID && s.Day.Equal(day) {
			s.HTML = html
			m.state.snapshots[k] = s
			return nil
		}
	}
	id := uuid.NewString()
	m.state.snapshots[id] = models.NoteSnapshot{ID: id, BoardID: boardID, Day: day, HTML: html, CreatedAt: m.tick()}
	return nil
}

func (r memNotes) PruneSnapshots(ctx context.Context, boardID string, keep int) (int64, error) {
	list, _ := r.ListSnapshots(ctx, boardID)
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i, s := range list {
		if i >= keep {
			delete(m.state.snapshots, s.ID)
			n++
		}
	}
	return n, nil
}

func (r memNotes) ListSnapshots(ctx context.Context, boardID string) ([]*models.NoteSnapshot, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.NoteSnapshot
	for _, s := range m.state.snapshots {
		if s.BoardID == boardID {
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.After(out[j].Day) })
	return out, nil
}

func (r memNotes) GetSnapshot(ctx context.Context, boardID, id string) (*models.NoteSnapshot, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state.snapshots[id]
	if !ok || s.BoardID != boardID {
		return nil, common.ErrorNotFound
	}
	return &s, nil
}

type memViewers struct{ m *InMemoryRepositoryManager }

func (r memViewers) Get(ctx context.Context, boardID, userID string) (*models.BoardViewer, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.state.viewers[[2]string{boardID, userID}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &v, nil
}

func (r memViewers) Create(ctx context.Context, v *models.BoardViewer) (*models.BoardViewer, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{v.BoardID, v.UserID}
	if cur, ok := m.state.viewers[key]; ok {
		return &cur, nil
	}
	now := m.tick()
	row := *v
	row.CreatedAt, row.UpdatedAt = now, now
	m.state.viewers[key] = row
	return &row, nil
}

func (r memViewers) SetStatus(ctx context.Context, boardID, userID string, status models.ViewerStatus) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("viewers.setStatus"); err != nil {
		return err
	}
	key := [2]string{boardID, userID}
	now := m.tick()
	row, ok := m.state.viewers[key]
	if !ok {
		row = models.BoardViewer{BoardID: boardID, UserID: userID, CreatedAt: now}
	}
	row.Status, row.UpdatedAt = status, now
	m.state.viewers[key] = row
	return nil
}

func (r memViewers) ListByBoard(ctx context.Context, boardID string) ([]*models.BoardViewer, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.BoardViewer
	for _, v := range m.state.viewers {
		if v.BoardID == boardID {
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memViewers) ListCounted(ctx context.Context, boardID string) ([]*models.BoardViewer, error) {
	r.m.mu.Lock()
	err := r.m.fail("viewers.listCounted")
	r.m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	all, _ := r.ListByBoard(ctx, boardID)
	var out []*models.BoardViewer
	for _, v := range all {
		if v.Status.Counted() {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r memViewers) CountCountedByTenant(ctx context.Context, tenantID string) (int64, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, v := range m.state.viewers {
		if m.state.boards[v.BoardID].TenantID == tenantID && v.Status.Counted() {
			n++
		}
	}
	return n, nil
}
