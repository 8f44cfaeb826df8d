package files

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
)

var (
	fileCols     = []string{"id", "board_id", "name", "size_bytes", "content_type", "storage_path", "uploaded_by", "created_at"}
	recoveryCols = []string{"id", "board_id", "file_id", "name", "size_bytes", "content_type", "storage_path", "vault_path",
		"uploaded_by", "file_created_at", "deleted_by", "deleted_at", "expires_at"}
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func sampleFile() *models.File {
	return &models.File{
		ID:          "f-1",
		BoardID:     "b-1",
		Name:        "report.pdf",
		SizeBytes:   6 << 20,
		ContentType: "application/pdf",
		StoragePath: "tenants/t-1/boards/b-1/files/x-report.pdf",
		UploadedBy:  "u-1",
		CreatedAt:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func fileRow(f *models.File) *sqlmock.Rows {
	return sqlmock.NewRows(fileCols).
		AddRow(f.ID, f.BoardID, f.Name, f.SizeBytes, f.ContentType, f.StoragePath, f.UploadedBy, f.CreatedAt)
}

const createQ = `(?s)^INSERT\s+INTO\s+files\s*\(id,.*ON\s+CONFLICT\s*\(storage_path\)\s*DO\s+NOTHING\s+RETURNING\s+id,`

func TestCreate_Inserted(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	f := sampleFile()
	mock.ExpectQuery(createQ).
		WithArgs(f.ID, f.BoardID, f.Name, f.SizeBytes, f.ContentType, f.StoragePath, f.UploadedBy, f.CreatedAt).
		WillReturnRows(fileRow(f))

	got, created, err := repo.Create(context.Background(), f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || got.ID != "f-1" || got.SizeBytes != 6<<20 {
		t.Fatalf("unexpected result: created=%v file=%+v", created, got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DuplicatePathReturnsExisting(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	f := sampleFile()
	existing := *f
	existing.ID = "f-original"

	mock.ExpectQuery(createQ).WillReturnRows(sqlmock.NewRows(fileCols))
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+files\s+WHERE\s+storage_path\s*=\s*\$1$`).
		WithArgs(f.StoragePath).
		WillReturnRows(fileRow(&existing))

	got, created, err := repo.Create(context.Background(), f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("expected created=false for a repeated storage path")
	}
	if got.ID != "f-original" {
		t.Fatalf("expected existing row, got %+v", got)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(createQ).WillReturnError(errors.New("db down"))

	_, _, err := repo.Create(context.Background(), sampleFile())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+files\s+WHERE\s+board_id\s*=\s*\$1\s+AND\s+id\s*=\s*\$2$`).
		WithArgs("b-1", "f-x").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "b-1", "f-x")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestListByBoard_RowsErr(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	f := sampleFile()
	rows := fileRow(f).
		AddRow("f-2", "b-1", "b.txt", int64(1), "text/plain", "p2", "u-1", f.CreatedAt).
		RowError(1, errors.New("row-err"))
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+files\s+WHERE\s+board_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC$`).
		WithArgs("b-1").
		WillReturnRows(rows)

	_, err := repo.ListByBoard(context.Background(), "b-1")
	if err == nil || err.Error() != "row-err" {
		t.Fatalf("expected rows.Err 'row-err', got %v", err)
	}
}

func TestListByBoard_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	f := sampleFile()
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+files\s+WHERE\s+board_id`).WithArgs("b-1").WillReturnRows(fileRow(f))

	got, err := repo.ListByBoard(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "report.pdf" {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `^DELETE\s+FROM\s+files\s+WHERE\s+board_id\s*=\s*\$1\s+AND\s+id\s*=\s*\$2$`
	mock.ExpectExec(q).WithArgs("b-1", "f-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("b-1", "f-2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs("b-1", "f-3").WillReturnResult(sqlmock.NewErrorResult(errors.New("rows-err")))

	if err := repo.Delete(context.Background(), "b-1", "f-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Delete(context.Background(), "b-1", "f-2"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
	if err := repo.Delete(context.Background(), "b-1", "f-3"); err == nil || !regexp.MustCompile(`rows affected error: .*rows-err`).MatchString(err.Error()) {
		t.Fatalf("expected rows affected error, got %v", err)
	}
}

func TestSumByBoard(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+COALESCE\(sum\(size_bytes\),\s*0\)\s+FROM\s+files\s+WHERE\s+board_id\s*=\s*\$1$`).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(1234)))

	sum, err := repo.SumByBoard(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum != 1234 {
		t.Fatalf("want 1234, got %d", sum)
	}
}

func TestObjectPathsByBoard(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+storage_path\s+FROM\s+files.*UNION\s+ALL\s+SELECT\s+vault_path\s+FROM\s+file_recovery_records`).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"storage_path"}).AddRow("a").AddRow("b"))

	got, err := repo.ObjectPathsByBoard(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected paths: %v", got)
	}
}

func sampleRecord() *models.FileRecoveryRecord {
	now := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	return &models.FileRecoveryRecord{
		ID:            "r-1",
		BoardID:       "b-1",
		FileID:        "f-1",
		Name:          "report.pdf",
		SizeBytes:     10,
		ContentType:   "application/pdf",
		StoragePath:   "tenants/t-1/boards/b-1/files/x-report.pdf",
		VaultPath:     "tenants/t-1/boards/b-1/recovery/r-1",
		UploadedBy:    "u-1",
		FileCreatedAt: now.Add(-time.Hour),
		DeletedBy:     "u-2",
		DeletedAt:     now,
		ExpiresAt:     now.Add(7 * 24 * time.Hour),
	}
}

func recoveryRow(r *models.FileRecoveryRecord) *sqlmock.Rows {
	return sqlmock.NewRows(recoveryCols).AddRow(r.ID, r.BoardID, r.FileID, r.Name, r.SizeBytes, r.ContentType,
		r.StoragePath, r.VaultPath, r.UploadedBy, r.FileCreatedAt, r.DeletedBy, r.DeletedAt, r.ExpiresAt)
}

func TestCreateRecovery(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	r := sampleRecord()
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+file_recovery_records\s*\(id,`).
		WithArgs(r.ID, r.BoardID, r.FileID, r.Name, r.SizeBytes, r.ContentType, r.StoragePath, r.VaultPath,
			r.UploadedBy, r.FileCreatedAt, r.DeletedBy, r.DeletedAt, r.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.CreateRecovery(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetRecovery(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	r := sampleRecord()
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+file_recovery_records\s+WHERE\s+board_id\s*=\s*\$1\s+AND\s+id\s*=\s*\$2$`).
		WithArgs("b-1", "r-1").
		WillReturnRows(recoveryRow(r))

	got, err := repo.GetRecovery(context.Background(), "b-1", "r-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.VaultPath != r.VaultPath || got.File().StoragePath != r.StoragePath {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestListExpiredRecovery(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+file_recovery_records\s+WHERE\s+expires_at\s*<=\s*\$1\s+ORDER\s+BY\s+expires_at\s+LIMIT\s+\$2$`).
		WithArgs(now, 100).
		WillReturnRows(recoveryRow(sampleRecord()))

	got, err := repo.ListExpiredRecovery(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 record, got %d", len(got))
	}
}

func TestDeleteRecovery_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE\s+FROM\s+file_recovery_records\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("r-x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.DeleteRecovery(context.Background(), "r-x"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}
