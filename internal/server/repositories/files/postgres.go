// Package files stores confirmed attachments and their recovery vault records.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/dbx"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
)

const (
	fileColumns     = `id, board_id, name, size_bytes, content_type, storage_path, uploaded_by, created_at`
	recoveryColumns = `id, board_id, file_id, name, size_bytes, content_type, storage_path, vault_path,
	uploaded_by, file_created_at, deleted_by, deleted_at, expires_at`
)

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*models.File, error) {
	f := &models.File{}
	if err := row.Scan(&f.ID, &f.BoardID, &f.Name, &f.SizeBytes, &f.ContentType, &f.StoragePath, &f.UploadedBy, &f.CreatedAt); err != nil {
		return nil, err
	}
	return f, nil
}

func scanRecovery(row scanner) (*models.FileRecoveryRecord, error) {
	r := &models.FileRecoveryRecord{}
	if err := row.Scan(&r.ID, &r.BoardID, &r.FileID, &r.Name, &r.SizeBytes, &r.ContentType, &r.StoragePath, &r.VaultPath,
		&r.UploadedBy, &r.FileCreatedAt, &r.DeletedBy, &r.DeletedAt, &r.ExpiresAt); err != nil {
		return nil, err
	}
	return r, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

// Create inserts a file keyed by its unique storage path. When the path is
// already recorded the existing row is returned with created=false, which
// makes upload confirmation idempotent.
func (r *PostgresRepository) Create(ctx context.Context, file *models.File) (*models.File, bool, error) {
	query := `INSERT INTO files (id, board_id, name, size_bytes, content_type, storage_path, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (storage_path) DO NOTHING
		RETURNING ` + fileColumns

	created, err := scanFile(r.db.QueryRowContext(ctx, query,
		file.ID, file.BoardID, file.Name, file.SizeBytes, file.ContentType, file.StoragePath, file.UploadedBy, file.CreatedAt))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	existing, err := scanFile(r.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE storage_path = $1`, file.StoragePath))
	if err != nil {
		return nil, false, notFound(err)
	}
	return existing, false, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, boardID, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE board_id = $1 AND id = $2`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, boardID, id))
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}

func (r *PostgresRepository) ListByBoard(ctx context.Context, boardID string) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE board_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, boardID, id string) error {
	return r.execOne(ctx, `DELETE FROM files WHERE board_id = $1 AND id = $2`, boardID, id)
}

func (r *PostgresRepository) SumByBoard(ctx context.Context, boardID string) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(sum(size_bytes), 0) FROM files WHERE board_id = $1`, boardID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return sum, nil
}

// ObjectPathsByBoard lists every object key the board owns, live files and
// vaulted ones alike.
func (r *PostgresRepository) ObjectPathsByBoard(ctx context.Context, boardID string) ([]string, error) {
	query := `SELECT storage_path FROM files WHERE board_id = $1
		UNION ALL
		SELECT vault_path FROM file_recovery_records WHERE board_id = $1`
	rows, err := r.db.QueryContext(ctx, query, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to select object paths: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) CreateRecovery(ctx context.Context, rec *models.FileRecoveryRecord) error {
	query := `INSERT INTO file_recovery_records (` + recoveryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.BoardID, rec.FileID, rec.Name, rec.SizeBytes, rec.ContentType, rec.StoragePath, rec.VaultPath,
		rec.UploadedBy, rec.FileCreatedAt, rec.DeletedBy, rec.DeletedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetRecovery(ctx context.Context, boardID, id string) (*models.FileRecoveryRecord, error) {
	query := `SELECT ` + recoveryColumns + ` FROM file_recovery_records WHERE board_id = $1 AND id = $2`
	rec, err := scanRecovery(r.db.QueryRowContext(ctx, query, boardID, id))
	if err != nil {
		return nil, notFound(err)
	}
	return rec, nil
}

func (r *PostgresRepository) ListRecovery(ctx context.Context, boardID string) ([]*models.FileRecoveryRecord, error) {
	query := `SELECT ` + recoveryColumns + ` FROM file_recovery_records WHERE board_id = $1 ORDER BY deleted_at DESC`
	return r.listRecovery(ctx, query, boardID)
}

// ListExpiredRecovery returns up to limit records whose retention ended
// at or before now, oldest first.
func (r *PostgresRepository) ListExpiredRecovery(ctx context.Context, now time.Time, limit int) ([]*models.FileRecoveryRecord, error) {
	query := `SELECT ` + recoveryColumns + ` FROM file_recovery_records
		WHERE expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`
	return r.listRecovery(ctx, query, now, limit)
}

func (r *PostgresRepository) listRecovery(ctx context.Context, query string, args ...any) ([]*models.FileRecoveryRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select recovery records: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecoveryRecord
	for rows.Next() {
		rec, err := scanRecovery(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) DeleteRecovery(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM file_recovery_records WHERE id = $1`, id)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := dbx.ExpectOne(res); err != nil {
		if errors.Is(err, dbx.ErrNoRowsAffected) {
			return common.ErrorNotFound
		}
		return err
	}
	return nil
}
