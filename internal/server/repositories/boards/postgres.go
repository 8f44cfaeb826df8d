// Package boards stores the external boards mapped into each tenant.
package boards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/dbx"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*models.Board, error) {
	b := &models.Board{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&b.ID, &b.TenantID, &b.ExternalBoardID, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID, externalBoardID string) (*models.Board, error) {
	query := `SELECT id, tenant_id, external_board_id, created_at FROM boards
		WHERE tenant_id = $1 AND external_board_id = $2`
	return r.queryOne(ctx, query, tenantID, externalBoardID)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Board, error) {
	query := `SELECT id, tenant_id, external_board_id, created_at FROM boards WHERE id = $1`
	return r.queryOne(ctx, query, id)
}

// Create inserts the board unless a concurrent request already did. The
// returned flag is true only when this call created the row.
func (r *PostgresRepository) Create(ctx context.Context, tenantID, externalBoardID string) (*models.Board, bool, error) {
	query := `INSERT INTO boards (tenant_id, external_board_id)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, external_board_id) DO NOTHING
		RETURNING id, tenant_id, external_board_id, created_at`

	b, err := r.queryOne(ctx, query, tenantID, externalBoardID)
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, false, err
	}

	b, err = r.Get(ctx, tenantID, externalBoardID)
	if err != nil {
		return nil, false, err
	}
	return b, false, nil
}

func (r *PostgresRepository) CountByTenant(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM boards WHERE tenant_id = $1`, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.Board, error) {
	query := `SELECT id, tenant_id, external_board_id, created_at FROM boards
		WHERE tenant_id = $1
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to select boards: %w", err)
	}
	defer rows.Close()

	var result []*models.Board
	for rows.Next() {
		b := &models.Board{}
		if err := rows.Scan(&b.ID, &b.TenantID, &b.ExternalBoardID, &b.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListSummaries returns the tenant's boards with file counts and bytes.
func (r *PostgresRepository) ListSummaries(ctx context.Context, tenantID string) ([]*models.BoardSummary, error) {
	query := `SELECT b.id, b.tenant_id, b.external_board_id, b.created_at,
			count(f.id), COALESCE(sum(f.size_bytes), 0)
		FROM boards b
		LEFT JOIN files f ON f.board_id = b.id
		WHERE b.tenant_id = $1
		GROUP BY b.id
		ORDER BY b.created_at`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to select boards: %w", err)
	}
	defer rows.Close()

	var result []*models.BoardSummary
	for rows.Next() {
		s := &models.BoardSummary{}
		if err := rows.Scan(&s.ID, &s.TenantID, &s.ExternalBoardID, &s.CreatedAt, &s.FileCount, &s.FileBytes); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes the board; files, notes, snapshots, viewers and recovery
// records go with it via ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM boards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete board: %w", err)
	}
	if err := dbx.ExpectOne(res); err != nil {
		if errors.Is(err, dbx.ErrNoRowsAffected) {
			return common.ErrorNotFound
		}
		return err
	}
	return nil
}

// DeleteIfUnused removes the board only while it holds no files or notes
// and no viewer rows other than userID's. It reports whether the row went.
func (r *PostgresRepository) DeleteIfUnused(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM boards b
		WHERE b.id = $1
		  AND NOT EXISTS (SELECT 1 FROM files WHERE board_id = b.id)
		  AND NOT EXISTS (SELECT 1 FROM file_recovery_records WHERE board_id = b.id)
		  AND NOT EXISTS (SELECT 1 FROM notes WHERE board_id = b.id)
		  AND NOT EXISTS (SELECT 1 FROM board_viewers WHERE board_id = b.id AND user_id <> $2)`,
		id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete board: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}
