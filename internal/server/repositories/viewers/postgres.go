// Package viewers stores per-board access records.
package viewers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/dbx"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
)

const columns = `board_id, user_id, status, display_name, email, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*models.BoardViewer, error) {
	v := &models.BoardViewer{}
	var status string
	if err := row.Scan(&v.BoardID, &v.UserID, &status, &v.DisplayName, &v.Email, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.Status = models.ViewerStatus(status)
	return v, nil
}

func (r *PostgresRepository) Get(ctx context.Context, boardID, userID string) (*models.BoardViewer, error) {
	query := `SELECT ` + columns + ` FROM board_viewers WHERE board_id = $1 AND user_id = $2`
	v, err := scan(r.db.QueryRowContext(ctx, query, boardID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

// Create inserts the first access record for (board, user). When a
// concurrent request got there first, the stored row wins and is returned
// unchanged.
func (r *PostgresRepository) Create(ctx context.Context, v *models.BoardViewer) (*models.BoardViewer, error) {
	query := `INSERT INTO board_viewers (board_id, user_id, status, display_name, email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (board_id, user_id)
		DO UPDATE SET board_id = EXCLUDED.board_id
		RETURNING ` + columns
	stored, err := scan(r.db.QueryRowContext(ctx, query, v.BoardID, v.UserID, string(v.Status), v.DisplayName, v.Email))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return stored, nil
}

// SetStatus upserts the stored status and bumps updated_at.
func (r *PostgresRepository) SetStatus(ctx context.Context, boardID, userID string, status models.ViewerStatus) error {
	query := `INSERT INTO board_viewers (board_id, user_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (board_id, user_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = now()`
	if _, err := r.db.ExecContext(ctx, query, boardID, userID, string(status)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByBoard(ctx context.Context, boardID string) ([]*models.BoardViewer, error) {
	query := `SELECT ` + columns + ` FROM board_viewers WHERE board_id = $1 ORDER BY created_at`
	return r.list(ctx, query, boardID)
}

// ListCounted returns the rows holding a seat (allowed or editor), most
// recently updated first.
func (r *PostgresRepository) ListCounted(ctx context.Context, boardID string) ([]*models.BoardViewer, error) {
	query := `SELECT ` + columns + ` FROM board_viewers
		WHERE board_id = $1 AND status IN ('allowed', 'editor')
		ORDER BY updated_at DESC`
	return r.list(ctx, query, boardID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.BoardViewer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select viewers: %w", err)
	}
	defer rows.Close()

	var result []*models.BoardViewer
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) CountCountedByTenant(ctx context.Context, tenantID string) (int64, error) {
	query := `SELECT count(*) FROM board_viewers v
		JOIN boards b ON b.id = v.board_id
		WHERE b.tenant_id = $1 AND v.status IN ('allowed', 'editor')`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
