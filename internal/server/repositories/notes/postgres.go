// Package notes stores the per-board shared note and its daily snapshots.
package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/dbx"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, boardID string) (*models.Note, error) {
	query := `SELECT board_id, html, is_empty, updated_by, updated_at FROM notes WHERE board_id = $1`

	n := &models.Note{}
	err := r.db.QueryRowContext(ctx, query, boardID).Scan(&n.BoardID, &n.HTML, &n.IsEmpty, &n.UpdatedBy, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// Save upserts the note of a board. An empty body never replaces a
// non-empty one unless allowClear is set; the guard runs inside the
// statement so a concurrent writer cannot slip between check and write.
// A rejected write returns common.ErrNoteClearRejected.
func (r *PostgresRepository) Save(ctx context.Context, note *models.Note, allowClear bool) (*models.Note, error) {
	query := `INSERT INTO notes (board_id, html, is_empty, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (board_id)
		DO UPDATE SET
			html = EXCLUDED.html,
			is_empty = EXCLUDED.is_empty,
			updated_by = EXCLUDED.updated_by,
			updated_at = now()
			WHERE $5 OR NOT EXCLUDED.is_empty OR notes.is_empty
		RETURNING board_id, html, is_empty, updated_by, updated_at`

	saved := &models.Note{}
	err := r.db.QueryRowContext(ctx, query, note.BoardID, note.HTML, note.IsEmpty, note.UpdatedBy, allowClear).
		Scan(&saved.BoardID, &saved.HTML, &saved.IsEmpty, &saved.UpdatedBy, &saved.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNoteClearRejected
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return saved, nil
}

func (r *PostgresRepository) ListSnapshotCandidates(ctx context.Context) ([]*SnapshotCandidate, error) {
	query := `SELECT n.board_id, n.html, n.is_empty, n.updated_by, n.updated_at, t.plan
		FROM notes n
		JOIN boards b ON b.id = n.board_id
		JOIN tenants t ON t.id = b.tenant_id
		WHERE NOT n.is_empty`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []*SnapshotCandidate
	for rows.Next() {
		c := &SnapshotCandidate{}
		var plan string
		if err := rows.Scan(&c.Note.BoardID, &c.Note.HTML, &c.Note.IsEmpty, &c.Note.UpdatedBy, &c.Note.UpdatedAt, &plan); err != nil {
			return nil, err
		}
		c.Plan = plans.Normalize(plan)
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertSnapshot stores the capture for (board, day), replacing an earlier
// capture of the same day.
func (r *PostgresRepository) UpsertSnapshot(ctx context.Context, boardID string, day time.Time, html string) error {
	query := `INSERT INTO note_snapshots (board_id, day, html)
		VALUES ($1, $2, $3)
		ON CONFLICT (board_id, day)
		DO UPDATE SET html = EXCLUDED.html, created_at = now()`
	if _, err := r.db.ExecContext(ctx, query, boardID, day, html); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// PruneSnapshots keeps the newest keep snapshots of the board.
func (r *PostgresRepository) PruneSnapshots(ctx context.Context, boardID string, keep int) (int64, error) {
	query := `DELETE FROM note_snapshots
		WHERE board_id = $1 AND id NOT IN (
			SELECT id FROM note_snapshots WHERE board_id = $1 ORDER BY day DESC LIMIT $2
		)`
	res, err := r.db.ExecContext(ctx, query, boardID, keep)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListSnapshots(ctx context.Context, boardID string) ([]*models.NoteSnapshot, error) {
	query := `SELECT id, board_id, day, html, created_at FROM note_snapshots
		WHERE board_id = $1
		ORDER BY day DESC`
	rows, err := r.db.QueryContext(ctx, query, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to select snapshots: %w", err)
	}
	defer rows.Close()

	var result []*models.NoteSnapshot
	for rows.Next() {
		s := &models.NoteSnapshot{}
		if err := rows.Scan(&s.ID, &s.BoardID, &s.Day, &s.HTML, &s.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) GetSnapshot(ctx context.Context, boardID, id string) (*models.NoteSnapshot, error) {
	query := `SELECT id, board_id, day, html, created_at FROM note_snapshots WHERE board_id = $1 AND id = $2`

	s := &models.NoteSnapshot{}
	err := r.db.QueryRowContext(ctx, query, boardID, id).Scan(&s.ID, &s.BoardID, &s.Day, &s.HTML, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}
