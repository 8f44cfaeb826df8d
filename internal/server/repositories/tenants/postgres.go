// Package tenants stores one row per external platform account.
package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/dbx"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
)

const columns = `id, external_account_id, plan, COALESCE(pending_plan, ''), billing_status, storage_bytes_used,
	access_token, refresh_token, board_admin_delete_enabled, created_at, updated_at`

// PostgresRepository implements tenant storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*models.Tenant, error) {
	t := &models.Tenant{}
	var plan string
	err := row.Scan(&t.ID, &t.AccountID, &plan, &t.PendingPlan, &t.BillingStatus, &t.StorageBytesUsed,
		&t.AccessToken, &t.RefreshToken, &t.BoardAdminDeleteEnabled, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	t.Plan = plans.Normalize(plan)
	return t, nil
}

// Upsert returns the tenant for accountID, creating it on the free plan
// when absent. Concurrent first touches resolve on the unique account id.
func (r *PostgresRepository) Upsert(ctx context.Context, accountID string) (*models.Tenant, error) {
	query := `INSERT INTO tenants (external_account_id, plan)
		VALUES ($1, $2)
		ON CONFLICT (external_account_id)
		DO UPDATE SET external_account_id = EXCLUDED.external_account_id
		RETURNING ` + columns

	return scan(r.db.QueryRowContext(ctx, query, accountID, string(plans.Free)))
}

// UpsertCredentials stores sealed platform tokens for accountID.
func (r *PostgresRepository) UpsertCredentials(ctx context.Context, accountID, accessToken, refreshToken string) (*models.Tenant, error) {
	query := `INSERT INTO tenants (external_account_id, plan, access_token, refresh_token)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_account_id)
		DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN tenants.refresh_token ELSE EXCLUDED.refresh_token END,
			updated_at = now()
		RETURNING ` + columns

	return scan(r.db.QueryRowContext(ctx, query, accountID, string(plans.Free), accessToken, refreshToken))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	query := `SELECT ` + columns + ` FROM tenants WHERE id = $1`
	return scan(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByAccountID(ctx context.Context, accountID string) (*models.Tenant, error) {
	query := `SELECT ` + columns + ` FROM tenants WHERE external_account_id = $1`
	return scan(r.db.QueryRowContext(ctx, query, accountID))
}

// IncrementStorage atomically adds delta (possibly negative) to the
// storage counter and returns the new value.
func (r *PostgresRepository) IncrementStorage(ctx context.Context, id string, delta int64) (int64, error) {
	query := `UPDATE tenants SET storage_bytes_used = storage_bytes_used + $2, updated_at = now()
		WHERE id = $1
		RETURNING storage_bytes_used`

	var used int64
	if err := r.db.QueryRowContext(ctx, query, id, delta).Scan(&used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return used, nil
}

// SetPlan records a confirmed plan and clears any pending checkout.
func (r *PostgresRepository) SetPlan(ctx context.Context, id string, plan plans.Plan, billingStatus string) error {
	query := `UPDATE tenants SET plan = $2, pending_plan = NULL, billing_status = $3, updated_at = now()
		WHERE id = $1`
	return r.exec(ctx, query, id, string(plan), billingStatus)
}

func (r *PostgresRepository) SetPendingPlan(ctx context.Context, id string, plan plans.Plan) error {
	query := `UPDATE tenants SET pending_plan = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, string(plan))
}

func (r *PostgresRepository) SetBoardAdminDelete(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE tenants SET board_admin_delete_enabled = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, enabled)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
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
