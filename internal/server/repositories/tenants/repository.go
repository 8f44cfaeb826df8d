package tenants

import (
	"context"

	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
)

type Repository interface {
	Upsert(ctx context.Context, accountID string) (*models.Tenant, error)
	UpsertCredentials(ctx context.Context, accountID, accessToken, refreshToken string) (*models.Tenant, error)
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
	GetByAccountID(ctx context.Context, accountID string) (*models.Tenant, error)
	IncrementStorage(ctx context.Context, id string, delta int64) (int64, error)
	SetPlan(ctx context.Context, id string, plan plans.Plan, billingStatus string) error
	SetPendingPlan(ctx context.Context, id string, plan plans.Plan) error
	SetBoardAdminDelete(ctx context.Context, id string, enabled bool) error
}
