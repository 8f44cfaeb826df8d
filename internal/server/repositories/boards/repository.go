package boards

import (
	"context"

	"github.com/dmitrijs2005/boardcontext/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, tenantID, externalBoardID string) (*models.Board, error)
	GetByID(ctx context.Context, id string) (*models.Board, error)
	Create(ctx context.Context, tenantID, externalBoardID string) (*models.Board, bool, error)
	CountByTenant(ctx context.Context, tenantID string) (int64, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.Board, error)
	ListSummaries(ctx context.Context, tenantID string) ([]*models.BoardSummary, error)
	Delete(ctx context.Context, id string) error
	DeleteIfUnused(ctx context.Context, id, userID string) (bool, error)
}
