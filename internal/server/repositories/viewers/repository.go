package viewers

import (
	"context"

	"github.com/dmitrijs2005/boardcontext/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, boardID, userID string) (*models.BoardViewer, error)
	Create(ctx context.Context, v *models.BoardViewer) (*models.BoardViewer, error)
	SetStatus(ctx context.Context, boardID, userID string, status models.ViewerStatus) error
	ListByBoard(ctx context.Context, boardID string) ([]*models.BoardViewer, error)
	ListCounted(ctx context.Context, boardID string) ([]*models.BoardViewer, error)
	CountCountedByTenant(ctx context.Context, tenantID string) (int64, error)
}
