package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/boardcontext/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, file *models.File) (*models.File, bool, error)
	GetByID(ctx context.Context, boardID, id string) (*models.File, error)
	ListByBoard(ctx context.Context, boardID string) ([]*models.File, error)
	Delete(ctx context.Context, boardID, id string) error
	SumByBoard(ctx context.Context, boardID string) (int64, error)
	ObjectPathsByBoard(ctx context.Context, boardID string) ([]string, error)

	CreateRecovery(ctx context.Context, rec *models.FileRecoveryRecord) error
	GetRecovery(ctx context.Context, boardID, id string) (*models.FileRecoveryRecord, error)
	ListRecovery(ctx context.Context, boardID string) ([]*models.FileRecoveryRecord, error)
	DeleteRecovery(ctx context.Context, id string) error
	ListExpiredRecovery(ctx context.Context, now time.Time, limit int) ([]*models.FileRecoveryRecord, error)
}
