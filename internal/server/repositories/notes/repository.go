package notes

import (
	"context"
	"time"

	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
)

// SnapshotCandidate is a non-empty note with the plan of its tenant.
type SnapshotCandidate struct {
	Note models.Note
	Plan plans.Plan
}

type Repository interface {
	Get(ctx context.Context, boardID string) (*models.Note, error)
	Save(ctx context.Context, note *models.Note, allowClear bool) (*models.Note, error)

	ListSnapshotCandidates(ctx context.Context) ([]*SnapshotCandidate, error)
	UpsertSnapshot(ctx context.Context, boardID string, day time.Time, html string) error
	PruneSnapshots(ctx context.Context, boardID string, keep int) (int64, error)
	ListSnapshots(ctx context.Context, boardID string) ([]*models.NoteSnapshot, error)
	GetSnapshot(ctx context.Context, boardID, id string) (*models.NoteSnapshot, error)
}
