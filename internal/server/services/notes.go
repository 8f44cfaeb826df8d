package services

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/logging"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/boardcontext/internal/timex"
)

const (
	// MaxNoteBytes bounds a sanitized note body.
	MaxNoteBytes = 1 << 20
	// SnapshotsKept is how many daily snapshots survive per board.
	SnapshotsKept = 7
)

// NoteService stores the shared document of each board.
type NoteService struct {
	repomanager repomanager.RepositoryManager
	access      *AccessAuthority
	logger      logging.Logger
	policy      *bluemonday.Policy
	text        *bluemonday.Policy
}

func NewNoteService(rm repomanager.RepositoryManager, access *AccessAuthority, logger logging.Logger) *NoteService {
	return &NoteService{
		repomanager: rm,
		access:      access,
		logger:      logger.With("module", "notes"),
		policy:      bluemonday.UGCPolicy(),
		text:        bluemonday.StrictPolicy(),
	}
}

// isEmptyHTML reports whether sanitized markup has neither visible text
// nor images.
func (s *NoteService) isEmptyHTML(body string) bool {
	if strings.Contains(strings.ToLower(body), "<img") {
		return false
	}
	text := html.UnescapeString(s.text.Sanitize(body))
	text = strings.ReplaceAll(text, "\u00a0", " ")
	return strings.TrimSpace(text) == ""
}

// GetNote returns the board's note; a board without one gets an empty note.
func (s *NoteService) GetNote(ctx context.Context, sc *Scope) (*models.Note, error) {
	n, err := s.repomanager.Notes(s.repomanager.Conn()).Get(ctx, sc.Board.ID)
	if errors.Is(err, common.ErrorNotFound) {
		return &models.Note{BoardID: sc.Board.ID, IsEmpty: true}, nil
	}
	return n, err
}

// SaveNote sanitizes and stores body. An empty body does not replace a
// non-empty note unless allowClear is set; the guard runs in the upsert
// so concurrent writers cannot race past it.
func (s *NoteService) SaveNote(ctx context.Context, sc *Scope, body string, allowClear bool) (*models.Note, error) {
	return s.save(ctx, sc.Board.ID, sc.UserID, body, allowClear)
}

func (s *NoteService) save(ctx context.Context, boardID, userID, body string, allowClear bool) (*models.Note, error) {
	clean := s.policy.Sanitize(body)
	if len(clean) > MaxNoteBytes {
		return nil, invalid("html", "note is too large")
	}
	n, err := s.repomanager.Notes(s.repomanager.Conn()).Save(ctx, &models.Note{
		BoardID:   boardID,
		HTML:      clean,
		IsEmpty:   s.isEmptyHTML(clean),
		UpdatedBy: userID,
	}, allowClear)
	if errors.Is(err, common.ErrNoteClearRejected) {
		s.logger.Warn(ctx, "empty note write rejected", "board_id", boardID, "user_id", userID)
	}
	return n, err
}

// SnapshotNotes captures today's version of every non-empty note on plans
// with snapshots and prunes older captures.
func (s *NoteService) SnapshotNotes(ctx context.Context, now time.Time) (int, error) {
	repo := s.repomanager.Notes(s.repomanager.Conn())
	candidates, err := repo.ListSnapshotCandidates(ctx)
	if err != nil {
		return 0, err
	}
	day := timex.StartOfDayUTC(now)
	taken := 0
	for _, c := range candidates {
		if !plans.FeaturesForPlan(c.Plan).NoteSnapshots || c.Note.IsEmpty {
			continue
		}
		if err := repo.UpsertSnapshot(ctx, c.Note.BoardID, day, c.Note.HTML); err != nil {
			return taken, err
		}
		if _, err := repo.PruneSnapshots(ctx, c.Note.BoardID, SnapshotsKept); err != nil {
			return taken, err
		}
		taken++
	}
	s.logger.Info(ctx, "note snapshots taken", "count", taken, "day", day.Format(time.DateOnly))
	return taken, nil
}

func (s *NoteService) ListSnapshots(ctx context.Context, sc *Scope) ([]*models.NoteSnapshot, error) {
	if !plans.FeaturesForPlan(sc.plan()).NoteSnapshots {
		return nil, common.ErrFeatureNotInPlan
	}
	return s.repomanager.Notes(s.repomanager.Conn()).ListSnapshots(ctx, sc.Board.ID)
}

// RestoreSnapshot makes a snapshot the current note.
func (s *NoteService) RestoreSnapshot(ctx context.Context, sc *Scope, snapshotID string) (*models.Note, error) {
	if !plans.FeaturesForPlan(sc.plan()).NoteSnapshots {
		return nil, common.ErrFeatureNotInPlan
	}
	if err := s.access.EnsureEditorAccess(ctx, sc.Board, sc.Board.ExternalBoardID, sc.UserID, sc.Credential); err != nil {
		return nil, err
	}
	snap, err := s.repomanager.Notes(s.repomanager.Conn()).GetSnapshot(ctx, sc.Board.ID, snapshotID)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, sc.Board.ID, sc.UserID, snap.HTML, true)
}
