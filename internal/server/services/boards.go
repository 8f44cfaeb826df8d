package services

import (
	"context"

	"github.com/dmitrijs2005/boardcontext/internal/dbx"
	"github.com/dmitrijs2005/boardcontext/internal/logging"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/repomanager"
)

// BoardContext is what the embedded app needs to render a board.
type BoardContext struct {
	BoardID         string       `json:"boardId"`
	ExternalBoardID string       `json:"externalBoardId"`
	Role            string       `json:"role"`
	IsAdmin         bool         `json:"isAdmin"`
	IsOwner         bool         `json:"isOwner"`
	BoardWasCreated bool         `json:"boardWasCreated"`
	Usage           *UsageReport `json:"usage"`
}

// BoardService lists and deletes boards and manages tenant settings.
type BoardService struct {
	repomanager repomanager.RepositoryManager
	access      *AccessAuthority
	accountant  *Accountant
	store       ObjectStore
	logger      logging.Logger
}

func NewBoardService(rm repomanager.RepositoryManager, access *AccessAuthority, accountant *Accountant, store ObjectStore, logger logging.Logger) *BoardService {
	return &BoardService{
		repomanager: rm,
		access:      access,
		accountant:  accountant,
		store:       store,
		logger:      logger.With("module", "boards"),
	}
}

// Context describes the caller's role on a resolved board with tenant usage.
func (s *BoardService) Context(ctx context.Context, sc *Scope, created bool) (*BoardContext, error) {
	acc, err := s.access.Describe(ctx, sc.Board, sc.Board.ExternalBoardID, sc.UserID, sc.Credential)
	if err != nil {
		return nil, err
	}
	usage, err := s.accountant.GetUsage(ctx, sc.Tenant.ID)
	if err != nil {
		return nil, err
	}
	return &BoardContext{
		BoardID:         sc.Board.ID,
		ExternalBoardID: sc.Board.ExternalBoardID,
		Role:            string(acc.Role),
		IsAdmin:         acc.IsAdmin,
		IsOwner:         acc.IsOwner,
		BoardWasCreated: created,
		Usage:           usage,
	}, nil
}

func (s *BoardService) ListBoards(ctx context.Context, tenantID string) ([]*models.BoardSummary, error) {
	return s.repomanager.Boards(s.repomanager.Conn()).ListSummaries(ctx, tenantID)
}

func (s *BoardService) ListViewers(ctx context.Context, sc *Scope) ([]*models.BoardViewer, error) {
	return s.repomanager.Viewers(s.repomanager.Conn()).ListByBoard(ctx, sc.Board.ID)
}

// DeleteBoard removes an existing board with everything under it and
// releases the bytes of its files in the same transaction. Account admins
// may always delete; board owners only when the tenant enabled it.
func (s *BoardService) DeleteBoard(ctx context.Context, tenant *models.Tenant, externalBoardID, actorUserID, credential string) error {
	ext, err := requireID("board id", externalBoardID)
	if err != nil {
		return err
	}
	board, err := s.repomanager.Boards(s.repomanager.Conn()).Get(ctx, tenant.ID, ext)
	if err != nil {
		return err
	}
	acc, err := s.access.Describe(ctx, board, ext, actorUserID, credential)
	if err != nil {
		return err
	}
	switch {
	case acc.IsAdmin:
	case acc.IsOwner && tenant.BoardAdminDeleteEnabled:
	case acc.IsOwner:
		return denied(ReasonBoardDeleteDisabled)
	default:
		return denied(ReasonAdminRequired)
	}

	var paths []string
	var released int64
	err = s.repomanager.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		fr := s.repomanager.Files(tx)
		sum, err := fr.SumByBoard(ctx, board.ID)
		if err != nil {
			return err
		}
		paths, err = fr.ObjectPathsByBoard(ctx, board.ID)
		if err != nil {
			return err
		}
		if err := s.repomanager.Boards(tx).Delete(ctx, board.ID); err != nil {
			return err
		}
		released = sum
		if sum == 0 {
			return nil
		}
		_, err = s.accountant.Increment(ctx, tx, tenant.ID, -sum)
		return err
	})
	if err != nil {
		return err
	}

	for _, p := range paths {
		if err := s.store.Remove(ctx, p); err != nil {
			s.logger.Warn(ctx, "remove board object failed", "board_id", board.ID, "path", p, "error", err)
		}
	}
	s.logger.Info(ctx, "board deleted", "tenant_id", tenant.ID, "board_id", board.ID, "released_bytes", released, "objects", len(paths))
	return nil
}

// SetBoardAdminDelete toggles owner deletion for the tenant. Admin only.
func (s *BoardService) SetBoardAdminDelete(ctx context.Context, tenant *models.Tenant, actorUserID, credential string, enabled bool) error {
	actor, err := requireID("user id", actorUserID)
	if err != nil {
		return err
	}
	f, err := s.access.facts(ctx, credential, "", actor)
	if err != nil {
		return err
	}
	if !f[actor].IsAdmin {
		return denied(ReasonAdminRequired)
	}
	if err := s.repomanager.Tenants(s.repomanager.Conn()).SetBoardAdminDelete(ctx, tenant.ID, enabled); err != nil {
		return err
	}
	tenant.BoardAdminDeleteEnabled = enabled
	return nil
}
