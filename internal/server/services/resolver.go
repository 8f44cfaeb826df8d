package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/logging"
	"github.com/dmitrijs2005/boardcontext/internal/server/metrics"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/repomanager"
)

// Resolution is the outcome of resolving an (account, board) pair.
type Resolution struct {
	Tenant          *models.Tenant
	Board           *models.Board
	Caps            plans.Caps
	BoardWasCreated bool
}

// Resolver maps external account and board ids onto tenants and boards,
// provisioning both lazily under the plan's board cap.
type Resolver struct {
	repomanager repomanager.RepositoryManager
	access      *AccessAuthority
	sealer      Sealer
	logger      logging.Logger
}

func NewResolver(rm repomanager.RepositoryManager, access *AccessAuthority, sealer Sealer, logger logging.Logger) *Resolver {
	return &Resolver{repomanager: rm, access: access, sealer: sealer, logger: logger.With("module", "resolver")}
}

// ResolveTenant returns the tenant of accountID, creating it on the free
// plan when absent.
func (r *Resolver) ResolveTenant(ctx context.Context, accountID string) (*models.Tenant, error) {
	id, err := NormalizeAccountID(accountID)
	if err != nil {
		return nil, err
	}
	return r.repomanager.Tenants(r.repomanager.Conn()).Upsert(ctx, id)
}

// Resolve returns tenant, board and caps for the pair. A missing board is
// created unless the tenant already holds MaxBoards boards. The count and
// the insert are not serialized: two concurrent first touches may both
// pass the check, so the cap is a soft bound exceeded by at most the
// number of racing requests.
func (r *Resolver) Resolve(ctx context.Context, accountID, externalBoardID, userID string) (*Resolution, error) {
	boardID, err := requireID("board id", externalBoardID)
	if err != nil {
		return nil, err
	}
	tenant, err := r.ResolveTenant(ctx, accountID)
	if err != nil {
		return nil, err
	}
	caps := plans.CapsForPlan(tenant.Plan)

	boards := r.repomanager.Boards(r.repomanager.Conn())
	board, err := boards.Get(ctx, tenant.ID, boardID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, common.ErrorNotFound):
		if caps.MaxBoards != nil {
			n, err := boards.CountByTenant(ctx, tenant.ID)
			if err != nil {
				return nil, err
			}
			if !plans.Within(caps.MaxBoards, n, 1) {
				metrics.LimitHits.WithLabelValues(LimitBoards).Inc()
				return nil, limitErr(LimitBoards, tenant.Plan)
			}
		}
		board, created, err = boards.Create(ctx, tenant.ID, boardID)
		if err != nil {
			return nil, err
		}
		if created {
			r.logger.Info(ctx, "board provisioned", "tenant_id", tenant.ID, "board_id", board.ID, "external_board_id", boardID)
		}
	default:
		return nil, err
	}

	if caps.MaxViewers != nil {
		r.trimViewers(ctx, tenant, board, *caps.MaxViewers)
	}

	return &Resolution{Tenant: tenant, Board: board, Caps: caps, BoardWasCreated: created}, nil
}

// trimViewers is the opportunistic cap convergence; failures are logged.
func (r *Resolver) trimViewers(ctx context.Context, tenant *models.Tenant, board *models.Board, limit int64) {
	cred, err := r.Credential(tenant)
	if err != nil {
		r.logger.Warn(ctx, "viewer cap enforcement skipped", "tenant_id", tenant.ID, "error", err)
		return
	}
	if _, err := r.access.EnforceViewerCap(ctx, board, board.ExternalBoardID, cred, limit); err != nil {
		r.logger.Warn(ctx, "viewer cap enforcement failed", "tenant_id", tenant.ID, "board_id", board.ID, "error", err)
	}
}

// Credential opens the tenant's platform access token.
func (r *Resolver) Credential(t *models.Tenant) (string, error) {
	return r.sealer.Open(t.AccessToken)
}
