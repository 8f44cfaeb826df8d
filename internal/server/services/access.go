package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/logging"
	"github.com/dmitrijs2005/boardcontext/internal/server/metrics"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/monday"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/repomanager"
)

// statusNone stands for "no stored row" in the decision table.
const statusNone models.ViewerStatus = ""

type roleKey struct {
	stored models.ViewerStatus
	admin  bool
	owner  bool
}

// effectiveRoles maps (stored status, isAdmin, isOwner) to the role a user
// actually gets. Every privileged row resolves to editor.
var effectiveRoles = map[roleKey]plans.Role{
	{statusNone, false, false}: plans.RoleRestricted,
	{statusNone, true, false}:  plans.RoleEditor,
	{statusNone, false, true}:  plans.RoleEditor,
	{statusNone, true, true}:   plans.RoleEditor,

	{models.ViewerRestricted, false, false}: plans.RoleRestricted,
	{models.ViewerRestricted, true, false}:  plans.RoleEditor,
	{models.ViewerRestricted, false, true}:  plans.RoleEditor,
	{models.ViewerRestricted, true, true}:   plans.RoleEditor,

	{models.ViewerAllowed, false, false}: plans.RoleViewer,
	{models.ViewerAllowed, true, false}:  plans.RoleEditor,
	{models.ViewerAllowed, false, true}:  plans.RoleEditor,
	{models.ViewerAllowed, true, true}:   plans.RoleEditor,

	{models.ViewerEditor, false, false}: plans.RoleEditor,
	{models.ViewerEditor, true, false}:  plans.RoleEditor,
	{models.ViewerEditor, false, true}:  plans.RoleEditor,
	{models.ViewerEditor, true, true}:   plans.RoleEditor,
}

// EffectiveRole looks up the decision table. Unknown stored values are
// treated as restricted.
func EffectiveRole(stored models.ViewerStatus, facts monday.RoleFacts) plans.Role {
	if r, ok := effectiveRoles[roleKey{stored, facts.IsAdmin, facts.IsOwner}]; ok {
		return r
	}
	return effectiveRoles[roleKey{models.ViewerRestricted, facts.IsAdmin, facts.IsOwner}]
}

// AccessAuthority decides what a user may do on a board by merging the
// stored viewer row with live admin/owner facts from the platform.
type AccessAuthority struct {
	repomanager repomanager.RepositoryManager
	roles       RoleAuthority
	logger      logging.Logger
}

func NewAccessAuthority(rm repomanager.RepositoryManager, roles RoleAuthority, logger logging.Logger) *AccessAuthority {
	return &AccessAuthority{repomanager: rm, roles: roles, logger: logger.With("module", "access")}
}

func (a *AccessAuthority) facts(ctx context.Context, credential, externalBoardID string, userIDs ...string) (map[string]monday.RoleFacts, error) {
	f, err := a.roles.Roles(ctx, credential, externalBoardID, userIDs)
	if err != nil {
		return nil, dependency("role query", err)
	}
	return f, nil
}

func (a *AccessAuthority) stored(ctx context.Context, boardID, userID string) (*models.BoardViewer, error) {
	v, err := a.repomanager.Viewers(a.repomanager.Conn()).Get(ctx, boardID, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// AssertAllowed permits any user whose effective role is not restricted.
// A first visit stores a row: allowed for privileged users, restricted
// otherwise. Restricted rows are re-checked live, so an external promotion
// takes effect without a row update.
func (a *AccessAuthority) AssertAllowed(ctx context.Context, board *models.Board, externalBoardID, userID, credential string) error {
	userID, err := requireID("user id", userID)
	if err != nil {
		return err
	}

	v, err := a.stored(ctx, board.ID, userID)
	if err != nil {
		return err
	}

	if v == nil {
		f, err := a.facts(ctx, credential, externalBoardID, userID)
		if err != nil {
			return err
		}
		status := models.ViewerRestricted
		if f[userID].Privileged() {
			status = models.ViewerAllowed
		}
		row, err := a.repomanager.Viewers(a.repomanager.Conn()).Create(ctx, &models.BoardViewer{
			BoardID: board.ID,
			UserID:  userID,
			Status:  status,
		})
		if err != nil {
			return err
		}
		if EffectiveRole(row.Status, f[userID]) == plans.RoleRestricted {
			return denied(ReasonViewerRestricted)
		}
		return nil
	}

	if v.Status != models.ViewerRestricted {
		return nil
	}

	f, err := a.facts(ctx, credential, externalBoardID, userID)
	if err != nil {
		return err
	}
	if EffectiveRole(v.Status, f[userID]) == plans.RoleRestricted {
		return denied(ReasonViewerRestricted)
	}
	return nil
}

// WithRollback runs AssertAllowed for a freshly resolved board. When the
// board was created by this request and access fails, the board row is
// deleted before the failure is returned, so a rejected request leaves no
// trace in the tenant's board count. A board that another request has
// already written files, notes or viewers to is kept.
func (a *AccessAuthority) WithRollback(ctx context.Context, res *Resolution, userID, credential string) error {
	err := a.AssertAllowed(ctx, res.Board, res.Board.ExternalBoardID, userID, credential)
	if err == nil || !res.BoardWasCreated {
		return err
	}

	deleted, delErr := a.repomanager.Boards(a.repomanager.Conn()).DeleteIfUnused(ctx, res.Board.ID, userID)
	if delErr != nil {
		a.logger.Error(ctx, "board rollback failed", "board_id", res.Board.ID, "error", delErr)
		return errors.Join(err, fmt.Errorf("rollback board %s: %w", res.Board.ID, delErr))
	}
	if !deleted {
		a.logger.Info(ctx, "provisioned board in use, rollback skipped", "board_id", res.Board.ID, "tenant_id", res.Tenant.ID)
		return err
	}
	metrics.BoardRollbacks.Inc()
	a.logger.Info(ctx, "rolled back provisioned board", "board_id", res.Board.ID, "tenant_id", res.Tenant.ID)
	return err
}

// EnsureEditorAccess permits stored editors and privileged users.
func (a *AccessAuthority) EnsureEditorAccess(ctx context.Context, board *models.Board, externalBoardID, userID, credential string) error {
	userID, err := requireID("user id", userID)
	if err != nil {
		return err
	}
	v, err := a.stored(ctx, board.ID, userID)
	if err != nil {
		return err
	}
	if v != nil && v.Status == models.ViewerEditor {
		return nil
	}
	f, err := a.facts(ctx, credential, externalBoardID, userID)
	if err != nil {
		return err
	}
	if !f[userID].Privileged() {
		return denied(ReasonEditorRequired)
	}
	return nil
}

// Access is the resolved role of one user on one board.
type Access struct {
	Role    plans.Role
	IsAdmin bool
	IsOwner bool
}

// Describe resolves the effective role of userID with live facts.
func (a *AccessAuthority) Describe(ctx context.Context, board *models.Board, externalBoardID, userID, credential string) (*Access, error) {
	v, err := a.stored(ctx, board.ID, userID)
	if err != nil {
		return nil, err
	}
	f, err := a.facts(ctx, credential, externalBoardID, userID)
	if err != nil {
		return nil, err
	}
	stored := statusNone
	if v != nil {
		stored = v.Status
	}
	facts := f[userID]
	return &Access{Role: EffectiveRole(stored, facts), IsAdmin: facts.IsAdmin, IsOwner: facts.IsOwner}, nil
}

// SetRoleRequest is one role assignment attempt.
type SetRoleRequest struct {
	Board           *models.Board
	ExternalBoardID string
	TargetUserID    string
	Role            plans.Role
	ActorUserID     string
	Plan            plans.Plan
	Credential      string
}

// SetRole stores a new role for the target user. Only live account admins
// may assign roles, the role must exist on the plan, privileged users can
// not be restricted and nobody can change their own role. Granting a seat
// is refused with a viewers LimitError when it would exceed the board cap.
func (a *AccessAuthority) SetRole(ctx context.Context, req SetRoleRequest) error {
	target, err := requireID("target user id", req.TargetUserID)
	if err != nil {
		return err
	}
	actor, err := requireID("user id", req.ActorUserID)
	if err != nil {
		return err
	}

	f, err := a.facts(ctx, req.Credential, req.ExternalBoardID, actor, target)
	if err != nil {
		return err
	}
	if !f[actor].IsAdmin {
		return denied(ReasonAdminRequired)
	}
	if !plans.RoleAllowed(req.Plan, req.Role) {
		return invalid("role", fmt.Sprintf("%s is not available on the %s plan", req.Role, req.Plan))
	}
	if f[target].Privileged() && req.Role == plans.RoleRestricted {
		return denied(ReasonPrivilegedRestrict)
	}
	if actor == target {
		return denied(ReasonOwnAccess)
	}

	newStatus := models.StatusForRole(req.Role)
	current, err := a.stored(ctx, req.Board.ID, target)
	if err != nil {
		return err
	}
	alreadySeated := current != nil && current.Status.Counted()

	caps := plans.CapsForPlan(req.Plan)
	if newStatus.Counted() && !alreadySeated && caps.MaxViewers != nil && !f[target].Privileged() {
		seated, err := a.nonPrivilegedSeats(ctx, req.Board.ID, req.ExternalBoardID, req.Credential, target)
		if err != nil {
			return err
		}
		if !plans.Within(caps.MaxViewers, int64(len(seated)), 1) {
			metrics.LimitHits.WithLabelValues(LimitViewers).Inc()
			return limitErr(LimitViewers, req.Plan)
		}
	}

	if err := a.repomanager.Viewers(a.repomanager.Conn()).SetStatus(ctx, req.Board.ID, target, newStatus); err != nil {
		return err
	}
	a.logger.Info(ctx, "viewer role changed", "board_id", req.Board.ID, "user_id", target, "role", req.Role, "actor", actor)

	if caps.MaxViewers != nil {
		if _, err := a.enforceViewerCap(ctx, req.Board, req.ExternalBoardID, req.Credential, *caps.MaxViewers, target); err != nil {
			a.logger.Warn(ctx, "viewer cap enforcement after role change failed", "board_id", req.Board.ID, "error", err)
		}
	}
	return nil
}

// nonPrivilegedSeats returns the seated rows of the board whose users are
// neither admins nor owners, most recently updated first. exclude is left
// out of the result.
func (a *AccessAuthority) nonPrivilegedSeats(ctx context.Context, boardID, externalBoardID, credential, exclude string) ([]*models.BoardViewer, error) {
	rows, err := a.repomanager.Viewers(a.repomanager.Conn()).ListCounted(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return a.withoutPrivileged(ctx, rows, externalBoardID, credential, exclude)
}

func (a *AccessAuthority) withoutPrivileged(ctx context.Context, rows []*models.BoardViewer, externalBoardID, credential, exclude string) ([]*models.BoardViewer, error) {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.UserID != exclude {
			ids = append(ids, r.UserID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	f, err := a.facts(ctx, credential, externalBoardID, ids...)
	if err != nil {
		return nil, err
	}

	var out []*models.BoardViewer
	for _, r := range rows {
		if r.UserID == exclude || f[r.UserID].Privileged() {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// EnforceViewerCap restricts non-privileged seated viewers above limit,
// most recently updated first, and returns the demoted user ids.
func (a *AccessAuthority) EnforceViewerCap(ctx context.Context, board *models.Board, externalBoardID, credential string, limit int64) ([]string, error) {
	return a.enforceViewerCap(ctx, board, externalBoardID, credential, limit, "")
}

// enforceViewerCap restricts the most recent seats first; keep loses its
// seat only when no other seat is left to restrict.
func (a *AccessAuthority) enforceViewerCap(ctx context.Context, board *models.Board, externalBoardID, credential string, limit int64, keep string) ([]string, error) {
	if limit < 0 {
		limit = 0
	}
	rows, err := a.repomanager.Viewers(a.repomanager.Conn()).ListCounted(ctx, board.ID)
	if err != nil {
		return nil, err
	}
	if int64(len(rows)) <= limit {
		return nil, nil
	}

	seated, err := a.withoutPrivileged(ctx, rows, externalBoardID, credential, "")
	if err != nil {
		return nil, err
	}
	excess := int64(len(seated)) - limit
	if excess <= 0 {
		return nil, nil
	}
	if keep != "" {
		ordered := make([]*models.BoardViewer, 0, len(seated))
		var kept *models.BoardViewer
		for _, v := range seated {
			if v.UserID == keep {
				kept = v
				continue
			}
			ordered = append(ordered, v)
		}
		if kept != nil {
			ordered = append(ordered, kept)
		}
		seated = ordered
	}

	repo := a.repomanager.Viewers(a.repomanager.Conn())
	demoted := make([]string, 0, excess)
	for _, v := range seated[:excess] {
		if err := repo.SetStatus(ctx, board.ID, v.UserID, models.ViewerRestricted); err != nil {
			return demoted, err
		}
		demoted = append(demoted, v.UserID)
	}
	metrics.ViewerDemotions.Add(float64(len(demoted)))
	a.logger.Info(ctx, "viewer cap enforced", "board_id", board.ID, "limit", limit, "restricted", demoted)
	return demoted, nil
}
