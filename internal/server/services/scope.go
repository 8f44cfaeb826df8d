package services

import (
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
)

// Scope is an authenticated caller on a resolved board. The API layer
// builds it after Resolve and WithRollback succeed.
type Scope struct {
	Tenant     *models.Tenant
	Board      *models.Board
	UserID     string
	Credential string
}

// NewScope binds a caller to a resolution.
func NewScope(res *Resolution, userID, credential string) *Scope {
	return &Scope{Tenant: res.Tenant, Board: res.Board, UserID: userID, Credential: credential}
}

func (s *Scope) plan() plans.Plan {
	return s.Tenant.Plan
}
