package services

import (
	"context"

	"github.com/dmitrijs2005/boardcontext/internal/dbx"
	"github.com/dmitrijs2005/boardcontext/internal/server/metrics"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/repomanager"
)

type Usage struct {
	BoardsUsed       int64 `json:"boardsUsed"`
	StorageBytesUsed int64 `json:"storageBytesUsed"`
	ViewersUsed      int64 `json:"viewersUsed"`
}

type UsageReport struct {
	Plan        plans.Plan     `json:"plan"`
	PendingPlan string         `json:"pendingPlan,omitempty"`
	Caps        plans.Caps     `json:"caps"`
	Features    plans.Features `json:"features"`
	Usage       Usage          `json:"usage"`
}

// Accountant reports usage against caps and owns the storage counter.
// Every file lifecycle change pairs exactly one Increment with the row
// change, inside the same transaction.
type Accountant struct {
	repomanager repomanager.RepositoryManager
}

func NewAccountant(rm repomanager.RepositoryManager) *Accountant {
	return &Accountant{repomanager: rm}
}

// GetUsage counts boards and seated viewers and reads the storage counter.
func (a *Accountant) GetUsage(ctx context.Context, tenantID string) (*UsageReport, error) {
	conn := a.repomanager.Conn()
	t, err := a.repomanager.Tenants(conn).GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	boards, err := a.repomanager.Boards(conn).CountByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	viewers, err := a.repomanager.Viewers(conn).CountCountedByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &UsageReport{
		Plan:        t.Plan,
		PendingPlan: t.PendingPlan,
		Caps:        plans.CapsForPlan(t.Plan),
		Features:    plans.FeaturesForPlan(t.Plan),
		Usage: Usage{
			BoardsUsed:       boards,
			StorageBytesUsed: t.StorageBytesUsed,
			ViewersUsed:      viewers,
		},
	}, nil
}

// IncrementStorage adds delta outside any transaction.
func (a *Accountant) IncrementStorage(ctx context.Context, tenantID string, delta int64) (int64, error) {
	return a.Increment(ctx, a.repomanager.Conn(), tenantID, delta)
}

// Increment adds delta through db, which is usually the caller's
// transaction.
func (a *Accountant) Increment(ctx context.Context, db dbx.DBTX, tenantID string, delta int64) (int64, error) {
	used, err := a.repomanager.Tenants(db).IncrementStorage(ctx, tenantID, delta)
	if err != nil {
		return 0, err
	}
	metrics.ObserveStorage(delta)
	return used, nil
}

// CheckStorage refuses delta bytes above the tenant's storage cap.
func (a *Accountant) CheckStorage(t *models.Tenant, delta int64) error {
	caps := plans.CapsForPlan(t.Plan)
	if !plans.Within(caps.MaxStorageBytes, t.StorageBytesUsed, delta) {
		metrics.LimitHits.WithLabelValues(LimitStorage).Inc()
		return limitErr(LimitStorage, t.Plan)
	}
	return nil
}
