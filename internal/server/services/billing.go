package services

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/boardcontext/internal/logging"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/boardcontext/internal/server/webhooks"
)

type billingAction int

const (
	billingIgnore billingAction = iota
	billingActivate
	billingTrial
	billingCancel
)

var billingEvents = map[string]billingAction{
	"install":                        billingActivate,
	"app_subscription_created":       billingActivate,
	"app_subscription_changed":       billingActivate,
	"app_subscription_renewed":       billingActivate,
	"app_trial_subscription_started": billingTrial,
	"app_trial_subscription_ended":   billingCancel,
	"app_subscription_cancelled":     billingCancel,
	"uninstall":                      billingCancel,
}

func actionFor(eventType string) billingAction {
	if a, ok := billingEvents[eventType]; ok {
		return a
	}
	if strings.HasPrefix(eventType, "app_subscription_cancelled") {
		return billingCancel
	}
	return billingIgnore
}

// WebhookResult reports what a billing webhook changed.
type WebhookResult struct {
	Event    string     `json:"event"`
	Applied  bool       `json:"applied"`
	TenantID string     `json:"tenantId,omitempty"`
	Plan     plans.Plan `json:"plan,omitempty"`
}

// BillingService applies subscription changes.
type BillingService struct {
	repomanager repomanager.RepositoryManager
	resolver    *Resolver
	access      *AccessAuthority
	logger      logging.Logger
}

func NewBillingService(rm repomanager.RepositoryManager, resolver *Resolver, access *AccessAuthority, logger logging.Logger) *BillingService {
	return &BillingService{repomanager: rm, resolver: resolver, access: access, logger: logger.With("module", "billing")}
}

// StartCheckout records the plan a checkout was started for. Only live
// account admins may start one.
func (s *BillingService) StartCheckout(ctx context.Context, tenant *models.Tenant, actorUserID, credential, rawPlan string) (plans.Plan, error) {
	actor, err := requireID("user id", actorUserID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(rawPlan) == "" {
		return "", invalid("plan", "must not be empty")
	}
	f, err := s.access.facts(ctx, credential, "", actor)
	if err != nil {
		return "", err
	}
	if !f[actor].IsAdmin {
		return "", denied(ReasonAdminRequired)
	}
	p := plans.Normalize(rawPlan)
	if err := s.repomanager.Tenants(s.repomanager.Conn()).SetPendingPlan(ctx, tenant.ID, p); err != nil {
		return "", err
	}
	tenant.PendingPlan = string(p)
	s.logger.Info(ctx, "checkout started", "tenant_id", tenant.ID, "plan", p)
	return p, nil
}

// HandleBillingWebhook applies a subscription event. Unknown events are
// acknowledged without changes.
func (s *BillingService) HandleBillingWebhook(ctx context.Context, payload []byte) (*WebhookResult, error) {
	ev, err := webhooks.Parse(payload)
	if err != nil {
		return nil, invalid("payload", err.Error())
	}
	res := &WebhookResult{Event: ev.Type}

	action := actionFor(ev.Type)
	if action == billingIgnore {
		s.logger.Info(ctx, "billing event ignored", "event", ev.Type)
		return res, nil
	}

	tenant, err := s.resolver.ResolveTenant(ctx, ev.AccountID)
	if err != nil {
		return nil, err
	}

	plan, status := plans.Normalize(ev.PlanID), models.BillingStatusActive
	switch action {
	case billingTrial:
		status = models.BillingStatusTrial
	case billingCancel:
		plan, status = plans.Free, models.BillingStatusCancelled
	}
	if err := s.repomanager.Tenants(s.repomanager.Conn()).SetPlan(ctx, tenant.ID, plan, status); err != nil {
		return nil, err
	}
	previous := tenant.Plan
	tenant.Plan, tenant.BillingStatus, tenant.PendingPlan = plan, status, ""
	s.logger.Info(ctx, "plan updated", "tenant_id", tenant.ID, "event", ev.Type, "from", previous, "to", plan, "status", status)

	s.enforceAll(ctx, tenant)

	res.Applied, res.TenantID, res.Plan = true, tenant.ID, plan
	return res, nil
}

// enforceAll applies the viewer cap of the tenant's plan on every board.
// Failures are logged.
func (s *BillingService) enforceAll(ctx context.Context, tenant *models.Tenant) {
	caps := plans.CapsForPlan(tenant.Plan)
	if caps.MaxViewers == nil {
		return
	}
	cred, err := s.resolver.Credential(tenant)
	if err != nil {
		s.logger.Warn(ctx, "viewer cap enforcement skipped", "tenant_id", tenant.ID, "error", err)
		return
	}
	boards, err := s.repomanager.Boards(s.repomanager.Conn()).ListByTenant(ctx, tenant.ID)
	if err != nil {
		s.logger.Warn(ctx, "list boards for cap enforcement failed", "tenant_id", tenant.ID, "error", err)
		return
	}
	for _, b := range boards {
		if _, err := s.access.EnforceViewerCap(ctx, b, b.ExternalBoardID, cred, *caps.MaxViewers); err != nil {
			s.logger.Warn(ctx, "viewer cap enforcement failed", "tenant_id", tenant.ID, "board_id", b.ID, "error", err)
		}
	}
}
