// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
)

// Billing statuses recorded from subscription webhooks.
const (
	BillingStatusNone      = "none"
	BillingStatusActive    = "active"
	BillingStatusTrial     = "trial"
	BillingStatusCancelled = "cancelled"
)

// Tenant is one external platform account.
type Tenant struct {
	ID string
	// AccountID is the canonical external account id (unique).
	AccountID     string
	Plan          plans.Plan
	PendingPlan   string
	BillingStatus string
	// StorageBytesUsed is the running counter of confirmed file bytes.
	StorageBytesUsed int64

	// Sealed platform credentials, see cryptox.Sealer.
	AccessToken  string
	RefreshToken string

	BoardAdminDeleteEnabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
