package models

import (
	"time"

	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
)

// ViewerStatus is the stored form of a viewer role.
type ViewerStatus string

const (
	ViewerAllowed    ViewerStatus = "allowed"
	ViewerRestricted ViewerStatus = "restricted"
	ViewerEditor     ViewerStatus = "editor"
)

// StatusForRole maps an API role to its stored status.
func StatusForRole(r plans.Role) ViewerStatus {
	switch r {
	case plans.RoleEditor:
		return ViewerEditor
	case plans.RoleViewer:
		return ViewerAllowed
	default:
		return ViewerRestricted
	}
}

// Role maps a stored status back to its API role.
func (s ViewerStatus) Role() plans.Role {
	switch s {
	case ViewerEditor:
		return plans.RoleEditor
	case ViewerAllowed:
		return plans.RoleViewer
	default:
		return plans.RoleRestricted
	}
}

// Counted reports whether the status consumes a viewer seat.
func (s ViewerStatus) Counted() bool {
	return s == ViewerAllowed || s == ViewerEditor
}

// BoardViewer is the access record of one user on one board.
type BoardViewer struct {
	BoardID     string
	UserID      string
	Status      ViewerStatus
	DisplayName string
	Email       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
