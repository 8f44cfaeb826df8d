package services

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
)

// Limit kinds carried by LimitError.
const (
	LimitBoards  = "boards"
	LimitStorage = "storage"
	LimitViewers = "viewers"
)

// Reasons carried by AuthorizationError.
const (
	ReasonViewerRestricted    = "viewer restricted"
	ReasonEditorRequired      = "editor access required"
	ReasonAdminRequired       = "admin required"
	ReasonOwnAccess           = "cannot modify own access"
	ReasonPrivilegedRestrict  = "cannot restrict a privileged user"
	ReasonBoardDeleteDisabled = "board deletion by board owners is disabled"
)

// LimitError reports that a plan cap was reached.
type LimitError struct {
	Kind string
	Plan plans.Plan
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("plan limit reached: %s on plan %s", e.Kind, e.Plan)
}

// AuthorizationError reports that the caller lacks the required role.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "forbidden: " + e.Reason
}

// Status is the HTTP status the error maps to.
func (e *AuthorizationError) Status() int {
	return 403
}

// DependencyError reports that the platform API or a store failed outright.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func limitErr(kind string, plan plans.Plan) error {
	return &LimitError{Kind: kind, Plan: plan}
}

func denied(reason string) error {
	return &AuthorizationError{Reason: reason}
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DependencyError
	if errors.As(err, &de) {
		return err
	}
	return &DependencyError{Op: op, Err: err}
}

// IsLimit reports whether err is a LimitError of the given kind; an empty
// kind matches any.
func IsLimit(err error, kind string) bool {
	var le *LimitError
	return errors.As(err, &le) && (kind == "" || le.Kind == kind)
}

// IsForbidden reports whether err is an AuthorizationError.
func IsForbidden(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}
