package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/server/services"
)

// statusFor maps a service error to its status code and reply body.
func statusFor(err error) (int, Response) {
	var (
		le *services.LimitError
		ae *services.AuthorizationError
		ve *services.ValidationError
		de *services.DependencyError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, Response{Error: "invalid_request", Field: ve.Field, Message: ve.Message}
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired), errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, Response{Error: "unauthorized"}
	case errors.As(err, &le):
		return http.StatusPaymentRequired, Response{Error: "plan_limit_reached", Kind: le.Kind, Plan: string(le.Plan)}
	case errors.Is(err, common.ErrFeatureNotInPlan):
		return http.StatusPaymentRequired, Response{Error: "feature_not_in_plan"}
	case errors.As(err, &ae):
		return ae.Status(), Response{Error: ae.Reason}
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, Response{Error: "not_found"}
	case errors.Is(err, common.ErrNoteClearRejected):
		return http.StatusConflict, Response{Error: "note_clear_rejected", Message: err.Error()}
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, Response{Error: "conflict"}
	case errors.As(err, &de):
		return http.StatusBadGateway, Response{Error: "upstream_unavailable"}
	default:
		return http.StatusInternalServerError, Response{Error: "internal_error"}
	}
}

// writeError replies with the mapped status. Server-side failures are
// logged with the request id; the client only sees the opaque body.
func (s *Server) writeError(rw http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "error", err, "request_id", RequestID(r.Context()), "status", status)
	}
	Write(rw, status, body)
}
