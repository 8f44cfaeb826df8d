package httpapi

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
)

const maxWebhookBytes = 1 << 20

type checkoutRequest struct {
	Plan string `json:"plan" validate:"required,max=64"`
}

type boardAdminDeleteRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// tenant resolves the caller's tenant, creating it on first contact.
func (s *Server) tenant(rw http.ResponseWriter, r *http.Request) (*models.Tenant, bool) {
	t, err := s.Resolver.ResolveTenant(r.Context(), SessionFrom(r.Context()).AccountID)
	if err != nil {
		s.writeError(rw, r, err)
		return nil, false
	}
	return t, true
}

func (s *Server) credential(rw http.ResponseWriter, r *http.Request, t *models.Tenant) (string, bool) {
	cred, err := s.Resolver.Credential(t)
	if err != nil {
		s.writeError(rw, r, err)
		return "", false
	}
	return cred, true
}

func (s *Server) handleUsage(rw http.ResponseWriter, r *http.Request) {
	t, ok := s.tenant(rw, r)
	if !ok {
		return
	}
	report, err := s.Usage.GetUsage(r.Context(), t.ID)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, report)
}

func (s *Server) handleCheckout(rw http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !Read(rw, r, &req) {
		return
	}
	t, ok := s.tenant(rw, r)
	if !ok {
		return
	}
	cred, ok := s.credential(rw, r, t)
	if !ok {
		return
	}
	p, err := s.Billing.StartCheckout(r.Context(), t, SessionFrom(r.Context()).UserID, cred, req.Plan)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, map[string]plans.Plan{"pendingPlan": p})
}

func (s *Server) handleBoardAdminDelete(rw http.ResponseWriter, r *http.Request) {
	var req boardAdminDeleteRequest
	if !Read(rw, r, &req) {
		return
	}
	t, ok := s.tenant(rw, r)
	if !ok {
		return
	}
	cred, ok := s.credential(rw, r, t)
	if !ok {
		return
	}
	if err := s.Boards.SetBoardAdminDelete(r.Context(), t, SessionFrom(r.Context()).UserID, cred, *req.Enabled); err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

func (s *Server) handleListBoards(rw http.ResponseWriter, r *http.Request) {
	t, ok := s.tenant(rw, r)
	if !ok {
		return
	}
	list, err := s.Boards.ListBoards(r.Context(), t.ID)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, mapAll(list, toBoardSummary))
}

func (s *Server) handleDeleteBoard(rw http.ResponseWriter, r *http.Request) {
	ext := chi.URLParam(r, "boardID")
	if !sessionAllowsBoard(rw, SessionFrom(r.Context()), ext) {
		return
	}
	t, ok := s.tenant(rw, r)
	if !ok {
		return
	}
	cred, ok := s.credential(rw, r, t)
	if !ok {
		return
	}
	err := s.Boards.DeleteBoard(r.Context(), t, ext, SessionFrom(r.Context()).UserID, cred)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInstall(rw http.ResponseWriter, r *http.Request) {
	u, err := s.oauth.AuthCodeURL()
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	http.Redirect(rw, r, u, http.StatusFound)
}

func (s *Server) handleOAuthCallback(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		Write(rw, http.StatusBadRequest, Response{Error: "oauth_denied", Message: e})
		return
	}
	if err := s.oauth.VerifyState(q.Get("state")); err != nil {
		s.logger.Warn(r.Context(), "oauth state rejected", "error", err)
		Write(rw, http.StatusBadRequest, Response{Error: "invalid_request", Field: "state", Message: "invalid or expired state"})
		return
	}
	t, err := s.Tenants.ProvisionFromOAuth(r.Context(), q.Get("code"))
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, map[string]string{
		"tenantId":  t.ID,
		"accountId": t.AccountID,
		"plan":      string(t.Plan),
	})
}

func (s *Server) handleBillingWebhook(rw http.ResponseWriter, r *http.Request) {
	if err := s.webhooks.Verify(r.Header.Get(common.AuthorizationHeaderName)); err != nil {
		s.logger.Warn(r.Context(), "webhook signature rejected", "error", err)
		s.writeError(rw, r, err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxWebhookBytes))
	if err != nil {
		Write(rw, http.StatusRequestEntityTooLarge, Response{Error: "request_too_large"})
		return
	}
	res, err := s.Billing.HandleBillingWebhook(r.Context(), body)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, res)
}
