package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/boardcontext/internal/server/monday"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
	"github.com/dmitrijs2005/boardcontext/internal/server/services"
)

type boardScope struct {
	*services.Scope
	created bool
}

func scopeFrom(ctx context.Context) *boardScope {
	sc, _ := ctx.Value(scopeKey).(*boardScope)
	return sc
}

// sessionAllowsBoard writes a 403 when the session is bound to a board
// other than ext.
func sessionAllowsBoard(rw http.ResponseWriter, sess *monday.Session, ext string) bool {
	if sess.BoardID != "" && sess.BoardID != ext {
		Write(rw, http.StatusForbidden, Response{Error: "session is scoped to another board"})
		return false
	}
	return true
}

// withBoard resolves the board named in the path, provisioning it on first
// use, and asserts that the caller may see it. A freshly provisioned board
// is removed again when the caller turns out to have no access.
func (s *Server) withBoard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess := SessionFrom(ctx)
		ext := chi.URLParam(r, "boardID")
		if !sessionAllowsBoard(rw, sess, ext) {
			return
		}

		res, err := s.Resolver.Resolve(ctx, sess.AccountID, ext, sess.UserID)
		if err != nil {
			s.writeError(rw, r, err)
			return
		}
		cred, err := s.Resolver.Credential(res.Tenant)
		if err != nil {
			s.writeError(rw, r, err)
			return
		}
		if err := s.Access.WithRollback(ctx, res, sess.UserID, cred); err != nil {
			s.writeError(rw, r, err)
			return
		}

		sc := &boardScope{Scope: services.NewScope(res, sess.UserID, cred), created: res.BoardWasCreated}
		next.ServeHTTP(rw, r.WithContext(context.WithValue(ctx, scopeKey, sc)))
	})
}

type saveNoteRequest struct {
	HTML       string `json:"html"`
	AllowClear bool   `json:"allowClear"`
}

type initUploadRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Size        int64  `json:"size" validate:"gt=0"`
	ContentType string `json:"contentType" validate:"max=255"`
}

type confirmUploadRequest struct {
	StoragePath string `json:"storagePath" validate:"required,max=1024"`
	Name        string `json:"name" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"max=255"`
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=viewer editor restricted"`
}

func (s *Server) handleBoardContext(rw http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r.Context())
	bc, err := s.Boards.Context(r.Context(), sc.Scope, sc.created)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, bc)
}

func (s *Server) handleGetNote(rw http.ResponseWriter, r *http.Request) {
	n, err := s.Notes.GetNote(r.Context(), scopeFrom(r.Context()).Scope)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, toNote(n))
}

func (s *Server) handleSaveNote(rw http.ResponseWriter, r *http.Request) {
	var req saveNoteRequest
	if !Read(rw, r, &req) {
		return
	}
	n, err := s.Notes.SaveNote(r.Context(), scopeFrom(r.Context()).Scope, req.HTML, req.AllowClear)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, toNote(n))
}

func (s *Server) handleListSnapshots(rw http.ResponseWriter, r *http.Request) {
	list, err := s.Notes.ListSnapshots(r.Context(), scopeFrom(r.Context()).Scope)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, mapAll(list, toSnapshot))
}

func (s *Server) handleRestoreSnapshot(rw http.ResponseWriter, r *http.Request) {
	n, err := s.Notes.RestoreSnapshot(r.Context(), scopeFrom(r.Context()).Scope, chi.URLParam(r, "snapshotID"))
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, toNote(n))
}

func (s *Server) handleListFiles(rw http.ResponseWriter, r *http.Request) {
	list, err := s.Files.ListFiles(r.Context(), scopeFrom(r.Context()).Scope)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, mapAll(list, toFile))
}

func (s *Server) handleInitUpload(rw http.ResponseWriter, r *http.Request) {
	var req initUploadRequest
	if !Read(rw, r, &req) {
		return
	}
	ticket, err := s.Files.InitUpload(r.Context(), scopeFrom(r.Context()).Scope, req.Name, req.Size, req.ContentType)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, ticket)
}

func (s *Server) handleConfirmUpload(rw http.ResponseWriter, r *http.Request) {
	var req confirmUploadRequest
	if !Read(rw, r, &req) {
		return
	}
	f, err := s.Files.ConfirmUpload(r.Context(), scopeFrom(r.Context()).Scope, req.StoragePath, req.Name, req.ContentType)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusCreated, toFile(f))
}

func (s *Server) handleDownload(rw http.ResponseWriter, r *http.Request) {
	u, err := s.Files.DownloadURL(r.Context(), scopeFrom(r.Context()).Scope, chi.URLParam(r, "fileID"))
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, map[string]string{"url": u})
}

func (s *Server) handleDeleteFile(rw http.ResponseWriter, r *http.Request) {
	if err := s.Files.DeleteFile(r.Context(), scopeFrom(r.Context()).Scope, chi.URLParam(r, "fileID")); err != nil {
		s.writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRecovery(rw http.ResponseWriter, r *http.Request) {
	list, err := s.Files.ListRecovery(r.Context(), scopeFrom(r.Context()).Scope)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, mapAll(list, toRecovery))
}

func (s *Server) handleRestoreFile(rw http.ResponseWriter, r *http.Request) {
	f, err := s.Files.RestoreFile(r.Context(), scopeFrom(r.Context()).Scope, chi.URLParam(r, "recordID"))
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, toFile(f))
}

func (s *Server) handleListViewers(rw http.ResponseWriter, r *http.Request) {
	list, err := s.Boards.ListViewers(r.Context(), scopeFrom(r.Context()).Scope)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, mapAll(list, toViewer))
}

func (s *Server) handleSetRole(rw http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if !Read(rw, r, &req) {
		return
	}
	role, ok := plans.ParseRole(req.Role)
	if !ok {
		Write(rw, http.StatusBadRequest, Response{Error: "invalid_request", Field: "role", Message: "unknown role"})
		return
	}
	sc := scopeFrom(r.Context())
	target := chi.URLParam(r, "userID")
	err := s.Access.SetRole(r.Context(), services.SetRoleRequest{
		Board:           sc.Board,
		ExternalBoardID: sc.Board.ExternalBoardID,
		TargetUserID:    target,
		Role:            role,
		ActorUserID:     sc.UserID,
		Plan:            sc.Tenant.Plan,
		Credential:      sc.Credential,
	})
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	Write(rw, http.StatusOK, map[string]string{"userId": target, "role": string(role)})
}
