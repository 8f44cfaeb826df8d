package httpapi

import (
	"time"

	"github.com/dmitrijs2005/boardcontext/internal/server/models"
)

type fileResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SizeBytes   int64     `json:"sizeBytes"`
	ContentType string    `json:"contentType"`
	UploadedBy  string    `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toFile(f *models.File) fileResponse {
	return fileResponse{
		ID:          f.ID,
		Name:        f.Name,
		SizeBytes:   f.SizeBytes,
		ContentType: f.ContentType,
		UploadedBy:  f.UploadedBy,
		CreatedAt:   f.CreatedAt,
	}
}

type recoveryResponse struct {
	ID          string    `json:"id"`
	FileID      string    `json:"fileId"`
	Name        string    `json:"name"`
	SizeBytes   int64     `json:"sizeBytes"`
	ContentType string    `json:"contentType"`
	DeletedBy   string    `json:"deletedBy"`
	DeletedAt   time.Time `json:"deletedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type noteResponse struct {
	HTML      string     `json:"html"`
	IsEmpty   bool       `json:"isEmpty"`
	UpdatedBy string     `json:"updatedBy,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func toNote(n *models.Note) noteResponse {
	out := noteResponse{HTML: n.HTML, IsEmpty: n.IsEmpty, UpdatedBy: n.UpdatedBy}
	if !n.UpdatedAt.IsZero() {
		t := n.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

type snapshotResponse struct {
	ID        string    `json:"id"`
	Day       string    `json:"day"`
	CreatedAt time.Time `json:"createdAt"`
}

type boardSummaryResponse struct {
	BoardID         string    `json:"boardId"`
	ExternalBoardID string    `json:"externalBoardId"`
	FileCount       int64     `json:"fileCount"`
	FileBytes       int64     `json:"fileBytes"`
	CreatedAt       time.Time `json:"createdAt"`
}

type viewerResponse struct {
	UserID      string    `json:"userId"`
	Role        string    `json:"role"`
	DisplayName string    `json:"displayName,omitempty"`
	Email       string    `json:"email,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// mapAll converts a slice and never returns nil, so empty lists encode
// as [] rather than null.
func mapAll[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}

func toRecovery(r *models.FileRecoveryRecord) recoveryResponse {
	return recoveryResponse{
		ID:          r.ID,
		FileID:      r.FileID,
		Name:        r.Name,
		SizeBytes:   r.SizeBytes,
		ContentType: r.ContentType,
		DeletedBy:   r.DeletedBy,
		DeletedAt:   r.DeletedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

func toSnapshot(s *models.NoteSnapshot) snapshotResponse {
	return snapshotResponse{ID: s.ID, Day: s.Day.Format(time.DateOnly), CreatedAt: s.CreatedAt}
}

func toBoardSummary(b *models.BoardSummary) boardSummaryResponse {
	return boardSummaryResponse{
		BoardID:         b.ID,
		ExternalBoardID: b.ExternalBoardID,
		FileCount:       b.FileCount,
		FileBytes:       b.FileBytes,
		CreatedAt:       b.CreatedAt,
	}
}

func toViewer(v *models.BoardViewer) viewerResponse {
	return viewerResponse{
		UserID:      v.UserID,
		Role:        string(v.Status.Role()),
		DisplayName: v.DisplayName,
		Email:       v.Email,
		UpdatedAt:   v.UpdatedAt,
	}
}
