package models

import "time"

// File is a confirmed attachment. The content lives in object storage
// under StoragePath.
type File struct {
	ID          string
	BoardID     string
	Name        string
	SizeBytes   int64
	ContentType string
	StoragePath string
	UploadedBy  string
	CreatedAt   time.Time
}

// FileRecoveryRecord is a soft-deleted file parked in the recovery vault
// until ExpiresAt.
type FileRecoveryRecord struct {
	ID          string
	BoardID     string
	FileID      string
	Name        string
	SizeBytes   int64
	ContentType string
	// StoragePath is where the file lived before deletion.
	StoragePath string
	// VaultPath is where the object is held while vaulted.
	VaultPath     string
	UploadedBy    string
	FileCreatedAt time.Time
	DeletedBy     string
	DeletedAt     time.Time
	ExpiresAt     time.Time
}

// File rebuilds the file row the record was made from.
func (r *FileRecoveryRecord) File() *File {
	return &File{
		ID:          r.FileID,
		BoardID:     r.BoardID,
		Name:        r.Name,
		SizeBytes:   r.SizeBytes,
		ContentType: r.ContentType,
		StoragePath: r.StoragePath,
		UploadedBy:  r.UploadedBy,
		CreatedAt:   r.FileCreatedAt,
	}
}
