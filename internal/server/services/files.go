package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/dbx"
	"github.com/dmitrijs2005/boardcontext/internal/logging"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/plans"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/repomanager"
)

const (
	// RecoveryRetention is how long a deleted file stays in the vault.
	RecoveryRetention = 7 * 24 * time.Hour

	maxFileNameBytes   = 255
	defaultContentType = "application/octet-stream"
	purgeBatchSize     = 100
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// UploadTicket is the answer to InitUpload.
type UploadTicket struct {
	StoragePath string `json:"storagePath"`
	UploadURL   string `json:"uploadUrl"`
}

// FileService runs the attachment lifecycle. Each change to a file row is
// paired with exactly one storage counter change in the same transaction.
type FileService struct {
	repomanager repomanager.RepositoryManager
	store       ObjectStore
	access      *AccessAuthority
	accountant  *Accountant
	logger      logging.Logger
	now         func() time.Time
}

func NewFileService(rm repomanager.RepositoryManager, store ObjectStore, access *AccessAuthority, accountant *Accountant, logger logging.Logger) *FileService {
	return &FileService{
		repomanager: rm,
		store:       store,
		access:      access,
		accountant:  accountant,
		logger:      logger.With("module", "files"),
		now:         time.Now,
	}
}

func validateFileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", invalid("name", "must not be empty")
	case len(name) > maxFileNameBytes:
		return "", invalid("name", "too long")
	case strings.ContainsAny(name, "/\\\x00"):
		return "", invalid("name", "must not contain path separators")
	case name == "." || name == "..":
		return "", invalid("name", "reserved")
	}
	return name, nil
}

func safeName(name string) string {
	s := strings.Trim(unsafeNameChars.ReplaceAllString(name, "_"), "_")
	if s == "" || s == "." || s == ".." {
		return "file"
	}
	return s
}

func boardPrefix(b *models.Board) string {
	return fmt.Sprintf("tenants/%s/boards/%s/", b.TenantID, b.ID)
}

func filesPrefix(b *models.Board) string {
	return boardPrefix(b) + "files/"
}

func vaultPath(b *models.Board, recordID string) string {
	return boardPrefix(b) + "recovery/" + recordID
}

// inNamespace reports whether p is a clean key under the board's files
// prefix.
func inNamespace(b *models.Board, p string) bool {
	prefix := filesPrefix(b)
	if !strings.HasPrefix(p, prefix) || len(p) == len(prefix) {
		return false
	}
	if path.Clean(p) != p {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return false
		}
	}
	return true
}

func orDefaultType(ct string) string {
	if strings.TrimSpace(ct) == "" {
		return defaultContentType
	}
	return ct
}

// InitUpload reserves a storage path and signs an upload URL for it. The
// declared size only serves the cap pre-check.
func (s *FileService) InitUpload(ctx context.Context, sc *Scope, name string, declaredSize int64, contentType string) (*UploadTicket, error) {
	name, err := validateFileName(name)
	if err != nil {
		return nil, err
	}
	if declaredSize <= 0 {
		return nil, invalid("size", "must be positive")
	}
	if err := s.accountant.CheckStorage(sc.Tenant, declaredSize); err != nil {
		return nil, err
	}

	key := filesPrefix(sc.Board) + uuid.NewString() + "-" + safeName(name)
	url, err := s.store.PresignPut(ctx, key, orDefaultType(contentType))
	if err != nil {
		return nil, dependency("presign upload", err)
	}
	return &UploadTicket{StoragePath: key, UploadURL: url}, nil
}

// ConfirmUpload records an uploaded object as a file. The size charged to
// the tenant is the stored object length. Confirming the same path twice
// returns the existing file without charging again.
func (s *FileService) ConfirmUpload(ctx context.Context, sc *Scope, storagePath, name, contentType string) (*models.File, error) {
	name, err := validateFileName(name)
	if err != nil {
		return nil, err
	}
	if !inNamespace(sc.Board, storagePath) {
		return nil, invalid("storagePath", "outside of board namespace")
	}

	size, err := s.store.Size(ctx, storagePath)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, invalid("storagePath", "object was not uploaded")
	}
	if err != nil {
		return nil, dependency("object size", err)
	}

	var out *models.File
	err = s.repomanager.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		f, created, err := s.repomanager.Files(tx).Create(ctx, &models.File{
			ID:          uuid.NewString(),
			BoardID:     sc.Board.ID,
			Name:        name,
			SizeBytes:   size,
			ContentType: orDefaultType(contentType),
			StoragePath: storagePath,
			UploadedBy:  sc.UserID,
		})
		if err != nil {
			return err
		}
		out = f
		if !created {
			return nil
		}

		t, err := s.repomanager.Tenants(tx).GetByID(ctx, sc.Tenant.ID)
		if err != nil {
			return err
		}
		if err := s.accountant.CheckStorage(t, f.SizeBytes); err != nil {
			return err
		}
		_, err = s.accountant.Increment(ctx, tx, sc.Tenant.ID, f.SizeBytes)
		return err
	})
	if IsLimit(err, LimitStorage) {
		if rmErr := s.store.Remove(ctx, storagePath); rmErr != nil {
			s.logger.Warn(ctx, "remove over-cap upload failed", "path", storagePath, "error", rmErr)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FileService) ListFiles(ctx context.Context, sc *Scope) ([]*models.File, error) {
	return s.repomanager.Files(s.repomanager.Conn()).ListByBoard(ctx, sc.Board.ID)
}

// DownloadURL signs a short lived download link for a file.
func (s *FileService) DownloadURL(ctx context.Context, sc *Scope, fileID string) (string, error) {
	f, err := s.repomanager.Files(s.repomanager.Conn()).GetByID(ctx, sc.Board.ID, fileID)
	if err != nil {
		return "", err
	}
	url, err := s.store.PresignGet(ctx, f.StoragePath, f.Name)
	if err != nil {
		return "", dependency("presign download", err)
	}
	return url, nil
}

// DeleteFile removes a file and releases its bytes. On plans with file
// recovery the object is parked in the vault first.
func (s *FileService) DeleteFile(ctx context.Context, sc *Scope, fileID string) error {
	if err := s.access.EnsureEditorAccess(ctx, sc.Board, sc.Board.ExternalBoardID, sc.UserID, sc.Credential); err != nil {
		return err
	}
	f, err := s.repomanager.Files(s.repomanager.Conn()).GetByID(ctx, sc.Board.ID, fileID)
	if err != nil {
		return err
	}

	if plans.FeaturesForPlan(sc.plan()).FileRecovery {
		return s.vault(ctx, sc, f)
	}

	err = s.repomanager.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Files(tx).Delete(ctx, sc.Board.ID, f.ID); err != nil {
			return err
		}
		_, err := s.accountant.Increment(ctx, tx, sc.Tenant.ID, -f.SizeBytes)
		return err
	})
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, f.StoragePath); err != nil {
		s.logger.Warn(ctx, "remove deleted object failed", "path", f.StoragePath, "error", err)
	}
	s.logger.Info(ctx, "file deleted", "board_id", sc.Board.ID, "file_id", f.ID, "size", f.SizeBytes)
	return nil
}

func (s *FileService) vault(ctx context.Context, sc *Scope, f *models.File) error {
	now := s.now().UTC()
	rec := &models.FileRecoveryRecord{
		ID:            uuid.NewString(),
		BoardID:       f.BoardID,
		FileID:        f.ID,
		Name:          f.Name,
		SizeBytes:     f.SizeBytes,
		ContentType:   f.ContentType,
		StoragePath:   f.StoragePath,
		UploadedBy:    f.UploadedBy,
		FileCreatedAt: f.CreatedAt,
		DeletedBy:     sc.UserID,
		DeletedAt:     now,
		ExpiresAt:     now.Add(RecoveryRetention),
	}
	rec.VaultPath = vaultPath(sc.Board, rec.ID)

	if err := s.store.Move(ctx, f.StoragePath, rec.VaultPath); err != nil {
		return dependency("move to vault", err)
	}

	err := s.repomanager.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Files(tx)
		if err := repo.CreateRecovery(ctx, rec); err != nil {
			return err
		}
		if err := repo.Delete(ctx, sc.Board.ID, f.ID); err != nil {
			return err
		}
		_, err := s.accountant.Increment(ctx, tx, sc.Tenant.ID, -f.SizeBytes)
		return err
	})
	if err != nil {
		if mvErr := s.store.Move(ctx, rec.VaultPath, f.StoragePath); mvErr != nil {
			s.logger.Error(ctx, "vault compensation failed", "file_id", f.ID, "vault_path", rec.VaultPath, "error", mvErr)
			return errors.Join(err, mvErr)
		}
		return err
	}
	s.logger.Info(ctx, "file moved to recovery", "board_id", sc.Board.ID, "file_id", f.ID, "record_id", rec.ID)
	return nil
}

func (s *FileService) ListRecovery(ctx context.Context, sc *Scope) ([]*models.FileRecoveryRecord, error) {
	if !plans.FeaturesForPlan(sc.plan()).FileRecovery {
		return nil, common.ErrFeatureNotInPlan
	}
	return s.repomanager.Files(s.repomanager.Conn()).ListRecovery(ctx, sc.Board.ID)
}

// RestoreFile brings a vaulted file back and charges its bytes again.
func (s *FileService) RestoreFile(ctx context.Context, sc *Scope, recordID string) (*models.File, error) {
	if !plans.FeaturesForPlan(sc.plan()).FileRecovery {
		return nil, common.ErrFeatureNotInPlan
	}
	if err := s.access.EnsureEditorAccess(ctx, sc.Board, sc.Board.ExternalBoardID, sc.UserID, sc.Credential); err != nil {
		return nil, err
	}
	conn := s.repomanager.Conn()
	rec, err := s.repomanager.Files(conn).GetRecovery(ctx, sc.Board.ID, recordID)
	if err != nil {
		return nil, err
	}
	t, err := s.repomanager.Tenants(conn).GetByID(ctx, sc.Tenant.ID)
	if err != nil {
		return nil, err
	}
	if err := s.accountant.CheckStorage(t, rec.SizeBytes); err != nil {
		return nil, err
	}

	if err := s.store.Move(ctx, rec.VaultPath, rec.StoragePath); err != nil {
		return nil, dependency("move from vault", err)
	}

	var out *models.File
	err = s.repomanager.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Files(tx)
		f, created, err := repo.Create(ctx, rec.File())
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("restore %s: %w", rec.StoragePath, common.ErrorAlreadyExists)
		}
		if err := repo.DeleteRecovery(ctx, rec.ID); err != nil {
			return err
		}
		out = f
		_, err = s.accountant.Increment(ctx, tx, sc.Tenant.ID, f.SizeBytes)
		return err
	})
	if err != nil {
		if mvErr := s.store.Move(ctx, rec.StoragePath, rec.VaultPath); mvErr != nil {
			s.logger.Error(ctx, "restore compensation failed", "record_id", rec.ID, "error", mvErr)
			return nil, errors.Join(err, mvErr)
		}
		return nil, err
	}
	s.logger.Info(ctx, "file restored", "board_id", sc.Board.ID, "file_id", out.ID, "record_id", rec.ID)
	return out, nil
}

// PurgeExpiredRecovery drops vaulted files past expiry. Their bytes were
// released on delete, so the counter is not touched.
func (s *FileService) PurgeExpiredRecovery(ctx context.Context, now time.Time) (int, error) {
	repo := s.repomanager.Files(s.repomanager.Conn())
	purged := 0
	for {
		batch, err := repo.ListExpiredRecovery(ctx, now, purgeBatchSize)
		if err != nil {
			return purged, err
		}
		if len(batch) == 0 {
			return purged, nil
		}
		for _, rec := range batch {
			if err := s.store.Remove(ctx, rec.VaultPath); err != nil {
				return purged, dependency("remove vaulted object", err)
			}
			if err := repo.DeleteRecovery(ctx, rec.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
				return purged, err
			}
			purged++
		}
		if len(batch) < purgeBatchSize {
			return purged, nil
		}
	}
}
