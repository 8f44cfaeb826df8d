package repomanager

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/dbx"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
)

func TestInMemory_InTxRollsBack(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryRepositoryManager()

	tenant, err := m.Tenants(m.Conn()).Upsert(ctx, "1")
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	boom := errors.New("boom")
	err = m.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := m.Tenants(tx).IncrementStorage(ctx, tenant.ID, 100); err != nil {
			return err
		}
		if _, _, err := m.Boards(tx).Create(ctx, tenant.ID, "b"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v, want boom", err)
	}

	got, _ := m.Tenants(m.Conn()).GetByID(ctx, tenant.ID)
	if got.StorageBytesUsed != 0 {
		t.Fatalf("counter = %d after rollback, want 0", got.StorageBytesUsed)
	}
	if n, _ := m.Boards(m.Conn()).CountByTenant(ctx, tenant.ID); n != 0 {
		t.Fatalf("boards = %d after rollback, want 0", n)
	}

	err = m.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := m.Tenants(tx).IncrementStorage(ctx, tenant.ID, 5)
		return err
	})
	if err != nil {
		t.Fatalf("InTx commit: %v", err)
	}
	got, _ = m.Tenants(m.Conn()).GetByID(ctx, tenant.ID)
	if got.StorageBytesUsed != 5 {
		t.Fatalf("counter = %d, want 5", got.StorageBytesUsed)
	}
}

func TestInMemory_FailNextAndCascade(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryRepositoryManager()
	tenant, _ := m.Tenants(nil).Upsert(ctx, "1")
	b, created, _ := m.Boards(nil).Create(ctx, tenant.ID, "b")
	if !created {
		t.Fatal("first create must report created")
	}
	if _, again, _ := m.Boards(nil).Create(ctx, tenant.ID, "b"); again {
		t.Fatal("second create must return the stored board")
	}
	if _, err := m.Viewers(nil).Create(ctx, &models.BoardViewer{BoardID: b.ID, UserID: "u", Status: models.ViewerAllowed}); err != nil {
		t.Fatalf("viewer create: %v", err)
	}

	boom := errors.New("boom")
	m.FailNext("boards.delete", boom)
	if err := m.Boards(nil).Delete(ctx, b.ID); !errors.Is(err, boom) {
		t.Fatalf("Delete error = %v, want boom", err)
	}
	if err := m.Boards(nil).Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Viewers(nil).Get(ctx, b.ID, "u"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("viewer after cascade: %v", err)
	}
	if err := m.Boards(nil).Delete(ctx, b.ID); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("second Delete error = %v, want not found", err)
	}
}

func TestInMemory_DeleteIfUnused(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryRepositoryManager()
	tenant, _ := m.Tenants(nil).Upsert(ctx, "1")
	b, _, _ := m.Boards(nil).Create(ctx, tenant.ID, "b")

	if _, err := m.Viewers(nil).Create(ctx, &models.BoardViewer{BoardID: b.ID, UserID: "self", Status: models.ViewerAllowed}); err != nil {
		t.Fatalf("viewer create: %v", err)
	}
	if _, err := m.Viewers(nil).Create(ctx, &models.BoardViewer{BoardID: b.ID, UserID: "other", Status: models.ViewerAllowed}); err != nil {
		t.Fatalf("viewer create: %v", err)
	}
	if deleted, err := m.Boards(nil).DeleteIfUnused(ctx, b.ID, "self"); err != nil || deleted {
		t.Fatalf("DeleteIfUnused with another viewer = %v, %v; want kept", deleted, err)
	}

	c, _, _ := m.Boards(nil).Create(ctx, tenant.ID, "c")
	if _, _, err := m.Files(nil).Create(ctx, &models.File{ID: "f", BoardID: c.ID, StoragePath: "p", SizeBytes: 10}); err != nil {
		t.Fatalf("file create: %v", err)
	}
	if deleted, _ := m.Boards(nil).DeleteIfUnused(ctx, c.ID, "self"); deleted {
		t.Fatal("board holding a file must be kept")
	}

	d, _, _ := m.Boards(nil).Create(ctx, tenant.ID, "d")
	if _, err := m.Viewers(nil).Create(ctx, &models.BoardViewer{BoardID: d.ID, UserID: "self", Status: models.ViewerAllowed}); err != nil {
		t.Fatalf("viewer create: %v", err)
	}
	if deleted, err := m.Boards(nil).DeleteIfUnused(ctx, d.ID, "self"); err != nil || !deleted {
		t.Fatalf("DeleteIfUnused on unused board = %v, %v; want deleted", deleted, err)
	}
	if _, err := m.Viewers(nil).Get(ctx, d.ID, "self"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("viewer after delete: %v", err)
	}
	if deleted, err := m.Boards(nil).DeleteIfUnused(ctx, d.ID, "self"); err != nil || deleted {
		t.Fatalf("DeleteIfUnused on missing board = %v, %v", deleted, err)
	}
}
