package repomanager

import (
	"context"

	"github.com/dmitrijs2005/boardcontext/internal/dbx"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/boards"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/files"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/notes"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/tenants"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/viewers"
)

// RepositoryManager vends repositories bound to a DBTX and runs units of
// work in a transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error

	// Conn is the non-transactional handle.
	Conn() dbx.DBTX
	// InTx runs fn in one transaction; an error from fn rolls it back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error

	Tenants(db dbx.DBTX) tenants.Repository
	Boards(db dbx.DBTX) boards.Repository
	Files(db dbx.DBTX) files.Repository
	Notes(db dbx.DBTX) notes.Repository
	Viewers(db dbx.DBTX) viewers.Repository
}
