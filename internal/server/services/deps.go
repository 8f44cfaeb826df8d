// Package services holds the business logic of the add-on: tenant and
// board resolution, usage accounting, viewer access and the file, note,
// board and billing operations built on top of them.
package services

import (
	"context"

	"github.com/dmitrijs2005/boardcontext/internal/server/monday"
)

// ObjectStore is the blob storage behind attachments.
type ObjectStore interface {
	PresignPut(ctx context.Context, key, contentType string) (string, error)
	PresignGet(ctx context.Context, key, filename string) (string, error)
	Size(ctx context.Context, key string) (int64, error)
	Move(ctx context.Context, from, to string) error
	Remove(ctx context.Context, key string) error
}

// RoleAuthority answers live admin/owner questions in one bulk call.
type RoleAuthority interface {
	Roles(ctx context.Context, credential, externalBoardID string, userIDs []string) (map[string]monday.RoleFacts, error)
}

// Sealer encrypts tenant credentials at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}
