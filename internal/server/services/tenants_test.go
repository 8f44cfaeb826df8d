package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/boardcontext/internal/logging"
	"github.com/dmitrijs2005/boardcontext/internal/server/monday"
)

type fakeExchanger struct {
	tokens *monday.Tokens
	err    error
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string) (*monday.Tokens, error) {
	return f.tokens, f.err
}

type fakeAccounts struct {
	account string
	err     error
}

func (f *fakeAccounts) Me(ctx context.Context, credential string) (string, string, error) {
	return f.account, "u-1", f.err
}

func TestProvisionFromOAuth(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	ex := &fakeExchanger{tokens: &monday.Tokens{AccessToken: "acc", RefreshToken: "ref"}}
	svc := NewTenantService(h.db, ex, &fakeAccounts{account: "0042"}, plainSealer{}, logging.NewNopLogger())

	tenant, err := svc.ProvisionFromOAuth(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, "42", tenant.AccountID)
	assert.Equal(t, "sealed:acc", tenant.AccessToken)
	assert.Equal(t, "sealed:ref", tenant.RefreshToken)

	cred, err := h.resolver.Credential(tenant)
	require.NoError(t, err)
	assert.Equal(t, "acc", cred)

	// a reinstall without a refresh token keeps the stored one
	ex.tokens = &monday.Tokens{AccessToken: "acc2"}
	again, err := svc.ProvisionFromOAuth(ctx, "code2")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, again.ID)
	assert.Equal(t, "sealed:acc2", again.AccessToken)
	assert.Equal(t, "sealed:ref", again.RefreshToken)
}

func TestProvisionFromOAuth_Failures(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	var de *DependencyError
	var ve *ValidationError

	svc := NewTenantService(h.db, &fakeExchanger{err: errBoom}, &fakeAccounts{account: "1"}, plainSealer{}, logging.NewNopLogger())
	_, err := svc.ProvisionFromOAuth(ctx, "code")
	assert.ErrorAs(t, err, &de)

	_, err = svc.ProvisionFromOAuth(ctx, "")
	assert.ErrorAs(t, err, &ve)

	svc = NewTenantService(h.db, &fakeExchanger{tokens: &monday.Tokens{AccessToken: "a"}}, &fakeAccounts{err: errBoom}, plainSealer{}, logging.NewNopLogger())
	_, err = svc.ProvisionFromOAuth(ctx, "code")
	assert.ErrorAs(t, err, &de)
}
