package services

import (
	"context"

	"github.com/dmitrijs2005/boardcontext/internal/logging"
	"github.com/dmitrijs2005/boardcontext/internal/server/models"
	"github.com/dmitrijs2005/boardcontext/internal/server/monday"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/repomanager"
)

// TokenExchanger trades an OAuth code for platform tokens.
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) (*monday.Tokens, error)
}

// AccountLookup tells which account a credential belongs to.
type AccountLookup interface {
	Me(ctx context.Context, credential string) (accountID, userID string, err error)
}

// TenantService provisions tenants from the OAuth install flow.
type TenantService struct {
	repomanager repomanager.RepositoryManager
	exchanger   TokenExchanger
	accounts    AccountLookup
	sealer      Sealer
	logger      logging.Logger
}

func NewTenantService(rm repomanager.RepositoryManager, exchanger TokenExchanger, accounts AccountLookup, sealer Sealer, logger logging.Logger) *TenantService {
	return &TenantService{
		repomanager: rm,
		exchanger:   exchanger,
		accounts:    accounts,
		sealer:      sealer,
		logger:      logger.With("module", "tenants"),
	}
}

// ProvisionFromOAuth exchanges code, finds the installing account and
// stores its sealed credentials, creating the tenant when needed.
func (s *TenantService) ProvisionFromOAuth(ctx context.Context, code string) (*models.Tenant, error) {
	code, err := requireID("code", code)
	if err != nil {
		return nil, err
	}
	tok, err := s.exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, dependency("oauth exchange", err)
	}
	rawAccount, userID, err := s.accounts.Me(ctx, tok.AccessToken)
	if err != nil {
		return nil, dependency("account lookup", err)
	}
	accountID, err := NormalizeAccountID(rawAccount)
	if err != nil {
		return nil, err
	}

	access, err := s.sealer.Seal(tok.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh := ""
	if tok.RefreshToken != "" {
		if refresh, err = s.sealer.Seal(tok.RefreshToken); err != nil {
			return nil, err
		}
	}

	t, err := s.repomanager.Tenants(s.repomanager.Conn()).UpsertCredentials(ctx, accountID, access, refresh)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "tenant installed", "tenant_id", t.ID, "account_id", accountID, "user_id", userID)
	return t, nil
}
