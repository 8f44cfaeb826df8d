package monday

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/boardcontext/internal/common"
)

const stateTTL = 10 * time.Minute

// Tokens are the credentials obtained for a tenant.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
}

// OAuthExchanger runs the authorization-code flow. The state parameter is
// a short-lived HS256 token so no server-side state is kept.
type OAuthExchanger struct {
	cfg    *oauth2.Config
	secret []byte
	now    func() time.Time
}

func NewOAuthExchanger(c OAuthConfig) *OAuthExchanger {
	return &OAuthExchanger{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   c.AuthURL,
				TokenURL:  c.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		secret: []byte(c.ClientSecret),
		now:    time.Now,
	}
}

// AuthCodeURL returns the consent URL carrying a fresh state token.
func (o *OAuthExchanger) AuthCodeURL() (string, error) {
	nonce, err := common.MakeRandHexString(8)
	if err != nil {
		return "", err
	}
	now := o.now()
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "oauth-state",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		ID:        nonce,
	}).SignedString(o.secret)
	if err != nil {
		return "", err
	}
	return o.cfg.AuthCodeURL(state), nil
}

// VerifyState checks a state value produced by AuthCodeURL.
func (o *OAuthExchanger) VerifyState(state string) error {
	claims := &jwt.RegisteredClaims{}
	if err := parseHS256(state, o.secret, claims, o.now); err != nil {
		return err
	}
	if claims.Subject != "oauth-state" {
		return fmt.Errorf("%w: unexpected state subject", common.ErrInvalidToken)
	}
	return nil
}

// Exchange trades an authorization code for tenant tokens.
func (o *OAuthExchanger) Exchange(ctx context.Context, code string) (*Tokens, error) {
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %v", ErrPlatform, err)
	}
	return &Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}
