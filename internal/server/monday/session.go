// Package monday integrates with the host platform: session and webhook
// token verification, the GraphQL role API and the OAuth code exchange.
package monday

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/boardcontext/internal/common"
)

// FlexID decodes an id the platform may send as a JSON number or string.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

// SessionData is the "dat" claim of a session token.
type SessionData struct {
	AccountID FlexID `json:"account_id"`
	UserID    FlexID `json:"user_id"`
	BoardID   FlexID `json:"board_id,omitempty"`
	IsAdmin   bool   `json:"is_admin,omitempty"`
}

type SessionClaims struct {
	jwt.RegisteredClaims
	Dat SessionData `json:"dat"`
}

// Session is the verified identity of an embedded-app request.
type Session struct {
	AccountID string
	UserID    string
	BoardID   string
}

// SessionVerifier checks HS256 session tokens signed with the app client
// secret. It fails closed on any malformed, expired or wrongly signed token.
type SessionVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewSessionVerifier(clientSecret string) *SessionVerifier {
	return &SessionVerifier{secret: []byte(clientSecret), now: time.Now}
}

func (v *SessionVerifier) Verify(token string) (*Session, error) {
	claims := &SessionClaims{}
	if err := parseHS256(token, v.secret, claims, v.now); err != nil {
		return nil, err
	}
	if claims.Dat.AccountID == "" || claims.Dat.UserID == "" {
		return nil, fmt.Errorf("%w: missing account or user", common.ErrInvalidToken)
	}
	return &Session{
		AccountID: string(claims.Dat.AccountID),
		UserID:    string(claims.Dat.UserID),
		BoardID:   string(claims.Dat.BoardID),
	}, nil
}

// IssueSession signs a session token, for tests and local tooling.
func IssueSession(clientSecret string, s Session, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Dat: SessionData{AccountID: FlexID(s.AccountID), UserID: FlexID(s.UserID), BoardID: FlexID(s.BoardID)},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(clientSecret))
}

func parseHS256(token string, secret []byte, claims jwt.Claims, now func() time.Time) error {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return common.ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
