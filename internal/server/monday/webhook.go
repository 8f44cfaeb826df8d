package monday

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// WebhookVerifier checks the Authorization header of platform webhooks,
// a JWT signed with the app signing secret.
type WebhookVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewWebhookVerifier(signingSecret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(signingSecret), now: time.Now}
}

func (v *WebhookVerifier) Verify(authorization string) error {
	return parseHS256(authorization, v.secret, &jwt.RegisteredClaims{}, v.now)
}

// SignWebhook produces a header value the verifier accepts.
func SignWebhook(signingSecret string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl))}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingSecret))
}
