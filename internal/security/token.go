package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by ParseSessionToken when the token is
// malformed, expired, or signed with a different secret.
var ErrInvalidToken = errors.New("invalid or expired session token")

// SessionClaims binds a session token to the queue whose credential it
// proves, mirroring the teacher's Claims struct shape.
type SessionClaims struct {
	QueueID string `json:"queue_id"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies short-lived session tokens that stand in
// for re-checking a queue's bcrypt hash on every poll.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer builds an issuer using secret to sign tokens valid for ttl.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue mints a session token bound to queueID.
func (t *TokenIssuer) Issue(queueID string) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		QueueID: queueID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse verifies tokenString and returns the bound queue id.
func (t *TokenIssuer) Parse(tokenString string) (string, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	return claims.QueueID, nil
}
