// Package middleware carries the HTTP-layer concerns shared by all three
// StuStaPay surfaces: bearer token validation, session revocation, and
// per-key rate limiting.
package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind distinguishes the three session types spec §5 carries: an
// admin/user login session, a terminal (till) session, and a customer
// portal session. Adapted from internal/utils/jwt.go's CustomClaims,
// generalized from a single brokerage-user claim to one claim shape
// shared by all three kinds.
type TokenKind string

const (
	TokenKindAdmin    TokenKind = "admin"
	TokenKindTerminal TokenKind = "terminal"
	TokenKindCustomer TokenKind = "customer"
)

// Claims is the JWT payload minted for every session. SubjectID is the
// user id, till id, or customer account id depending on Kind.
// SessionUUID carries the till's session_uuid (spec §4.5) for terminal
// tokens; it is empty for the other two kinds.
type Claims struct {
	Kind        TokenKind `json:"kind"`
	SubjectID   int64     `json:"subject_id"`
	SessionUUID string    `json:"session_uuid,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates session tokens with a single shared
// HS256 secret, per spec §6.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

func (t *TokenIssuer) Issue(kind TokenKind, subjectID int64, sessionUUID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Kind:        kind,
		SubjectID:   subjectID,
		SessionUUID: sessionUUID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Validate parses tokenString and rejects it unless it is well-formed,
// unexpired, and of the expected kind.
func (t *TokenIssuer) Validate(tokenString string, want TokenKind) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Kind != want {
		return nil, fmt.Errorf("expected a %s token, got %s", want, claims.Kind)
	}
	return claims, nil
}
