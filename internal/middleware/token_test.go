package middleware

import (
	"testing"
	"time"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	tokenString, err := issuer.Issue(TokenKindTerminal, 5, "session-uuid", time.Hour)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	claims, err := issuer.Validate(tokenString, TokenKindTerminal)
	if err != nil {
		t.Fatalf("validating token: %v", err)
	}
	if claims.SubjectID != 5 || claims.SessionUUID != "session-uuid" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenIssuerRejectsWrongKind(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	tokenString, err := issuer.Issue(TokenKindCustomer, 1, "", time.Hour)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	if _, err := issuer.Validate(tokenString, TokenKindAdmin); err == nil {
		t.Fatal("expected validation to reject a mismatched token kind")
	}
}

func TestTokenIssuerRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	tokenString, err := issuer.Issue(TokenKindAdmin, 1, "", -time.Minute)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	if _, err := issuer.Validate(tokenString, TokenKindAdmin); err == nil {
		t.Fatal("expected validation to reject an expired token")
	}
}

func TestTokenIssuerRejectsTamperedSecret(t *testing.T) {
	tokenString, err := NewTokenIssuer("secret-a").Issue(TokenKindAdmin, 1, "", time.Hour)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	if _, err := NewTokenIssuer("secret-b").Validate(tokenString, TokenKindAdmin); err == nil {
		t.Fatal("expected validation to reject a token signed with a different secret")
	}
}
