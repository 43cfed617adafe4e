package middleware

import (
	"context"
	"testing"
	"time"
)

func TestRevocationCacheNilClientFailsOpen(t *testing.T) {
	c := NewRevocationCache(nil, time.Hour)
	revoked, err := c.IsRevoked(context.Background(), TokenKindTerminal, 1, time.Now())
	if err != nil {
		t.Fatalf("unexpected error with a nil client: %v", err)
	}
	if revoked {
		t.Fatal("expected a nil client to never report a session as revoked")
	}
	if err := c.Revoke(context.Background(), TokenKindTerminal, 1); err != nil {
		t.Fatalf("unexpected error revoking with a nil client: %v", err)
	}
}

func TestRevocationKeyIsNamespacedByKindAndSubject(t *testing.T) {
	a := revocationKey(TokenKindAdmin, 1)
	b := revocationKey(TokenKindTerminal, 1)
	if a == b {
		t.Fatalf("expected distinct keys per token kind, got %q for both", a)
	}
}
