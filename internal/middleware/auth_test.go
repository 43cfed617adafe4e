package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRequiresTerminalRejectsMissingHeader(t *testing.T) {
	issuer := NewTokenIssuer("secret")
	revocation := NewRevocationCache(nil, time.Hour)
	handler := RequiresTerminal(issuer, revocation)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequiresTerminalAcceptsValidToken(t *testing.T) {
	issuer := NewTokenIssuer("secret")
	revocation := NewRevocationCache(nil, time.Hour)
	tokenString, err := issuer.Issue(TokenKindTerminal, 42, "session-uuid", time.Hour)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	var sawClaims *Claims
	handler := RequiresTerminal(issuer, revocation)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := TerminalSession(r.Context())
		if !ok {
			t.Fatal("expected terminal claims in context")
		}
		sawClaims = claims
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if sawClaims == nil || sawClaims.SubjectID != 42 {
		t.Fatalf("expected till id 42 in context, got %+v", sawClaims)
	}
}

func TestRequiresTerminalRejectsWrongTokenKind(t *testing.T) {
	issuer := NewTokenIssuer("secret")
	revocation := NewRevocationCache(nil, time.Hour)
	tokenString, err := issuer.Issue(TokenKindCustomer, 1, "", time.Hour)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	handler := RequiresTerminal(issuer, revocation)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for a mismatched token kind")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestClientIPPrefersXForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	req.RemoteAddr = "10.0.0.1:5555"

	if got := ClientIP(req); got != "198.51.100.7" {
		t.Fatalf("ClientIP = %q, want forwarded address", got)
	}
}
