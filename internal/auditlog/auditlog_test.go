package auditlog

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEntryBuilderChaining(t *testing.T) {
	e := NewEntry(7, ActionOrderBooked, ResourceTypeOrder).
		WithResourceID(42).
		WithMetadata("order_type", "sale")

	if e.ActorID != 7 || e.Action != ActionOrderBooked || *e.ResourceID != 42 {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Status != StatusSuccess {
		t.Fatalf("expected default status success, got %q", e.Status)
	}
	if e.Metadata["order_type"] != "sale" {
		t.Fatalf("expected metadata to carry order_type, got %+v", e.Metadata)
	}
}

func TestEntryWithFailureSetsStatusAndMessage(t *testing.T) {
	e := NewEntry(1, ActionUnauthorizedAccess, "security").WithFailure("bad token")
	if e.Status != StatusFailure {
		t.Fatalf("expected failure status, got %q", e.Status)
	}
	if e.ErrorMessage == nil || *e.ErrorMessage != "bad token" {
		t.Fatalf("expected error message to be set, got %v", e.ErrorMessage)
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.5")
	r.RemoteAddr = "10.0.0.1:1234"

	if got := ClientIP(r); got != "203.0.113.5" {
		t.Fatalf("ClientIP = %q, want forwarded address", got)
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"

	if got := ClientIP(r); got != "10.0.0.1:1234" {
		t.Fatalf("ClientIP = %q, want remote addr", got)
	}
}
