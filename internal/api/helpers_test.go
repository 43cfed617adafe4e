package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stustapay/core/internal/apierrors"
)

func TestParseIDRejectsNonNumeric(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/products/abc", nil)
	r.SetPathValue("id", "abc")

	if _, err := parseID(r); err == nil {
		t.Fatal("expected an error for a non-numeric id")
	} else if apiErr, ok := apierrors.As(err); !ok || apiErr.Kind != apierrors.KindInvalidArgument {
		t.Fatalf("expected KindInvalidArgument, got %v", err)
	}
}

func TestParseIDAcceptsNumeric(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/products/42", nil)
	r.SetPathValue("id", "42")

	id, err := parseID(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected id 42, got %d", id)
	}
}

func TestNodeFromQueryRequiresParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/tax-rates", nil)
	if _, err := nodeFromQuery(r); err == nil {
		t.Fatal("expected an error when node_id is missing")
	}
}

func TestNodeFromQueryParsesParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/tax-rates?node_id=7", nil)
	id, err := nodeFromQuery(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected node 7, got %d", id)
	}
}

func TestDecodeJSONRejectsMalformedBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/tax-rates", bytes.NewBufferString("{not json"))
	var dst struct{ Name string }
	if err := decodeJSON(r, &dst); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestDecodeJSONPopulatesDestination(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/tax-rates", bytes.NewBufferString(`{"name":"ermaessigt"}`))
	var dst struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Name != "ermaessigt" {
		t.Fatalf("expected name %q, got %q", "ermaessigt", dst.Name)
	}
}

func TestWriteListSetsContentRange(t *testing.T) {
	rr := httptest.NewRecorder()
	writeList(rr, 3, []int{1, 2, 3})

	if got := rr.Header().Get("Content-Range"); got != "3" {
		t.Fatalf("expected Content-Range %q, got %q", "3", got)
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestRequireMoneyRejectsNil(t *testing.T) {
	if _, err := requireMoney(nil); err == nil {
		t.Fatal("expected an error for a nil amount")
	}
}

func TestRequireMoneyParsesValidAmount(t *testing.T) {
	amount := "4.20"
	m, err := requireMoney(&amount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.String() != "4.20" {
		t.Fatalf("expected 4.20, got %s", m.String())
	}
}

func TestParseTagUIDRejectsNonNumeric(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/customer/not-a-uid", nil)
	r.SetPathValue("tag_uid", "not-a-uid")
	if _, err := parseTagUID(r); err == nil {
		t.Fatal("expected an error for a non-numeric tag_uid")
	}
}

func TestParseTagUIDAcceptsNumeric(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/customer/12345", nil)
	r.SetPathValue("tag_uid", "12345")
	uid, err := parseTagUID(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != 12345 {
		t.Fatalf("expected uid 12345, got %d", uid)
	}
}

func TestPinMatchesIsCaseInsensitive(t *testing.T) {
	cases := []struct {
		stored, supplied string
		want             bool
	}{
		{"ab12", "ab12", true},
		{"ab12", "AB12", true},
		{"AB12", "ab12", true},
		{"ab12", "ab13", false},
	}
	for _, c := range cases {
		if got := pinMatches(c.stored, c.supplied); got != c.want {
			t.Errorf("pinMatches(%q, %q) = %v, want %v", c.stored, c.supplied, got, c.want)
		}
	}
}
