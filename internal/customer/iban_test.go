package customer

import "testing"

func TestValidateIBANAcceptsKnownGoodChecksum(t *testing.T) {
	// DE89370400440532013000 is the textbook example IBAN used in every
	// mod-97 worked example.
	cc, compact, err := ValidateIBAN("DE89 3704 0044 0532 0130 00")
	if err != nil {
		t.Fatalf("expected a valid IBAN, got %v", err)
	}
	if cc != "DE" {
		t.Errorf("expected country code DE, got %s", cc)
	}
	if compact != "DE89370400440532013000" {
		t.Errorf("expected compacted form, got %s", compact)
	}
}

func TestValidateIBANRejectsBadChecksum(t *testing.T) {
	if _, _, err := ValidateIBAN("DE89370400440532013001"); err == nil {
		t.Fatal("expected a checksum failure for a mutated IBAN")
	}
}

func TestValidateIBANRejectsMalformedStructure(t *testing.T) {
	if _, _, err := ValidateIBAN("not-an-iban"); err == nil {
		t.Fatal("expected a structural validation failure")
	}
}
