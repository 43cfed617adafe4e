package archive

import "testing"

func TestCalculateChecksumIsDeterministic(t *testing.T) {
	a := calculateChecksum([]byte("payout data"))
	b := calculateChecksum([]byte("payout data"))
	if a != b {
		t.Fatalf("expected deterministic checksum, got %q and %q", a, b)
	}
}

func TestCalculateChecksumDiffersOnContentChange(t *testing.T) {
	a := calculateChecksum([]byte("payout data"))
	b := calculateChecksum([]byte("payout data "))
	if a == b {
		t.Fatal("expected checksum to change with content")
	}
}
