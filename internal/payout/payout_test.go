package payout

import (
	"errors"
	"testing"

	"github.com/stustapay/core/internal/models"
)

func TestPayoutReferenceSubstitutesZeroPaddedUppercaseHex(t *testing.T) {
	got := payoutReference("StuStaPay payout {user_tag_uid}", 0xABCD1234)
	want := "StuStaPay payout 0xABCD1234"
	if got != want {
		t.Fatalf("payoutReference = %q, want %q", got, want)
	}
}

func TestPayoutReferenceLeavesTemplateUntouchedWithoutPlaceholder(t *testing.T) {
	got := payoutReference("fixed reference", 42)
	if got != "fixed reference" {
		t.Fatalf("payoutReference = %q, want unchanged template", got)
	}
}

func payout(id int64, amount string) models.Payout {
	m, err := models.NewMoney(amount)
	if err != nil {
		panic(err)
	}
	return models.Payout{CustomerAccountID: id, Balance: m}
}

func TestBatchPayoutsUnlimitedProducesOneBatch(t *testing.T) {
	payouts := []models.Payout{payout(1, "1.00"), payout(2, "2.00"), payout(3, "3.00")}
	batches := batchPayouts(payouts, 0)
	if len(batches) != 1 || len(batches[0]) != 3 {
		t.Fatalf("expected a single batch of 3, got %v", batches)
	}
}

func TestBatchPayoutsChunksBySize(t *testing.T) {
	payouts := []models.Payout{payout(1, "1.00"), payout(2, "2.00"), payout(3, "3.00")}
	batches := batchPayouts(payouts, 2)
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if len(batches[0]) != 2 || len(batches[1]) != 1 {
		t.Fatalf("expected batch sizes 2 and 1, got %v", batches)
	}
}

func TestBatchPayoutsEmptyInputProducesNoBatches(t *testing.T) {
	if batches := batchPayouts(nil, 5); batches != nil {
		t.Fatalf("expected no batches for empty input, got %v", batches)
	}
}

// TestExportOutcomeDryRunSignalsRollback pins the contract ExportCustomerPayouts
// relies on: a dry run must return ErrDryRun so database.WithTx rolls back
// the payout_run/customer_info writes CreatePayoutRun already issued,
// leaving no customer attached to the run. A real run must return nil so
// WithTx commits instead.
func TestExportOutcomeDryRunSignalsRollback(t *testing.T) {
	if err := exportOutcome(true); !errors.Is(err, ErrDryRun) {
		t.Fatalf("expected ErrDryRun for a dry run, got %v", err)
	}
	if err := exportOutcome(false); err != nil {
		t.Fatalf("expected no error for a real run, got %v", err)
	}
}
