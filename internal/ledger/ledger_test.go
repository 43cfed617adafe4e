package ledger

import (
	"testing"

	"github.com/stustapay/core/internal/models"
)

func money(t *testing.T, s string) models.Money {
	t.Helper()
	m, err := models.NewMoney(s)
	if err != nil {
		t.Fatalf("invalid money literal %q: %v", s, err)
	}
	return m
}

func TestAggregateCollapsesSameKey(t *testing.T) {
	tax := "ust"
	bookings := []Booking{
		{SourceID: 1, TargetID: 2, Amount: money(t, "4.20"), TaxName: &tax},
		{SourceID: 1, TargetID: 2, Amount: money(t, "4.20"), TaxName: &tax},
		{SourceID: 1, TargetID: 3, Amount: money(t, "2.00")},
	}
	agg := Aggregate(bookings)
	if len(agg) != 2 {
		t.Fatalf("expected 2 aggregated bookings, got %d", len(agg))
	}
	for _, b := range agg {
		if b.TargetID == 2 && !b.Amount.Equal(money(t, "8.40").Decimal) {
			t.Errorf("expected aggregated amount 8.40, got %s", b.Amount.Decimal.String())
		}
	}
}

func TestAggregateSeparatesByTax(t *testing.T) {
	ust := "ust"
	none := "none"
	bookings := []Booking{
		{SourceID: 1, TargetID: 2, Amount: money(t, "1.00"), TaxName: &ust},
		{SourceID: 1, TargetID: 2, Amount: money(t, "1.00"), TaxName: &none},
	}
	agg := Aggregate(bookings)
	if len(agg) != 2 {
		t.Fatalf("expected bookings with different tax names to stay separate, got %d", len(agg))
	}
}

func TestIsBalancedAcceptsSingleBooking(t *testing.T) {
	bookings := []Booking{
		{SourceID: 1, TargetID: 2, Amount: money(t, "10.00")},
	}
	if !IsBalanced(bookings) {
		t.Error("a single source->target booking must always net to zero")
	}
}
