package cashier

import (
	"testing"

	"github.com/stustapay/core/internal/models"
)

func money(t *testing.T, s string) models.Money {
	t.Helper()
	m, err := models.NewMoney(s)
	if err != nil {
		t.Fatalf("invalid money %q: %v", s, err)
	}
	return m
}

func TestComputeImbalance(t *testing.T) {
	cases := []struct {
		actual, expected, want string
	}{
		{"100.00", "100.00", "0.00"},
		{"105.00", "100.00", "5.00"},
		{"95.00", "100.00", "-5.00"},
	}
	for _, c := range cases {
		got := computeImbalance(money(t, c.actual), money(t, c.expected))
		if got.Decimal.String() != money(t, c.want).Decimal.String() {
			t.Errorf("computeImbalance(%s, %s) = %s, want %s", c.actual, c.expected, got.Decimal, c.want)
		}
	}
}
