package products

import (
	"testing"

	"github.com/stustapay/core/internal/models"
)

func TestTouchesFinancialAttribute(t *testing.T) {
	name := "New Name"
	if touchesFinancialAttribute(Update{Name: &name}) {
		t.Error("renaming a product must not count as a financial change")
	}

	price, err := models.NewMoney("3.50")
	if err != nil {
		t.Fatal(err)
	}
	if !touchesFinancialAttribute(Update{Price: &price}) {
		t.Error("changing price must count as a financial change")
	}
}

func TestRestrictedProductIDs(t *testing.T) {
	beer := models.Product{ID: 1, Restrictions: []string{"under_18"}}
	pfand := models.Product{ID: 2}
	under18 := "under_18"

	restricted := RestrictedProductIDs([]models.Product{beer, pfand}, &under18)
	if len(restricted) != 1 || restricted[0] != 1 {
		t.Fatalf("expected only product 1 restricted, got %v", restricted)
	}

	restricted = RestrictedProductIDs([]models.Product{beer, pfand}, nil)
	if len(restricted) != 0 {
		t.Fatalf("expected no restrictions for an unflagged tag, got %v", restricted)
	}
}
