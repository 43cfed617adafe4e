package orders

import (
	"testing"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/models"
)

func mustMoney(t *testing.T, s string) models.Money {
	t.Helper()
	m, err := models.NewMoney(s)
	if err != nil {
		t.Fatalf("invalid money %q: %v", s, err)
	}
	return m
}

func TestResolvePriceFixedPriceRejectsOverride(t *testing.T) {
	price := mustMoney(t, "4.20")
	product := models.Product{ID: 1, FixedPrice: true, Price: &price}

	override := mustMoney(t, "1.00")
	if _, err := resolvePrice(product, &override); err == nil {
		t.Fatal("expected an error when overriding a fixed-price product")
	}

	resolved, err := resolvePrice(product, nil)
	if err != nil {
		t.Fatalf("unexpected error resolving fixed price: %v", err)
	}
	if !resolved.Decimal.Equal(price.Decimal) {
		t.Errorf("expected resolved price %s, got %s", price.Decimal, resolved.Decimal)
	}
}

func TestResolvePriceFreePriceRequiresSupplied(t *testing.T) {
	product := models.Product{ID: 2, FixedPrice: false}
	if _, err := resolvePrice(product, nil); err == nil {
		t.Fatal("expected an error when a free-price product has no supplied price")
	}

	supplied := mustMoney(t, "2.50")
	resolved, err := resolvePrice(product, &supplied)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resolved.Decimal.Equal(supplied.Decimal) {
		t.Errorf("expected %s, got %s", supplied.Decimal, resolved.Decimal)
	}
}

func TestRejectMoneyDifferenceSale(t *testing.T) {
	err := rejectMoneyDifferenceSale(models.ProductIDMoneyDifference)
	apiErr, ok := apierrors.As(err)
	if !ok || apiErr.Kind != apierrors.KindInvalidArgument {
		t.Fatalf("expected InvalidArgument for MONEY_DIFFERENCE sale, got %v", err)
	}
	if err := rejectMoneyDifferenceSale(42); err != nil {
		t.Errorf("ordinary products must not be rejected, got %v", err)
	}
}

func TestValidateTopUpAmountRejectsNonPositive(t *testing.T) {
	if err := validateTopUpAmount(mustMoney(t, "0.00")); err == nil {
		t.Fatal("expected an error for a zero top-up amount")
	}
	if err := validateTopUpAmount(mustMoney(t, "-1.00")); err == nil {
		t.Fatal("expected an error for a negative top-up amount")
	}
	if err := validateTopUpAmount(mustMoney(t, "20.00")); err != nil {
		t.Errorf("a positive top-up amount must be accepted, got %v", err)
	}
}

func TestValidatePayOutAmountRejectsPositive(t *testing.T) {
	if err := validatePayOutAmount(mustMoney(t, "5.00")); err == nil {
		t.Fatal("expected an error for a positive pay-out amount")
	}
	if err := validatePayOutAmount(mustMoney(t, "-5.00")); err != nil {
		t.Errorf("a non-positive pay-out amount must be accepted, got %v", err)
	}
}

func TestDebitVoucherBalanceDrawsForVoucherPricedProduct(t *testing.T) {
	priceInVouchers := int64(2)
	beer := models.Product{ID: 1, PriceInVouchers: &priceInVouchers}

	balance, err := debitVoucherBalance(mustMoney(t, "5"), beer, 2) // 2 beers x 2 vouchers = 4
	if err != nil {
		t.Fatalf("unexpected error for a sufficient voucher balance: %v", err)
	}
	if !balance.Decimal.Equal(mustMoney(t, "1").Decimal) {
		t.Errorf("expected remaining voucher balance 1, got %s", balance.Decimal)
	}
}

func TestDebitVoucherBalanceIgnoresNonVoucherProduct(t *testing.T) {
	pfand := models.Product{ID: 2}
	balance, err := debitVoucherBalance(mustMoney(t, "3"), pfand, 5)
	if err != nil {
		t.Fatalf("unexpected error for a non-voucher product: %v", err)
	}
	if !balance.Decimal.Equal(mustMoney(t, "3").Decimal) {
		t.Errorf("expected voucher balance untouched at 3, got %s", balance.Decimal)
	}
}

func TestDebitVoucherBalanceRejectsInsufficientVouchers(t *testing.T) {
	priceInVouchers := int64(3)
	beer := models.Product{ID: 1, PriceInVouchers: &priceInVouchers}

	balance, err := debitVoucherBalance(mustMoney(t, "2"), beer, 1) // needs 3, has 2
	apiErr, ok := apierrors.As(err)
	if !ok || apiErr.Kind != apierrors.KindInsufficientFunds {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
	if !balance.Decimal.Equal(mustMoney(t, "2").Decimal) {
		t.Errorf("expected voucher balance left unchanged on rejection, got %s", balance.Decimal)
	}
}

func TestSaleLineItemTaxNameDropsTaxForReturnableProduct(t *testing.T) {
	pfand := models.Product{ID: 3, IsReturnable: true}
	if got := saleLineItemTaxName(pfand, "ust"); got != "none" {
		t.Errorf("expected returnable item to book without tax, got %q", got)
	}
}

func TestSaleLineItemTaxNameKeepsConfiguredTaxOtherwise(t *testing.T) {
	beer := models.Product{ID: 4}
	if got := saleLineItemTaxName(beer, "ust"); got != "ust" {
		t.Errorf("expected non-returnable item to keep its tax, got %q", got)
	}
}

func TestSumLineItemsMatchesSaleScenario(t *testing.T) {
	// S1 from spec §8: Beer x2 @ 4.20 (19% tax), Pfand x2 @ 2.00 (no tax).
	beer := models.LineItem{Price: mustMoney(t, "4.20"), Quantity: 2, TaxRate: mustMoney(t, "0.19")}
	pfand := models.LineItem{Price: mustMoney(t, "2.00"), Quantity: 2, TaxRate: mustMoney(t, "0")}

	sum, tax, _ := sumLineItems([]models.LineItem{beer, pfand})
	if !sum.Decimal.Equal(mustMoney(t, "12.40").Decimal) {
		t.Errorf("expected value_sum 12.40, got %s", sum.Decimal)
	}
	if tax.Decimal.Round(2).String() != "1.34" {
		t.Errorf("expected value_tax ~1.34, got %s", tax.Decimal.Round(2).String())
	}
}
