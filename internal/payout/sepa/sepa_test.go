package sepa

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestValidateCustomerRejectsNonPositiveAmount(t *testing.T) {
	c := Customer{AccountName: "A", IBAN: "DE1", Amount: decimal.Zero, Description: "ok"}
	if err := ValidateCustomer(c, time.Now().AddDate(0, 0, 1)); err == nil {
		t.Fatal("expected a rejection for a zero amount")
	}
}

func TestValidateCustomerRejectsPastExecutionDate(t *testing.T) {
	c := Customer{AccountName: "A", IBAN: "DE1", Amount: decimal.NewFromInt(10), Description: "ok"}
	if err := ValidateCustomer(c, time.Now().AddDate(0, 0, -1)); err == nil {
		t.Fatal("expected a rejection for a past execution date")
	}
}

func TestValidateCustomerRejectsBadDescriptionCharacters(t *testing.T) {
	c := Customer{AccountName: "A", IBAN: "DE1", Amount: decimal.NewFromInt(10), Description: "not allowed <>"}
	if err := ValidateCustomer(c, time.Now().AddDate(0, 0, 1)); err == nil {
		t.Fatal("expected a rejection for disallowed description characters")
	}
}

func TestRenderProducesMatchingControlSums(t *testing.T) {
	execDate := time.Now().AddDate(0, 0, 1)
	customers := []Customer{
		{AccountName: "Alice", IBAN: "DE89370400440532013000", Amount: decimal.NewFromFloat(10.50), Description: "payout 0x1"},
		{AccountName: "Bob", IBAN: "DE89370400440532013000", Amount: decimal.NewFromFloat(5.25), Description: "payout 0x2"},
	}
	cfg := Config{SenderName: "Festival", SenderIBAN: "DE89370400440532013000", SenderBIC: "COBADEFFXXX", MessageID: "MSG1", PaymentID: "PMT1"}

	out, err := Render(customers, cfg, "EUR", execDate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := string(out)
	if strings.Count(doc, "<CtrlSum>15.75</CtrlSum>") != 2 {
		t.Errorf("expected a control sum of 15.75 to appear twice, got:\n%s", doc)
	}
	if strings.Count(doc, "<CdtTrfTxInf>") != 2 {
		t.Errorf("expected 2 credit transfer transactions, got:\n%s", doc)
	}
}

func TestRenderAbortsWithoutSenderBIC(t *testing.T) {
	customers := []Customer{{AccountName: "Alice", IBAN: "DE1", Amount: decimal.NewFromInt(5), Description: "ok"}}
	cfg := Config{SenderIBAN: "DE1"}
	if _, err := Render(customers, cfg, "EUR", time.Now().AddDate(0, 0, 1)); err == nil {
		t.Fatal("expected an abort when sender BIC cannot be derived")
	}
}
