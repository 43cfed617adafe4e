// Package sepa renders ISO-20022 pain.001.001.03 credit transfer files.
// It is a purely-functional module per spec §9's design note: one entry
// point, no database or filesystem knowledge, no dependency on the rest
// of the payout pipeline.
package sepa

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var descriptionFormat = regexp.MustCompile(`^[A-Za-z0-9 \-.,:()/?'+]*$`)

// Customer is one credit transfer recipient.
type Customer struct {
	AccountName string
	IBAN        string
	Amount      decimal.Decimal
	Description string
}

// Config carries the sender-side SEPA identity.
type Config struct {
	SenderName string
	SenderIBAN string
	SenderBIC  string
	MessageID  string
	PaymentID  string
}

// ValidateCustomer enforces spec §6's SEPA rejection rules ahead of
// rendering so a bad row aborts the whole export rather than producing
// an invalid file.
func ValidateCustomer(c Customer, executionDate time.Time) error {
	if !c.Amount.IsPositive() {
		return fmt.Errorf("sepa: amount for %s must be positive", c.AccountName)
	}
	if executionDate.Before(truncateToDate(time.Now())) {
		return fmt.Errorf("sepa: execution date %s is in the past", executionDate.Format("2006-01-02"))
	}
	if !descriptionFormat.MatchString(c.Description) {
		return fmt.Errorf("sepa: description %q contains characters outside the allowed set", c.Description)
	}
	return nil
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// --- ISO-20022 pain.001.001.03 document shape ---

type document struct {
	XMLName xml.Name `xml:"Document"`
	Xmlns   string   `xml:"xmlns,attr"`
	CstmrCdtTrfInitn customerCreditTransferInitiation `xml:"CstmrCdtTrfInitn"`
}

type customerCreditTransferInitiation struct {
	GrpHdr groupHeader   `xml:"GrpHdr"`
	PmtInf paymentInfo   `xml:"PmtInf"`
}

type groupHeader struct {
	MsgID    string `xml:"MsgId"`
	CreDtTm  string `xml:"CreDtTm"`
	NbOfTxs  int    `xml:"NbOfTxs"`
	CtrlSum  string `xml:"CtrlSum"`
	InitgPty party  `xml:"InitgPty"`
}

type paymentInfo struct {
	PmtInfID    string         `xml:"PmtInfId"`
	PmtMtd      string         `xml:"PmtMtd"`
	NbOfTxs     int            `xml:"NbOfTxs"`
	CtrlSum     string         `xml:"CtrlSum"`
	ReqdExctnDt string         `xml:"ReqdExctnDt"`
	Dbtr        party          `xml:"Dbtr"`
	DbtrAcct    account        `xml:"DbtrAcct"`
	DbtrAgt     agent          `xml:"DbtrAgt"`
	CdtTrfTxInf []creditTransferTransactionInfo `xml:"CdtTrfTxInf"`
}

type creditTransferTransactionInfo struct {
	PmtID      paymentID `xml:"PmtId"`
	Amt        amount    `xml:"Amt"`
	Cdtr       party     `xml:"Cdtr"`
	CdtrAcct   account   `xml:"CdtrAcct"`
	RmtInf     remittanceInfo `xml:"RmtInf"`
}

type paymentID struct {
	EndToEndID string `xml:"EndToEndId"`
}

type amount struct {
	InstdAmt instructedAmount `xml:"InstdAmt"`
}

type instructedAmount struct {
	Ccy   string `xml:"Ccy,attr"`
	Value string `xml:",chardata"`
}

type party struct {
	Nm string `xml:"Nm"`
}

type account struct {
	IBAN string `xml:"Id>IBAN"`
}

type agent struct {
	BIC string `xml:"FinInstnId>BIC"`
}

type remittanceInfo struct {
	Ustrd string `xml:"Ustrd"`
}

// Render produces one pain.001.001.03 XML document for a batch of
// customers, per spec §9: "render(customers, sepa_config, currency,
// exec_date) -> bytes".
func Render(customers []Customer, cfg Config, currency string, executionDate time.Time) ([]byte, error) {
	if len(customers) == 0 {
		return nil, fmt.Errorf("sepa: cannot render an empty batch")
	}
	for _, c := range customers {
		if err := ValidateCustomer(c, executionDate); err != nil {
			return nil, err
		}
	}
	if cfg.SenderBIC == "" {
		return nil, fmt.Errorf("sepa: sender BIC could not be derived, aborting export")
	}

	total := decimal.Zero
	txs := make([]creditTransferTransactionInfo, 0, len(customers))
	for i, c := range customers {
		total = total.Add(c.Amount)
		txs = append(txs, creditTransferTransactionInfo{
			PmtID: paymentID{EndToEndID: fmt.Sprintf("%s-%d", cfg.PaymentID, i+1)},
			Amt:   amount{InstdAmt: instructedAmount{Ccy: currency, Value: c.Amount.StringFixed(2)}},
			Cdtr:  party{Nm: c.AccountName},
			CdtrAcct: account{IBAN: c.IBAN},
			RmtInf:   remittanceInfo{Ustrd: c.Description},
		})
	}
	ctrlSum := total.StringFixed(2)

	doc := document{
		Xmlns: "urn:iso:std:iso:20022:tech:xsd:pain.001.001.03",
		CstmrCdtTrfInitn: customerCreditTransferInitiation{
			GrpHdr: groupHeader{
				MsgID:   cfg.MessageID,
				CreDtTm: time.Now().UTC().Format(time.RFC3339),
				NbOfTxs: len(customers),
				CtrlSum: ctrlSum,
				InitgPty: party{Nm: cfg.SenderName},
			},
			PmtInf: paymentInfo{
				PmtInfID:    cfg.PaymentID,
				PmtMtd:      "TRF",
				NbOfTxs:     len(customers),
				CtrlSum:     ctrlSum,
				ReqdExctnDt: executionDate.Format("2006-01-02"),
				Dbtr:        party{Nm: cfg.SenderName},
				DbtrAcct:    account{IBAN: cfg.SenderIBAN},
				DbtrAgt:     agent{BIC: cfg.SenderBIC},
				CdtTrfTxInf: txs,
			},
		},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("sepa: marshaling pain.001.001.03 document: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// DeriveBIC looks up a sender BIC from an IBAN's bank identifier using a
// small table of known bank codes. No BIC-derivation library exists in
// the retrieval pack; real deployments supply sepa_sender_iban values
// whose bank already has a known BIC, so a table lookup (rather than the
// full national bank-code registries) is sufficient here.
func DeriveBIC(iban string, bankCodeToBIC map[string]string) (string, error) {
	compact := strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
	if len(compact) < 12 {
		return "", fmt.Errorf("sepa: iban %q too short to derive a bank code", iban)
	}
	bankCode := compact[4:12]
	bic, ok := bankCodeToBIC[bankCode]
	if !ok {
		return "", fmt.Errorf("sepa: no BIC known for bank code %q", bankCode)
	}
	return bic, nil
}
