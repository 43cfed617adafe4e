// Package payout implements the Payout Pipeline of spec §4.7: creating a
// payout run against the prefix-sum eligibility rule, and exporting its
// attached customers as a CSV ledger plus one or more SEPA XML files.
// Grounded on spec.md §4.7/§6/§8 directly — no original_source file covers
// payouts, StuStaPay's real implementation lives in a separate service.
package payout

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/config"
	"github.com/stustapay/core/internal/customer"
	"github.com/stustapay/core/internal/models"
	"github.com/stustapay/core/internal/payout/sepa"
)

// ErrDryRun is returned by ExportCustomerPayouts when called with dryRun
// true, after writing the export files but before committing any row
// changes. It carries no failure: callers pass it to database.WithTx as
// the fn return value, which rolls the transaction back on any non-nil
// error (spec §4.7 step 5), and then treat ErrDryRun itself as success.
var ErrDryRun = errors.New("payout export: dry run, rolling back")

// csvHeader is spec §6's exact payout CSV header.
var csvHeader = []string{
	"beneficiary_name", "iban", "bic", "amount", "currency",
	"reference", "execution_date", "uid", "email", "account_name",
}

// Service orchestrates payout runs. bankCodeToBIC is the same lookup table
// sepa.DeriveBIC consults; it lives here because the sender IBAN (and thus
// its bank code) is per-event config, not a pure-function concern.
type Service struct {
	settings      *config.SettingsView
	bankCodeToBIC map[string]string
}

func NewService(settings *config.SettingsView, bankCodeToBIC map[string]string) *Service {
	return &Service{settings: settings, bankCodeToBIC: bankCodeToBIC}
}

// eligibleCustomer is one row of the prefix-sum eligibility scan.
type eligibleCustomer struct {
	accountID int64
	amount    models.Money
}

// CreatePayoutRun implements create_payout_run: inside the caller's
// transaction, it inserts a payout_run row and attaches every eligible
// customer_info row whose running total (ordered by customer_account_id)
// stays at or under maxPayoutSum.
func (s *Service) CreatePayoutRun(ctx context.Context, tx pgx.Tx, createdBy int64, maxPayoutSum models.Money) (runID int64, scheduledCount int, err error) {
	rows, err := tx.Query(ctx, `
		SELECT a.id, a.balance - COALESCE(ci.donation, 0)
		FROM customer_info ci JOIN account a ON a.id = ci.customer_account_id
		WHERE ci.has_entered_info AND ci.payout_export
		  AND ci.payout_run_id IS NULL AND ci.payout_error IS NULL
		  AND a.balance - COALESCE(ci.donation, 0) > 0
		ORDER BY a.id ASC`)
	if err != nil {
		return 0, 0, fmt.Errorf("scanning payout eligibility: %w", err)
	}
	var candidates []eligibleCustomer
	for rows.Next() {
		var c eligibleCustomer
		if err := rows.Scan(&c.accountID, &c.amount); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("scanning eligibility row: %w", err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterating eligibility rows: %w", err)
	}

	var attached []int64
	running := models.Zero()
	for _, c := range candidates {
		next := running.Add(c.amount)
		if next.Decimal.GreaterThan(maxPayoutSum.Decimal) {
			break
		}
		running = next
		attached = append(attached, c.accountID)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO payout_run (created_by, execution_date) VALUES ($1, $2) RETURNING id`,
		createdBy, time.Now().UTC().Truncate(24*time.Hour)).Scan(&runID)
	if err != nil {
		return 0, 0, fmt.Errorf("creating payout run: %w", err)
	}

	if len(attached) > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE customer_info SET payout_run_id = $1 WHERE customer_account_id = ANY($2)`,
			runID, attached); err != nil {
			return 0, 0, fmt.Errorf("attaching customers to payout run %d: %w", runID, err)
		}
	}

	return runID, len(attached), nil
}

// RequeueErroredPayouts clears payout_error on customer_info rows that
// failed a previous export's SEPA submission, so the next CreatePayoutRun
// scan picks them back up. The error detail itself is left for operators
// to read from logs before this runs; it only ever clears, never inspects.
func (s *Service) RequeueErroredPayouts(ctx context.Context, tx pgx.Tx) (int, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE customer_info SET payout_error = NULL
		WHERE payout_error IS NOT NULL AND payout_run_id IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("requeueing errored payouts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// fetchPayouts loads the materialized Payout view (spec §1) for every
// customer attached to runID, ordered by customer_account_id as required
// for deterministic batching and for S5's re-run guarantee.
func fetchPayouts(ctx context.Context, tx pgx.Tx, runID int64) ([]models.Payout, error) {
	rows, err := tx.Query(ctx, `
		SELECT a.id, ci.iban, ci.account_name, ci.email, ut.uid, a.balance - COALESCE(ci.donation, 0)
		FROM customer_info ci
		JOIN account a ON a.id = ci.customer_account_id
		JOIN user_tag ut ON ut.id = a.user_tag_id
		WHERE ci.payout_run_id = $1
		ORDER BY a.id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("fetching payouts for run %d: %w", runID, err)
	}
	defer rows.Close()

	var out []models.Payout
	for rows.Next() {
		var p models.Payout
		if err := rows.Scan(&p.CustomerAccountID, &p.IBAN, &p.AccountName, &p.Email, &p.UserTagUID, &p.Balance); err != nil {
			return nil, fmt.Errorf("scanning payout row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ExportResult reports the files produced by one export_customer_payouts
// invocation, for the CLI/API caller to surface to the operator.
type ExportResult struct {
	RunID      int64
	CSVPath    string
	XMLPaths   []string
	ItemCount  int
	DryRun     bool
}

// ExportCustomerPayouts implements export_customer_payouts. It creates a
// run, writes one CSV covering every attached customer and one SEPA XML
// per batch of at most maxExportItemsPerBatch (0 meaning unlimited), and
// either commits with set_done_at stamped or, on dry_run, leaves the
// files on disk and lets the caller roll the transaction back.
func (s *Service) ExportCustomerPayouts(
	ctx context.Context, tx pgx.Tx,
	createdBy int64, nodeID int64, outputDir string, dryRun bool,
	maxPayoutSum models.Money, maxExportItemsPerBatch int,
) (ExportResult, error) {
	settings, ok := s.settings.ForNode(nodeID)
	if !ok {
		return ExportResult{}, apierrors.Newf(apierrors.KindInternal, "no event settings for node %d", nodeID)
	}

	runID, scheduled, err := s.CreatePayoutRun(ctx, tx, createdBy, maxPayoutSum)
	if err != nil {
		return ExportResult{}, err
	}
	if scheduled == 0 {
		return ExportResult{RunID: runID, ItemCount: 0, DryRun: dryRun}, exportOutcome(dryRun)
	}

	payouts, err := fetchPayouts(ctx, tx, runID)
	if err != nil {
		return ExportResult{}, err
	}

	executionDate := time.Now().AddDate(0, 0, 1)

	senderBIC, err := sepa.DeriveBIC(settings.SepaSenderIBAN, s.bankCodeToBIC)
	if err != nil {
		return ExportResult{}, apierrors.Newf(apierrors.KindInternal, "deriving sender BIC: %v", err)
	}
	sepaCfg := sepa.Config{
		SenderName: settings.SepaSenderName,
		SenderIBAN: settings.SepaSenderIBAN,
		SenderBIC:  senderBIC,
		MessageID:  fmt.Sprintf("PAYOUT-%d", runID),
		PaymentID:  fmt.Sprintf("PAYOUT-%d", runID),
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return ExportResult{}, fmt.Errorf("creating payout output directory %s: %w", outputDir, err)
	}

	csvPath := filepath.Join(outputDir, fmt.Sprintf("payout_run_%d.csv", runID))
	if err := writeCSV(csvPath, payouts, settings, executionDate, s.bankCodeToBIC); err != nil {
		return ExportResult{}, err
	}

	batches := batchPayouts(payouts, maxExportItemsPerBatch)
	var xmlPaths []string
	for i, batch := range batches {
		customers := make([]sepa.Customer, 0, len(batch))
		for _, p := range batch {
			customers = append(customers, sepa.Customer{
				AccountName: p.AccountName,
				IBAN:        p.IBAN,
				Amount:      p.Balance.Decimal,
				Description: payoutReference(settings.SepaDescriptionTemplate, p.UserTagUID),
			})
		}
		doc, err := sepa.Render(customers, sepaCfg, settings.CurrencyIdentifier, executionDate)
		if err != nil {
			return ExportResult{}, fmt.Errorf("rendering sepa batch %d of run %d: %w", i+1, runID, err)
		}
		xmlPath := filepath.Join(outputDir, fmt.Sprintf("payout_run_%d_batch_%d.xml", runID, i+1))
		if err := os.WriteFile(xmlPath, doc, 0o644); err != nil {
			return ExportResult{}, fmt.Errorf("writing sepa batch file %s: %w", xmlPath, err)
		}
		xmlPaths = append(xmlPaths, xmlPath)
	}

	if !dryRun {
		if _, err := tx.Exec(ctx, `UPDATE payout_run SET set_done_at = now() WHERE id = $1`, runID); err != nil {
			return ExportResult{}, fmt.Errorf("marking payout run %d done: %w", runID, err)
		}
	}

	return ExportResult{
		RunID:     runID,
		CSVPath:   csvPath,
		XMLPaths:  xmlPaths,
		ItemCount: len(payouts),
		DryRun:    dryRun,
	}, exportOutcome(dryRun)
}

// exportOutcome is the pure decision behind ExportCustomerPayouts' dry-run
// contract: dry runs must not persist the payout_run/customer_info writes
// CreatePayoutRun already issued against tx, so they signal WithTx to roll
// back instead of returning nil.
func exportOutcome(dryRun bool) error {
	if dryRun {
		return ErrDryRun
	}
	return nil
}

func writeCSV(path string, payouts []models.Payout, settings config.EventSettings, executionDate time.Time, bankCodeToBIC map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating payout csv %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("writing payout csv header: %w", err)
	}
	for _, p := range payouts {
		_, compactIBAN, err := customer.ValidateIBAN(p.IBAN)
		if err != nil {
			return fmt.Errorf("payout csv: account %d has an invalid iban: %w", p.CustomerAccountID, err)
		}
		bic, err := sepa.DeriveBIC(compactIBAN, bankCodeToBIC)
		if err != nil {
			bic = ""
		}
		email := ""
		if p.Email != nil {
			email = *p.Email
		}
		record := []string{
			p.AccountName,
			compactIBAN,
			bic,
			p.Balance.Decimal.StringFixed(2),
			settings.CurrencyIdentifier,
			payoutReference(settings.SepaDescriptionTemplate, p.UserTagUID),
			executionDate.Format("2006-01-02"),
			fmt.Sprintf("0x%08X", p.UserTagUID),
			email,
			p.AccountName,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing payout csv row for account %d: %w", p.CustomerAccountID, err)
		}
	}
	w.Flush()
	return w.Error()
}

// payoutReference substitutes the configured SEPA description template's
// {user_tag_uid} placeholder with the tag's zero-padded uppercase hex
// representation, e.g. "0xABCD1234".
func payoutReference(template string, userTagUID uint64) string {
	uid := fmt.Sprintf("0x%08X", userTagUID)
	return strings.ReplaceAll(template, "{user_tag_uid}", uid)
}

// batchPayouts chunks payouts (already ordered by customer_account_id)
// into groups of at most size items; size <= 0 means unlimited, producing
// a single batch.
func batchPayouts(payouts []models.Payout, size int) [][]models.Payout {
	if size <= 0 || size >= len(payouts) {
		if len(payouts) == 0 {
			return nil
		}
		return [][]models.Payout{payouts}
	}
	var batches [][]models.Payout
	for i := 0; i < len(payouts); i += size {
		end := i + size
		if end > len(payouts) {
			end = len(payouts)
		}
		batches = append(batches, payouts[i:end])
	}
	return batches
}
