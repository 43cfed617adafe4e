// Package customer implements the Customer Portal Core of spec §4.6,
// grounded on original_source/core/service/customer/customer.py.
package customer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/config"
	"github.com/stustapay/core/internal/mail"
	"github.com/stustapay/core/internal/models"
)

var emailFormat = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

// Service implements login, bank-detail updates, and payout status
// lookups. Token minting is the API layer's concern; this package only
// resolves which account a pin belongs to.
type Service struct {
	settings *config.SettingsView
	mail     mail.Sender
}

func NewService(settings *config.SettingsView, mailSender mail.Sender) *Service {
	return &Service{settings: settings, mail: mailSender}
}

// LoginCustomer implements Open Question decision 2: the supplied pin
// matches if it equals the stored pin as given, lowercased, or
// uppercased — reproducing original_source/customer.py's matching
// exactly (it queries for both pin.lower() and pin.upper()).
func (s *Service) LoginCustomer(ctx context.Context, tx pgx.Tx, pin string) (models.Account, error) {
	candidates := pinCandidates(pin)

	var a models.Account
	err := tx.QueryRow(ctx, `
		SELECT a.id, a.node_id, a.kind, a.name, a.balance, a.voucher_balance, a.user_tag_id, a.restriction, a.cash_register_id, a.z_nr
		FROM account a
		JOIN user_tag ut ON ut.id = a.user_tag_id
		WHERE a.kind = 'private' AND ut.pin = ANY($1)
		LIMIT 1`, candidates).
		Scan(&a.ID, &a.NodeID, &a.Kind, &a.Name, &a.Balance, &a.VoucherBalance, &a.UserTagID, &a.Restriction, &a.CashRegisterID, &a.ZNr)
	if err == pgx.ErrNoRows {
		return models.Account{}, apierrors.AccessDenied("invalid pin")
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("looking up customer by pin: %w", err)
	}
	return a, nil
}

func pinCandidates(pin string) []string {
	lower, upper := strings.ToLower(pin), strings.ToUpper(pin)
	if lower == upper {
		return []string{pin}
	}
	return []string{pin, lower, upper}
}

// PayoutInfo implements payout_info: whether the customer is attached to
// a payout run, and the run's completion date if known.
type PayoutInfo struct {
	InPayoutRun bool
	PayoutDate  *time.Time
}

func GetPayoutInfo(ctx context.Context, tx pgx.Tx, customerAccountID int64) (PayoutInfo, error) {
	var info PayoutInfo
	err := tx.QueryRow(ctx, `
		SELECT
			ci.payout_run_id IS NOT NULL,
			(SELECT pr.set_done_at FROM payout_run pr WHERE pr.id = ci.payout_run_id)
		FROM customer_info ci WHERE ci.customer_account_id = $1`, customerAccountID).
		Scan(&info.InPayoutRun, &info.PayoutDate)
	if err == pgx.ErrNoRows {
		return PayoutInfo{}, nil
	}
	if err != nil {
		return PayoutInfo{}, fmt.Errorf("fetching payout info for account %d: %w", customerAccountID, err)
	}
	return info, nil
}

// BankDetails is the distilled spec's CustomerBank payload.
type BankDetails struct {
	IBAN        string
	AccountName string
	Email       string
	Donation    models.Money
}

// UpdateCustomerInfo implements update_customer_info verbatim, including
// the side-effect mail send when the customer now carries an email.
func (s *Service) UpdateCustomerInfo(ctx context.Context, tx pgx.Tx, customer models.Account, b BankDetails) error {
	if err := rejectIfAlreadyInPayoutRun(ctx, tx, customer.ID); err != nil {
		return err
	}

	_, compactIBAN, err := ValidateIBAN(b.IBAN)
	if err != nil {
		return apierrors.InvalidArgument("provided IBAN is not valid")
	}

	settings, ok := s.settings.ForNode(customer.NodeID)
	if !ok {
		return apierrors.Newf(apierrors.KindInternal, "no event settings for node %d", customer.NodeID)
	}
	if !settings.SepaEnabled {
		return apierrors.InvalidArgument("SEPA payout is disabled")
	}
	countryCode := compactIBAN[:2]
	if !containsCode(settings.SepaAllowedCountryCodes, countryCode) {
		return apierrors.InvalidArgument("provided IBAN contains a country code which is not supported")
	}

	if b.Donation.IsNegative() {
		return apierrors.InvalidArgument("donation cannot be negative")
	}
	if b.Donation.Decimal.GreaterThan(customer.Balance.Decimal) {
		return apierrors.InvalidArgument("donation cannot be higher than your balance")
	}

	if !emailFormat.MatchString(b.Email) {
		return apierrors.InvalidArgument("provided email is not valid")
	}

	_, err = tx.Exec(ctx, `
		UPDATE customer_info
		SET iban = $2, account_name = $3, email = $4, donation = $5, donate_all = false, has_entered_info = true
		WHERE customer_account_id = $1`,
		customer.ID, compactIBAN, b.AccountName, b.Email, b.Donation.Decimal.Round(2),
	)
	if err != nil {
		return fmt.Errorf("updating customer info for account %d: %w", customer.ID, err)
	}

	return s.sendPayoutRegisteredMail(ctx, customer.NodeID, b.Email, b.AccountName, settings)
}

// UpdateCustomerInfoDonateAll implements update_customer_info_donate_all.
func (s *Service) UpdateCustomerInfoDonateAll(ctx context.Context, tx pgx.Tx, customerAccountID int64) error {
	if err := rejectIfAlreadyInPayoutRun(ctx, tx, customerAccountID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE customer_info SET donation = NULL, donate_all = true, has_entered_info = true
		WHERE customer_account_id = $1`, customerAccountID)
	if err != nil {
		return fmt.Errorf("setting donate-all for account %d: %w", customerAccountID, err)
	}
	return nil
}

func rejectIfAlreadyInPayoutRun(ctx context.Context, tx pgx.Tx, customerAccountID int64) error {
	var inRun bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM customer_info WHERE customer_account_id = $1 AND payout_run_id IS NOT NULL)`,
		customerAccountID).Scan(&inRun)
	if err != nil {
		return fmt.Errorf("checking payout run assignment for account %d: %w", customerAccountID, err)
	}
	if inRun {
		return apierrors.InvalidArgument("your account is already scheduled for the next payout, updates are no longer possible")
	}
	return nil
}

func (s *Service) sendPayoutRegisteredMail(ctx context.Context, nodeID int64, toEmail, accountName string, settings config.EventSettings) error {
	if s.mail == nil || toEmail == "" {
		return nil
	}
	message := strings.NewReplacer("{account_name}", accountName).Replace(settings.PayoutRegisteredMessage)
	return s.mail.SendPayoutRegistered(ctx, toEmail, settings.PayoutSender, settings.PayoutRegisteredSubject, message)
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
