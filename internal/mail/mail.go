// Package mail sends the one transactional notification the core owns:
// the "payout_registered" email fired when a customer completes their
// bank details (spec §4.6). Grounded on the teacher's
// internal/services/email_service.go sender split between a console
// developer sender and a Resend-backed production sender.
package mail

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/resend/resend-go/v2"
)

// Sender delivers the payout-registered notification. The message/subject
// are event-specific templates sourced from config.EventSettings.
type Sender interface {
	SendPayoutRegistered(ctx context.Context, toEmail, fromEmail, subject, message string) error
}

// ConsoleSender logs mail to stdout; used outside production.
type ConsoleSender struct{}

func NewConsoleSender() Sender {
	log.Println("[MAIL] using console mail sender (development mode)")
	return &ConsoleSender{}
}

func (s *ConsoleSender) SendPayoutRegistered(_ context.Context, toEmail, fromEmail, subject, message string) error {
	log.Printf("[MAIL] from=%s to=%s subject=%q\n%s", fromEmail, toEmail, subject, message)
	return nil
}

// ResendSender delivers mail through the Resend API.
type ResendSender struct {
	client *resend.Client
}

func NewResendSender(apiKey string) (Sender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("mail: resend api key is required for the production sender")
	}
	return &ResendSender{client: resend.NewClient(apiKey)}, nil
}

func (s *ResendSender) SendPayoutRegistered(ctx context.Context, toEmail, fromEmail, subject, message string) error {
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	params := &resend.SendEmailRequest{
		From:    fromEmail,
		To:      []string{toEmail},
		Subject: subject,
		Text:    message,
	}
	sent, err := s.client.Emails.SendWithContext(sendCtx, params)
	if err != nil {
		return fmt.Errorf("sending payout_registered mail to %s: %w", toEmail, err)
	}
	log.Printf("[MAIL] payout_registered sent to %s (id %s)", toEmail, sent.Id)
	return nil
}
