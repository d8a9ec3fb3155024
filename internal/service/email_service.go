package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrEmailNotConfigured = errors.New("email service not configured")
	ErrEmailSendFailed    = errors.New("failed to send email")
)

// EmailService sends best-effort transactional notices. Failures are
// logged by callers, never propagated into billing transactions.
type EmailService interface {
	SendPaymentFailed(ctx context.Context, to, name string) error
}

// ResendEmailService sends email through the Resend HTTP API.
type ResendEmailService struct {
	apiKey string
	from   string
	client *http.Client
	logger zerolog.Logger
}

// NewResendEmailService creates a Resend-backed EmailService.
func NewResendEmailService(apiKey, from string, logger zerolog.Logger) *ResendEmailService {
	return &ResendEmailService{
		apiKey: apiKey,
		from:   from,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("service", "EmailService").Logger(),
	}
}

type sendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (s *ResendEmailService) send(ctx context.Context, to, subject, html string) error {
	if s.apiKey == "" {
		return ErrEmailNotConfigured
	}

	body, err := json.Marshal(sendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.resend.com/emails", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: status code %d", ErrEmailSendFailed, resp.StatusCode)
	}
	return nil
}

// SendPaymentFailed notifies a user that their renewal payment failed.
func (s *ResendEmailService) SendPaymentFailed(ctx context.Context, to, name string) error {
	html := fmt.Sprintf(`
<p>Hi %s,</p>
<p>We couldn't process your latest subscription payment for Animation Labs.
Your plan is now marked past due; please update your payment method from the
account page to keep your credits renewing.</p>
<p>— The Animation Labs team</p>
`, name)
	return s.send(ctx, to, "Action needed: payment failed", html)
}
