// Package mail delivers verification codes.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"
)

// Mailer sends a verification code to an address.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, code string) error
}

const resendURL = "https://api.resend.com/emails"

var codeTemplate = template.Must(template.New("code").Parse(
	`<div style="font-family: sans-serif; max-width: 400px; margin: 0 auto; padding: 24px;">
  <h2 style="color: #C8102E;">GitUHb Email Verification</h2>
  <p>Your verification code is:</p>
  <p style="font-size: 32px; font-weight: bold; letter-spacing: 8px; color: #C8102E;">{{.Code}}</p>
  <p style="color: #54585A; font-size: 14px;">This code expires in {{.Minutes}} minutes.</p>
</div>`))

// ResendMailer posts to the Resend email API.
type ResendMailer struct {
	apiKey     string
	from       string
	ttl        time.Duration
	endpoint   string
	httpClient *http.Client
}

func NewResendMailer(apiKey, from string, ttl time.Duration) *ResendMailer {
	return &ResendMailer{
		apiKey:     apiKey,
		from:       from,
		ttl:        ttl,
		endpoint:   resendURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (m *ResendMailer) SendVerificationCode(ctx context.Context, to, code string) error {
	var html bytes.Buffer
	if err := codeTemplate.Execute(&html, map[string]any{"Code": code, "Minutes": int(m.ttl.Minutes())}); err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}

	body, err := json.Marshal(resendRequest{
		From:    m.from,
		To:      []string{to},
		Subject: "Verify your UH email - GitUHb",
		HTML:    html.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("email provider returned status %d", resp.StatusCode)
	}
	return nil
}

// LogMailer writes codes to the log instead of sending them. Used when no
// provider key is configured.
type LogMailer struct{}

func (LogMailer) SendVerificationCode(_ context.Context, to, code string) error {
	slog.Info("verification code issued", "action", "mail.verification", "to", to, "code", code)
	return nil
}

// New picks the Resend mailer when an API key is present.
func New(apiKey, from string, ttl time.Duration) Mailer {
	if apiKey == "" {
		return LogMailer{}
	}
	return NewResendMailer(apiKey, from, ttl)
}
