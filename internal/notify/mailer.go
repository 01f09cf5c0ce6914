package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/birdielabs/waveportal/internal/config"
)

// Mailer is the outbound notification channel: plaintext body, fixed
// subject per message type.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) (*SendResult, error)
}

// SendResult describes a completed send.
type SendResult struct {
	MessageID string    `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
}

// SMTPMailer delivers mail over SMTP.
type SMTPMailer struct {
	cfg    config.EmailConfig
	logger *zap.Logger
}

// NewSMTPMailer creates an SMTP mailer from config.
func NewSMTPMailer(cfg *config.Config, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg.Email, logger: logger}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) (*SendResult, error) {
	from := m.cfg.FromEmail
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.FromEmail)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.FromEmail, []string{to}, []byte(msg.String())); err != nil {
		return nil, fmt.Errorf("failed to send mail to %s: %w", to, err)
	}

	return &SendResult{
		MessageID: fmt.Sprintf("mail_%d", time.Now().UnixNano()),
		SentAt:    time.Now(),
	}, nil
}

// MockMailer records sends for development and testing.
type MockMailer struct {
	Sent []MockMessage
	Err  error
}

// MockMessage is a message captured by the mock.
type MockMessage struct {
	To      string
	Subject string
	Body    string
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) (*SendResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.Sent = append(m.Sent, MockMessage{To: to, Subject: subject, Body: body})
	return &SendResult{
		MessageID: fmt.Sprintf("mock_%d", len(m.Sent)),
		SentAt:    time.Now(),
	}, nil
}
