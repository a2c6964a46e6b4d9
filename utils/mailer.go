package utils

import (
	"fmt"

	"bidflow/config"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Mailer sends sequence emails over SMTP. It satisfies the engine's
// EmailSender contract.
type Mailer struct {
	cfg config.SMTPConfig
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send delivers one email and returns the Message-ID attached to it so the
// sequence log can carry an idempotency hint.
func (m *Mailer) Send(to, subject, body string) (string, error) {
	if m.cfg.Host == "" {
		return "", fmt.Errorf("SMTP is not configured")
	}

	messageID := fmt.Sprintf("<%s@bidflow>", uuid.NewString())

	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.FromEmail))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetHeader("Message-ID", messageID)
	msg.SetBody("text/html", body)

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("error sending email: %w", err)
	}

	return messageID, nil
}
