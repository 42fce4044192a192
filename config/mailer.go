package config

import (
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail/v2"
)

// Mailer sends HTML mail through the configured SMTP relay.
type Mailer struct {
	settings MailSettings
}

func NewMailer(settings MailSettings) *Mailer {
	if settings.Port == 0 {
		settings.Port = 587
	}
	return &Mailer{settings: settings}
}

// Enabled reports whether SMTP_HOST and SMTP_FROM are configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.settings.Host != "" && m.settings.From != ""
}

func (m *Mailer) SendMail(to []string, subject, html string) error {
	if len(to) == 0 {
		return nil
	}
	if !m.Enabled() {
		return fmt.Errorf("smtp not configured (SMTP_HOST/SMTP_FROM)")
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.settings.From)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)

	d := mail.NewDialer(m.settings.Host, m.settings.Port, m.settings.User, m.settings.Pass)

	// STARTTLS is mandatory on 587 for the government relay.
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         m.settings.Host,
		InsecureSkipVerify: m.settings.SkipTLSVerify, // dev only
	}

	return d.DialAndSend(msg)
}
