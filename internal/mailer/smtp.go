package mailer

import (
	"fmt"

	mail "github.com/go-mail/mail"
)

// Sender delivers a single email. Implementations may block on network I/O;
// the Mailer calls them from its worker, never from a request goroutine.
type Sender interface {
	Send(to, subject, htmlBody, textBody string) error
}

// SMTPSender implements Sender over SMTP.
type SMTPSender struct {
	Host string
	Port int
	From string
	User string
	Pass string
}

// NewSMTPSender creates a new SMTPSender with the given parameters.
func NewSMTPSender(host string, port int, from, user, pass string) *SMTPSender {
	return &SMTPSender{
		Host: host,
		Port: port,
		From: from,
		User: user,
		Pass: pass,
	}
}

// Send delivers a multipart text+HTML email.
func (s *SMTPSender) Send(to, subject, htmlBody, textBody string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	m.SetBody("text/plain", textBody)
	if htmlBody != "" {
		m.AddAlternative("text/html", htmlBody)
	}

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}
