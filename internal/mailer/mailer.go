// Package mailer delivers transactional email out-of-band. Enqueueing from a
// request goroutine is synchronous and fast; delivery happens on a worker
// goroutine, and a failed send is logged, never surfaced to the request that
// enqueued it.
package mailer

import (
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

type message struct {
	to      string
	subject string
	html    string
	text    string
}

// Mailer owns the outbound email queue.
type Mailer struct {
	sender      Sender
	frontendURL string
	queue       chan message
	done        chan struct{}
}

// New creates a Mailer and starts its delivery worker.
func New(sender Sender, frontendURL string, queueSize int) *Mailer {
	m := &Mailer{
		sender:      sender,
		frontendURL: frontendURL,
		queue:       make(chan message, queueSize),
		done:        make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Mailer) run() {
	defer close(m.done)
	for msg := range m.queue {
		if err := m.sender.Send(msg.to, msg.subject, msg.html, msg.text); err != nil {
			log.Error().Err(err).Str("to", msg.to).Str("subject", msg.subject).Msg("Email delivery failed")
			continue
		}
		log.Info().Str("to", msg.to).Str("subject", msg.subject).Msg("Email sent")
	}
}

// Close stops accepting new mail and waits for queued messages to drain.
func (m *Mailer) Close() {
	close(m.queue)
	select {
	case <-m.done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Mail queue drain timed out")
	}
}

func (m *Mailer) enqueue(msg message) {
	select {
	case m.queue <- msg:
	default:
		// A full queue means the SMTP host is down or badly backlogged.
		// Dropping keeps enqueue non-blocking; the caller can re-request.
		log.Error().Str("to", msg.to).Str("subject", msg.subject).Msg("Mail queue full, dropping email")
	}
}

// SendRegistrationConfirmation enqueues the email-confirmation message for a
// new registration.
func (m *Mailer) SendRegistrationConfirmation(email, token string) {
	confirmURL := fmt.Sprintf("%s/register/confirm?token=%s", m.frontendURL, url.QueryEscape(token))

	html, text, err := renderRegistration(registrationVars{Email: email, ConfirmURL: confirmURL})
	if err != nil {
		log.Error().Err(err).Msg("Failed to render registration email")
		return
	}

	m.enqueue(message{
		to:      email,
		subject: "Confirm your email for Ziply",
		html:    html,
		text:    text,
	})
}

// SendInvitation enqueues the invitation message for an invited email.
func (m *Mailer) SendInvitation(email, token, businessName, invitedByName string) {
	inviteURL := fmt.Sprintf("%s/members/invite-confirm?token=%s", m.frontendURL, url.QueryEscape(token))

	html, text, err := renderInvitation(invitationVars{
		Email:         email,
		BusinessName:  businessName,
		InvitedByName: invitedByName,
		InviteURL:     inviteURL,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to render invitation email")
		return
	}

	m.enqueue(message{
		to:      email,
		subject: fmt.Sprintf("You're invited to join %s on Ziply", businessName),
		html:    html,
		text:    text,
	})
}
