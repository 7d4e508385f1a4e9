package mailer

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu   sync.Mutex
	sent []capturedMail
}

type capturedMail struct {
	to      string
	subject string
	html    string
	text    string
}

func (c *captureSender) Send(to, subject, htmlBody, textBody string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, capturedMail{to: to, subject: subject, html: htmlBody, text: textBody})
	return nil
}

func (c *captureSender) wait(t *testing.T, n int) []capturedMail {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.sent) >= n {
			sent := append([]capturedMail(nil), c.sent...)
			c.mu.Unlock()
			return sent
		}
		c.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d emails", n)
	return nil
}

func TestSendRegistrationConfirmation(t *testing.T) {
	sender := &captureSender{}
	m := New(sender, "https://app.ziply.test", 8)
	defer m.Close()

	m.SendRegistrationConfirmation("alice@example.com", "tok:abc")

	sent := sender.wait(t, 1)
	require.Equal(t, "alice@example.com", sent[0].to)
	require.Equal(t, "Confirm your email for Ziply", sent[0].subject)
	require.Contains(t, sent[0].text, "https://app.ziply.test/register/confirm?token=tok%3Aabc")
	require.Contains(t, sent[0].html, "Confirm your email")
}

func TestSendInvitation(t *testing.T) {
	sender := &captureSender{}
	m := New(sender, "https://app.ziply.test", 8)
	defer m.Close()

	m.SendInvitation("bob@example.com", "tok", "Acme", "Alice")

	sent := sender.wait(t, 1)
	require.Equal(t, "bob@example.com", sent[0].to)
	require.Equal(t, "You're invited to join Acme on Ziply", sent[0].subject)
	require.Contains(t, sent[0].text, "Alice has invited you to join Acme")
	require.True(t, strings.Contains(sent[0].text, "/members/invite-confirm?token=tok"))
}
