// Package mail delivers password-reset and email-verification links.
package mail

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// Mailer sends account emails carrying a single-use token.
type Mailer interface {
	SendResetPasswordEmail(ctx context.Context, to, token string) error
	SendVerificationEmail(ctx context.Context, to, token string) error
}

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// WriterMailer renders messages as plain text onto an outbox writer.
// Only the recipient and subject reach the structured log; the body with the
// token goes to the outbox alone.
type WriterMailer struct {
	mu      sync.Mutex
	out     io.Writer
	baseURL string
	log     logging.Logger
}

// NewWriterMailer builds links against baseURL (e.g. "http://localhost:3000").
func NewWriterMailer(out io.Writer, baseURL string, log logging.Logger) *WriterMailer {
	return &WriterMailer{
		out:     out,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With("module", "mail"),
	}
}

func (m *WriterMailer) SendResetPasswordEmail(ctx context.Context, to, token string) error {
	link := m.link("/v1/auth/reset-password", token)
	return m.send(ctx, Message{
		To:      to,
		Subject: "Reset password",
		Body: "Dear user,\n" +
			"To reset your password, click on this link: " + link + "\n" +
			"If you did not request any password resets, then ignore this email.\n",
	})
}

func (m *WriterMailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	link := m.link("/v1/auth/verify-email", token)
	return m.send(ctx, Message{
		To:      to,
		Subject: "Email Verification",
		Body: "Dear user,\n" +
			"To verify your email, click on this link: " + link + "\n" +
			"If you did not create an account, then ignore this email.\n",
	})
}

func (m *WriterMailer) link(path, token string) string {
	return m.baseURL + path + "?" + url.Values{"token": {token}}.Encode()
}

func (m *WriterMailer) send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	_, err := fmt.Fprintf(m.out, "To: %s\nSubject: %s\n\n%s\n", msg.To, msg.Subject, msg.Body)
	m.mu.Unlock()

	if err != nil {
		m.log.Error(ctx, "email delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
		return fmt.Errorf("sending %q: %w", msg.Subject, err)
	}

	m.log.Info(ctx, "email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}
