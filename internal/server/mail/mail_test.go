package mail

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterMailer_ResetPassword(t *testing.T) {
	var out, logs bytes.Buffer
	m := NewWriterMailer(&out, "https://auth.example.com/", logging.NewJSONLogger(&logs, slog.LevelDebug))

	require.NoError(t, m.SendResetPasswordEmail(context.Background(), "a@example.com", "tok.en+1"))

	body := out.String()
	assert.Contains(t, body, "To: a@example.com")
	assert.Contains(t, body, "Subject: Reset password")
	assert.Contains(t, body, "https://auth.example.com/v1/auth/reset-password?token=tok.en%2B1")

	assert.Contains(t, logs.String(), "email sent")
	assert.NotContains(t, logs.String(), "tok.en", "token must not reach the log")
}

func TestWriterMailer_Verification(t *testing.T) {
	var out bytes.Buffer
	m := NewWriterMailer(&out, "http://localhost:3000", logging.Nop{})

	require.NoError(t, m.SendVerificationEmail(context.Background(), "b@example.com", "abc"))
	assert.Contains(t, out.String(), "Subject: Email Verification")
	assert.Contains(t, out.String(), "http://localhost:3000/v1/auth/verify-email?token=abc")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriterMailer_WriteError(t *testing.T) {
	m := NewWriterMailer(failingWriter{}, "http://x", logging.Nop{})

	err := m.SendVerificationEmail(context.Background(), "b@example.com", "abc")
	assert.ErrorContains(t, err, "disk full")
}
