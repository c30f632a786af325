package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Mailer delivers password reset links out of band.
type Mailer interface {
	SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error
}

type PasswordResetMessage struct {
	To        string    `json:"to"`
	Name      string    `json:"name"`
	ResetURL  string    `json:"resetUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// BuildResetURL appends the token as the last path segment of <frontend>/reset-password.
func BuildResetURL(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/reset-password/" + url.PathEscape(token)
}

func RenderPasswordReset(msg PasswordResetMessage) (subject, body string) {
	name := msg.Name
	if name == "" {
		name = "there"
	}
	subject = "Reset your password"
	body = fmt.Sprintf(`Hi %s,

We received a request to reset the password for your account.
Open the link below to choose a new password:

%s

This link expires at %s and can be used once.
If you did not request a reset you can ignore this email.
`, name, msg.ResetURL, msg.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
	return subject, body
}

// LogMailer writes reset links to the log. Development only.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendPasswordReset(_ context.Context, msg PasswordResetMessage) error {
	m.logger.Info("password reset email",
		"to", msg.To,
		"reset_url", msg.ResetURL,
		"expires_at", msg.ExpiresAt)
	return nil
}
