// Package notify sends the reminder emails produced by the background
// worker.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
)

// Mailer delivers plain-text mail over SMTP.
type Mailer struct {
	host string
	port int
	from string
}

// NewMailer constructs a mailer. The local dev setup points at Mailpit, so
// no authentication is attempted.
func NewMailer(host string, port int, from string) *Mailer {
	return &Mailer{host: host, port: port, from: from}
}

// Send delivers one message.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if m == nil {
		return fmt.Errorf("mailer not configured")
	}
	if to == "" {
		return fmt.Errorf("recipient required")
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Message-ID: <%s@clearpath>\r\n", uuid.NewString())
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, nil, m.from, []string{to}, []byte(msg.String()))
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
