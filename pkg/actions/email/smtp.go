package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/payload"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/google/uuid"
)

var ErrSMTPFailed = errors.New("smtp delivery failed")

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Send     SendFunc
}

type SMTPFactory struct {
	config SMTPConfig
}

func NewSMTPFactory(config SMTPConfig) *SMTPFactory {
	if config.Host == "" {
		config.Host = "smtp.gmail.com"
	}

	if config.Port == 0 {
		config.Port = 587
	}

	if config.From == "" {
		config.From = config.Username
	}

	if config.Send == nil {
		config.Send = smtp.SendMail
	}

	return &SMTPFactory{config: config}
}

func (*SMTPFactory) ID() string { return "send_email_smtp" }

func (*SMTPFactory) Name() string { return "Send Email (SMTP)" }

func (*SMTPFactory) Description() string {
	return "Sends an e-mail through an authenticated SMTP server."
}

func (*SMTPFactory) Schema() map[string]any { return Schema() }

func (f *SMTPFactory) Create(logger *slog.Logger) (protocol.ActionHandler, error) {
	return &SMTPAction{config: f.config, logger: logger}, nil
}

type SMTPAction struct {
	config SMTPConfig
	logger *slog.Logger
}

func (a *SMTPAction) Invoke(ctx context.Context, config map[string]any, _ payload.Value) (payload.Value, error) {
	msg, err := parseMessage(config, a.config.From)
	if err != nil {
		return failed(err.Error()), nil
	}

	if a.config.Username == "" || a.config.Password == "" {
		return failed("smtp credentials are not configured"), nil
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), a.config.Host)
	addr := net.JoinHostPort(a.config.Host, fmt.Sprint(a.config.Port))
	auth := smtp.PlainAuth("", a.config.Username, a.config.Password, a.config.Host)

	done := make(chan error, 1)

	go func() {
		done <- a.config.Send(addr, auth, msg.From, []string{msg.To}, buildMIME(msg, messageID))
	}()

	select {
	case <-ctx.Done():
		return payload.Null(), ctx.Err()
	case err := <-done:
		if err != nil {
			return payload.Null(), fmt.Errorf("%w: %w", ErrSMTPFailed, err)
		}
	}

	a.logger.InfoContext(ctx, "email sent", "email_id", messageID, "to", msg.To)

	return sent(messageID, msg), nil
}

func buildMIME(msg *Message, messageID string) []byte {
	var b strings.Builder

	b.WriteString("From: " + headerValue(msg.From) + "\r\n")
	b.WriteString("To: " + headerValue(msg.To) + "\r\n")
	b.WriteString("Subject: " + headerValue(msg.Subject) + "\r\n")
	b.WriteString("Message-ID: " + messageID + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	return []byte(b.String())
}

var headerReplacer = strings.NewReplacer("\r", " ", "\n", " ")

func headerValue(s string) string {
	return headerReplacer.Replace(s)
}
