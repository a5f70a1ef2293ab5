// Package notify delivers outbound email. Delivery is fire-and-forget: the
// Dispatcher queues messages and sends them from background workers so a slow
// or failing mail server never affects the request that triggered it.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender configures a sender for the given relay.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// Send dials the relay and delivers msg. gomail has no context support, so
// ctx is only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// LogSender only logs messages. It is used when no SMTP relay is configured.
type LogSender struct {
	log *zap.SugaredLogger
}

// NewLogSender creates a LogSender writing to log.
func NewLogSender(log *zap.SugaredLogger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Infow("mail not sent, no smtp relay configured", "to", msg.To, "subject", msg.Subject)
	return nil
}

// WelcomeMessage is sent after registration.
func WelcomeMessage(to, name string) Message {
	return Message{
		To:      to,
		Subject: "Welcome to Clean.Invest",
		Body: fmt.Sprintf("Hello, %s!\n\n"+
			"Your Clean.Invest account is ready. Your starting balance is already on your wallet, "+
			"so you can explore the company catalog and make your first investment right away.\n\n"+
			"The Clean.Invest team", name),
	}
}
