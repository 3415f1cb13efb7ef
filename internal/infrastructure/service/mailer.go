// Package service holds infrastructure-side service adapters: the mail relay
// behind the notification pipeline and the operator authentication service.
package service

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/fato-hub/comportamento-hub/pkg/circuitbreaker"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
	"github.com/fato-hub/comportamento-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAILER
// Delivery to the school mail relay is flaky, so every send goes through a
// retrier and a circuit breaker: transient relay errors are retried with
// backoff, a dead relay trips the breaker and sheds sends fast until the
// relay recovers.
// ══════════════════════════════════════════════════════════════════════════════

// Message is one outbound notification mail.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Notifier sends notification messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// MailerConfig configures the SMTP mailer.
type MailerConfig struct {
	// Host / Port locate the relay.
	Host string
	Port int

	// Username / Password authenticate against the relay. Empty username
	// disables auth (local relay).
	Username string
	Password string

	// From is the sender address on every message.
	From string
}

// Addr returns the relay address.
func (c MailerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Mailer delivers notification mail over SMTP.
type Mailer struct {
	config  MailerConfig
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// Compile-time interface check.
var _ Notifier = (*Mailer)(nil)

// NewMailer creates a Mailer wired with the relay retrier and breaker.
func NewMailer(config MailerConfig, log *logger.Logger) *Mailer {
	log = log.With(logger.Component("mailer"))

	return &Mailer{
		config:  config,
		retrier: retry.MailerRetrier(),
		breaker: circuitbreaker.MailerBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("mail relay breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
		log:  log,
		send: smtp.SendMail,
	}
}

// Notify sends one message through the breaker and retrier.
func (m *Mailer) Notify(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("mailer: no recipients")
	}

	payload := m.render(msg)

	err := m.breaker.Execute(ctx, func(ctx context.Context) error {
		return m.retrier.Do(ctx, func(ctx context.Context) error {
			var auth smtp.Auth
			if m.config.Username != "" {
				auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
			}
			return m.send(m.config.Addr(), auth, m.config.From, msg.To, payload)
		})
	})
	if err != nil {
		m.log.Error("mail delivery failed",
			logger.String("subject", msg.Subject),
			logger.Int("recipients", len(msg.To)),
			logger.Err(err),
		)
		return fmt.Errorf("mailer: delivery failed: %w", err)
	}

	m.log.Info("mail delivered",
		logger.String("subject", msg.Subject),
		logger.Int("recipients", len(msg.To)),
	)
	return nil
}

func (m *Mailer) render(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}
