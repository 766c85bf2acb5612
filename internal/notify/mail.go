package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/sweeney/heater-controller/internal/logger"
)

// MailConfig configures SMTP delivery.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error
}

// Mailer sends alerts as plain-text email.
type Mailer struct {
	sender mailSender
	from   string
	to     []string
	retry  Retry
	log    *logger.Logger
}

// NewMailer builds an SMTP client. STARTTLS is used when the server offers it.
func NewMailer(cfg MailConfig, retry Retry, log *logger.Logger) (*Mailer, error) {
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.New("mail: from and to are required")
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail client: %w", err)
	}
	return newMailer(client, cfg, retry, log), nil
}

func newMailer(sender mailSender, cfg MailConfig, retry Retry, log *logger.Logger) *Mailer {
	if log == nil {
		log = logger.Nop()
	}
	return &Mailer{sender: sender, from: cfg.From, to: cfg.To, retry: retry, log: log}
}

// Notify sends a with the configured retry policy.
func (m *Mailer) Notify(ctx context.Context, a Alert) error {
	msg, err := m.message(a)
	if err != nil {
		return err
	}
	return m.retry.Do(ctx, func(ctx context.Context) error {
		return m.sender.DialAndSendWithContext(ctx, msg)
	}, func(attempt int, err error) {
		m.log.Warnw("mail send failed", "alert", a.ID, "attempt", attempt, "of", m.retry.Attempts, "err", err)
	})
}

func (m *Mailer) message(a Alert) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(m.to...); err != nil {
		return nil, fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(a.Subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, a.Body)
	return msg, nil
}
