package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wneessen/go-mail"
)

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer delivers digests over SMTP.
type Mailer struct {
	mu     sync.Mutex // one SMTP session at a time
	client *mail.Client
	from   string
	logger *slog.Logger
}

func NewMailer(cfg MailConfig, logger *slog.Logger) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
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
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	return &Mailer{
		client: client,
		from:   from,
		logger: logger.With("delivery", "smtp"),
	}, nil
}

func (m *Mailer) Deliver(ctx context.Context, recipient, date, body string) error {
	msg, err := m.buildMessage(recipient, date, body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	m.logger.Debug("sent digest", "recipient", recipient)
	return nil
}

func (m *Mailer) buildMessage(recipient, date, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(recipient); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(Subject(date))
	msg.SetBodyString(mail.TypeTextHTML, RenderHTML(date, body))
	return msg, nil
}

func (m *Mailer) Close() error {
	return nil
}
