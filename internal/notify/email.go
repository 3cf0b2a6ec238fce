package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/joescharf/desk/internal/fault"
	"github.com/joescharf/desk/internal/models"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Enabled reports whether enough is configured to send mail.
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

const emailConnTimeout = 30 * time.Second

type sendFunc func(ctx context.Context, msg *mail.Msg) error

// EmailNotifier sends plain-text mail through an SMTP relay, upgrading to
// STARTTLS when the server offers it.
type EmailNotifier struct {
	cfg    EmailConfig
	client *mail.Client
	send   sendFunc
}

// NewEmailNotifier creates an EmailNotifier. Port defaults to 587.
func NewEmailNotifier(cfg EmailConfig) (*EmailNotifier, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("email: host, from and to are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(emailConnTimeout),
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
		return nil, fmt.Errorf("email: %w", err)
	}

	n := &EmailNotifier{cfg: cfg, client: client}
	n.send = func(ctx context.Context, msg *mail.Msg) error {
		return client.DialAndSendWithContext(ctx, msg)
	}
	// Reject bad addresses now rather than on the first notification.
	if _, err := n.message("", ""); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) NotifyEscalation(ctx context.Context, e *models.EscalationContext) error {
	return n.mail(ctx, EscalationSubject(e), FormatEscalation(e))
}

func (n *EmailNotifier) NotifyFault(ctx context.Context, r *models.FaultReport) error {
	return n.mail(ctx, fault.Subject(r), fault.FormatNotification(r))
}

func (n *EmailNotifier) mail(ctx context.Context, subject, body string) error {
	msg, err := n.message(subject, body)
	if err != nil {
		return err
	}
	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}

func (n *EmailNotifier) message(subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("email: from: %w", err)
	}
	if err := msg.To(n.cfg.To...); err != nil {
		return nil, fmt.Errorf("email: to: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}
