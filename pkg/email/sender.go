package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/tindahub/marketplace-backend/pkg/breaker"
	"github.com/tindahub/marketplace-backend/pkg/config"
	"github.com/tindahub/marketplace-backend/pkg/logger"
)

// Attachment is a file sent alongside a message.
type Attachment struct {
	Filename string
	Content  []byte
}

// Message is a single outbound HTML email.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Sender delivers messages over SMTP.
type Sender struct {
	client  dialer
	from    string
	breaker *breaker.Breaker
	logg    *logger.Logger
}

func NewSender(cfg config.EmailConfig, logg *logger.Logger) (*Sender, error) {
	if !cfg.Enabled() {
		return nil, errors.New("smtp host and from address are required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return newSender(client, cfg.From, logg), nil
}

func newSender(client dialer, from string, logg *logger.Logger) *Sender {
	return &Sender{
		client:  client,
		from:    from,
		breaker: breaker.New(breaker.DefaultSettings("email")),
		logg:    logg,
	}
}

// Send builds and delivers msg.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	built, err := s.build(msg)
	if err != nil {
		return err
	}

	if err := s.breaker.Do(func() error {
		return s.client.DialAndSendWithContext(ctx, built)
	}); err != nil {
		return fmt.Errorf("send email to %s: %w", msg.To, err)
	}

	if s.logg != nil {
		ctx = s.logg.WithField(ctx, "email_to", msg.To)
		s.logg.Info(ctx, "email sent")
	}
	return nil
}

func (s *Sender) build(msg Message) (*mail.Msg, error) {
	if strings.TrimSpace(msg.To) == "" {
		return nil, errors.New("recipient is required")
	}

	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)

	for _, a := range msg.Attachments {
		if len(a.Content) == 0 {
			continue
		}
		m.AttachReader(a.Filename, bytes.NewReader(a.Content))
	}
	return m, nil
}
