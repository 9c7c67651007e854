package notification

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers messages through an SMTP relay, upgrading to STARTTLS
// when the server offers it.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(ctx context.Context, msgs ...*mail.Msg) error
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
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
		return nil, fmt.Errorf("smtp client for %s: %w", cfg.Host, err)
	}
	return &SMTPMailer{cfg: cfg, send: client.DialAndSendWithContext}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	out, err := buildMessage(m.cfg.From, msg)
	if err != nil {
		return err
	}
	if err := m.send(ctx, out); err != nil {
		return fmt.Errorf("smtp send via %s: %w", m.cfg.Host, err)
	}
	return nil
}

func buildMessage(from string, msg Message) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(from); err != nil {
		return nil, fmt.Errorf("sender %q: %w", from, err)
	}
	if err := out.To(msg.To...); err != nil {
		return nil, fmt.Errorf("recipients: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)

	for _, a := range msg.Attachments {
		ct := mail.ContentType(a.ContentType)
		if ct == "" {
			ct = mail.TypeAppOctetStream
		}
		if err := out.AttachReader(a.FileName, bytes.NewReader(a.Content), mail.WithFileContentType(ct)); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.FileName, err)
		}
	}
	return out, nil
}
