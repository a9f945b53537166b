package mailbox

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/kailas-cloud/ragmail/internal/domain"
)

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int // 587 with STARTTLS by default
	Username string
	Password string
	From     string
	// PlainText disables STARTTLS and auth. Only for local test servers.
	PlainText bool
}

// Sender delivers replies over SMTP.
type Sender struct {
	cfg SMTPConfig
}

// NewSender creates an SMTP sender.
func NewSender(cfg SMTPConfig) *Sender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Sender{cfg: cfg}
}

// Send delivers a plain-text reply.
func (s *Sender) Send(ctx context.Context, r domain.Reply) error {
	msg, err := s.buildMessage(r)
	if err != nil {
		return err
	}

	opts := []gomail.Option{gomail.WithPort(s.cfg.Port)}
	if s.cfg.PlainText {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.NoTLS))
	} else {
		opts = append(opts,
			gomail.WithTLSPortPolicy(gomail.TLSMandatory),
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}

	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", r.To, err)
	}
	return nil
}

func (s *Sender) buildMessage(r domain.Reply) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("from %q: %w", s.cfg.From, err)
	}
	if err := msg.To(r.To); err != nil {
		return nil, fmt.Errorf("to %q: %w", r.To, err)
	}
	msg.Subject(r.Subject)
	if r.InReplyTo != "" {
		ref := "<" + r.InReplyTo + ">"
		msg.SetGenHeader(gomail.HeaderInReplyTo, ref)
		msg.SetGenHeader(gomail.HeaderReferences, ref)
	}
	msg.SetBodyString(gomail.TypeTextPlain, r.Body)
	return msg, nil
}
