package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
	"github.com/wneessen/go-mail"
)

const defaultSMTPPort = 587

// MailConfig describes the SMTP relay.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MailSender is the part of *mail.Client used by MailNotifier.
type MailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// NewSMTPClient builds a go-mail client with plain SMTP auth.
func NewSMTPClient(config MailConfig) (*mail.Client, error) {
	port := config.Port
	if port <= 0 {
		port = defaultSMTPPort
	}
	options := []mail.Option{mail.WithPort(port)}
	if config.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}
	client, err := mail.NewClient(config.Host, options...)
	if err != nil {
		return nil, fmt.Errorf("notify.mail.client: %w", err)
	}
	return client, nil
}

// MailNotifier emails notices to the user's address.
type MailNotifier struct {
	sender   MailSender
	contacts ContactResolver
	from     string
}

// NewMailNotifier validates and constructs a MailNotifier.
func NewMailNotifier(sender MailSender, contacts ContactResolver, from string) (*MailNotifier, error) {
	if sender == nil || contacts == nil {
		return nil, fmt.Errorf("notify.mail.config: nil dependency")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("notify.mail.config: missing sender address")
	}
	return &MailNotifier{sender: sender, contacts: contacts, from: strings.TrimSpace(from)}, nil
}

// Notify implements notice.Notifier.
func (notifier *MailNotifier) Notify(ctx context.Context, message notice.Notice) error {
	contact, err := notifier.contacts.LookupContact(ctx, message.UserID)
	if err != nil {
		return fmt.Errorf("notify.mail.contact: %w", err)
	}
	if contact.Email == "" {
		return fmt.Errorf("notify.mail.contact: user %d: %w", message.UserID, ErrNoAddress)
	}
	msg := mail.NewMsg()
	if err := msg.From(notifier.from); err != nil {
		return fmt.Errorf("notify.mail.from: %w", err)
	}
	if err := msg.To(contact.Email); err != nil {
		return fmt.Errorf("notify.mail.to: %w", err)
	}
	msg.Subject(message.Subject)
	msg.SetBodyString(mail.TypeTextPlain, renderBody(contact, message))
	if err := notifier.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify.mail.send: %w", err)
	}
	return nil
}
