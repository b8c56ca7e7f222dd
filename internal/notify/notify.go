// Package notify delivers booking and wallet notices over SMTP and Redis pub/sub.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
)

// ErrNoAddress indicates the recipient has no address for the channel.
var ErrNoAddress = errors.New("recipient has no address")

// Contact is where notices for a user are delivered.
type Contact struct {
	Name   string
	Email  string
	Mobile string
}

// ContactResolver looks up a user's contact details.
type ContactResolver interface {
	LookupContact(ctx context.Context, userID uint64) (Contact, error)
}

// Fanout delivers a notice through every notifier and joins their errors.
type Fanout []notice.Notifier

// Notify implements notice.Notifier.
func (fanout Fanout) Notify(ctx context.Context, message notice.Notice) error {
	var failures []error
	for _, notifier := range fanout {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, message); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

func renderBody(contact Contact, message notice.Notice) string {
	var body strings.Builder
	if contact.Name != "" {
		fmt.Fprintf(&body, "Hello %s,\n\n", contact.Name)
	}
	body.WriteString(message.Subject)
	body.WriteString("\n\n")
	if message.Code != "" {
		fmt.Fprintf(&body, "Verification code: %s\n", message.Code)
	}
	if message.Number != "" {
		fmt.Fprintf(&body, "Reference number: %s\n", message.Number)
	}
	if message.AmountCents != 0 {
		fmt.Fprintf(&body, "Amount: %s\n", wallet.Cents(message.AmountCents))
	}
	keys := make([]string, 0, len(message.Details))
	for key := range message.Details {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&body, "%s: %s\n", key, message.Details[key])
	}
	return body.String()
}
