// Package notice defines the outbound notification contract shared by the wallet
// ledger and the booking engine. Delivery is fire-and-forget: a failed notice is
// reported to a FailureLogger and never undoes the state change that produced it.
package notice

import (
	"context"
	"time"
)

// Kind enumerates outbound notice types.
type Kind string

const (
	KindVerificationCode Kind = "verification_code"
	KindBookingConfirmed Kind = "booking_confirmed"
	KindServiceCompleted Kind = "service_completed"
	KindCheckoutTicket   Kind = "checkout_ticket"
	KindTopupApproved    Kind = "topup_approved"
	KindTopupRejected    Kind = "topup_rejected"
)

// String returns the kind value.
func (kind Kind) String() string {
	return string(kind)
}

// Notice is a single outbound event addressed to a user.
type Notice struct {
	Kind        Kind              `json:"kind"`
	UserID      uint64            `json:"user_id"`
	Subject     string            `json:"subject"`
	Number      string            `json:"number,omitempty"`
	Code        string            `json:"code,omitempty"`
	AmountCents int64             `json:"amount_cents,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Notifier delivers notices to an external channel.
type Notifier interface {
	Notify(ctx context.Context, notice Notice) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, notice Notice) error

// Notify calls the wrapped function.
func (fn NotifierFunc) Notify(ctx context.Context, notice Notice) error {
	return fn(ctx, notice)
}

// FailureLogger receives notices that could not be delivered.
type FailureLogger interface {
	LogNotifyFailure(ctx context.Context, notice Notice, err error)
}

// Dispatch delivers notice through notifier and swallows delivery errors after
// reporting them to failures. A nil notifier is a no-op.
func Dispatch(ctx context.Context, notifier Notifier, failures FailureLogger, notice Notice) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, notice); err != nil && failures != nil {
		failures.LogNotifyFailure(ctx, notice, err)
	}
}
