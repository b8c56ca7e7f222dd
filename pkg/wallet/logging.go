package wallet

import (
	"context"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
)

// LedgerOption configures a Ledger instance.
type LedgerOption func(*Ledger)

// OperationLogger records domain-level events emitted by Ledger operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing wallet operation.
type OperationLog struct {
	Operation     string
	UserID        UserID
	TransactionID TransactionID
	Reference     TransactionRef
	Amount        Cents
	Balance       Cents
	Status        string
	Error         error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) LedgerOption {
	return func(ledger *Ledger) {
		ledger.logger = logger
	}
}

// WithNotifier wires the outbound notifier used for topup events. Delivery
// failures are reported to failures and otherwise ignored.
func WithNotifier(notifier notice.Notifier, failures notice.FailureLogger) LedgerOption {
	return func(ledger *Ledger) {
		ledger.notifier = notifier
		ledger.notifyFailures = failures
	}
}

// WithCodeGenerator replaces the verification code source.
func WithCodeGenerator(generate func() (string, error)) LedgerOption {
	return func(ledger *Ledger) {
		if generate != nil {
			ledger.codeFn = generate
		}
	}
}

// WithIDGenerator replaces the transaction id source.
func WithIDGenerator(generate func() string) LedgerOption {
	return func(ledger *Ledger) {
		if generate != nil {
			ledger.idFn = generate
		}
	}
}
