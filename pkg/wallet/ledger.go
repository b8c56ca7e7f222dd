package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
)

// Ledger owns every balance mutation and the wallet transaction lifecycle.
type Ledger struct {
	store          Store
	nowFn          func() time.Time
	codeFn         func() (string, error)
	idFn           func() string
	notifier       notice.Notifier
	notifyFailures notice.FailureLogger
	logger         OperationLogger
}

// NewLedger wires a Ledger.
func NewLedger(store Store, now func() time.Time, options ...LedgerOption) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	ledger := &Ledger{
		store:  store,
		nowFn:  now,
		codeFn: generateVerificationCode,
		idFn:   uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(ledger)
		}
	}
	return ledger, nil
}

// ApplyDelta applies a signed balance change under ref inside records' transaction.
// A ref that was already applied is a replay: the current balance is returned and
// nothing is written. The balance never goes negative.
func ApplyDelta(ctx context.Context, records Records, userID UserID, delta Cents, ref TransactionRef, at time.Time) (Cents, error) {
	if userID.IsZero() {
		return 0, ErrInvalidUserID
	}
	if ref.IsZero() {
		return 0, ErrInvalidTransactionRef
	}
	if delta == 0 {
		return 0, fmt.Errorf("%w: zero delta", ErrInvalidAmount)
	}
	current, err := records.LockBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	if _, found, err := records.FindEntry(ctx, userID, ref); err != nil {
		return 0, err
	} else if found {
		return current, nil
	}
	if delta > 0 && current > Cents(math.MaxInt64)-delta {
		return current, fmt.Errorf("%w: balance out of range", ErrInvalidAmount)
	}
	next := current + delta
	if next < 0 {
		return current, ErrInsufficientFunds
	}
	entry := Entry{
		UserID:       userID,
		Ref:          ref,
		Delta:        delta,
		BalanceAfter: next,
		CreatedAt:    at.UTC(),
	}
	if err := records.AppendEntry(ctx, entry); err != nil {
		return 0, err
	}
	return next, nil
}

// ApplyDelta applies a signed balance change in its own transaction. It writes a
// ledger entry without a wallet transaction, so Reconcile reports the user as
// inconsistent afterwards. Balance changes owed to customers go through the
// topup, Charge and Refund flows.
func (ledger *Ledger) ApplyDelta(ctx context.Context, userID UserID, delta Cents, ref TransactionRef) (Cents, error) {
	var balance Cents
	operationError := ledger.store.WithTx(ctx, func(ctx context.Context, txRecords Records) error {
		next, err := ApplyDelta(ctx, txRecords, userID, delta, ref, ledger.nowFn())
		balance = next
		return err
	})
	ledger.logOperation(ctx, OperationLog{
		Operation: operationApplyDelta,
		UserID:    userID,
		Reference: ref,
		Amount:    delta,
		Balance:   balance,
		Error:     operationError,
	})
	return balance, operationError
}

// Balance returns the stored spendable balance.
func (ledger *Ledger) Balance(ctx context.Context, userID UserID) (Cents, error) {
	if userID.IsZero() {
		return 0, ErrInvalidUserID
	}
	return ledger.store.GetBalance(ctx, userID)
}

// Transaction returns one wallet transaction.
func (ledger *Ledger) Transaction(ctx context.Context, transactionID TransactionID) (Transaction, error) {
	return ledger.store.GetTransaction(ctx, transactionID)
}

// History returns the most recent transactions of a user, newest first.
func (ledger *Ledger) History(ctx context.Context, userID UserID, limit int) ([]Transaction, error) {
	if userID.IsZero() {
		return nil, ErrInvalidUserID
	}
	return ledger.store.ListTransactions(ctx, userID, normalizeHistoryLimit(limit))
}

// Entries returns the most recent ledger lines of a user, newest first.
func (ledger *Ledger) Entries(ctx context.Context, userID UserID, limit int) ([]Entry, error) {
	if userID.IsZero() {
		return nil, ErrInvalidUserID
	}
	return ledger.store.ListEntries(ctx, userID, normalizeHistoryLimit(limit))
}

// Charge debits amount as a completed payment. A reused reference returns ErrAlreadyProcessed.
func (ledger *Ledger) Charge(ctx context.Context, userID UserID, amount PositiveCents, reason string, reference TransactionRef, metadata MetadataJSON) (Transaction, error) {
	var charged Transaction
	operationError := ledger.store.WithTx(ctx, func(ctx context.Context, txRecords Records) error {
		transaction, err := ledger.ChargeWithin(ctx, txRecords, userID, amount, reason, reference, metadata)
		charged = transaction
		return err
	})
	ledger.logOperation(ctx, OperationLog{
		Operation:     operationCharge,
		UserID:        userID,
		TransactionID: charged.ID,
		Reference:     reference,
		Amount:        amount.Negated(),
		Error:         operationError,
	})
	return charged, operationError
}

// ChargeWithin is Charge joined to an enclosing transaction.
func (ledger *Ledger) ChargeWithin(ctx context.Context, records Records, userID UserID, amount PositiveCents, reason string, reference TransactionRef, metadata MetadataJSON) (Transaction, error) {
	return ledger.settle(ctx, records, TransactionPayment, userID, amount, reason, reference, metadata)
}

// Refund credits amount as a completed refund. A reused reference returns ErrAlreadyProcessed.
func (ledger *Ledger) Refund(ctx context.Context, userID UserID, amount PositiveCents, reason string, reference TransactionRef, metadata MetadataJSON) (Transaction, error) {
	var refunded Transaction
	operationError := ledger.store.WithTx(ctx, func(ctx context.Context, txRecords Records) error {
		transaction, err := ledger.RefundWithin(ctx, txRecords, userID, amount, reason, reference, metadata)
		refunded = transaction
		return err
	})
	ledger.logOperation(ctx, OperationLog{
		Operation:     operationRefund,
		UserID:        userID,
		TransactionID: refunded.ID,
		Reference:     reference,
		Amount:        amount.Cents(),
		Error:         operationError,
	})
	return refunded, operationError
}

// RefundWithin is Refund joined to an enclosing transaction.
func (ledger *Ledger) RefundWithin(ctx context.Context, records Records, userID UserID, amount PositiveCents, reason string, reference TransactionRef, metadata MetadataJSON) (Transaction, error) {
	return ledger.settle(ctx, records, TransactionRefund, userID, amount, reason, reference, metadata)
}

// Reconcile compares the stored balance with the sum of completed transactions.
func (ledger *Ledger) Reconcile(ctx context.Context, userID UserID) (Reconciliation, error) {
	if userID.IsZero() {
		return Reconciliation{}, ErrInvalidUserID
	}
	var reconciliation Reconciliation
	err := ledger.store.WithTx(ctx, func(ctx context.Context, txRecords Records) error {
		balance, err := txRecords.LockBalance(ctx, userID)
		if err != nil {
			return err
		}
		credits, debits, err := txRecords.SumCompleted(ctx, userID)
		if err != nil {
			return err
		}
		reconciliation = Reconciliation{UserID: userID, Balance: balance, Credits: credits, Debits: debits}
		return nil
	})
	return reconciliation, err
}

// settle writes a completed payment or refund together with its ledger entry.
func (ledger *Ledger) settle(ctx context.Context, records Records, transactionType TransactionType, userID UserID, amount PositiveCents, reason string, reference TransactionRef, metadata MetadataJSON) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if reference.IsZero() {
		return Transaction{}, ErrInvalidTransactionRef
	}
	if _, found, err := records.FindTransactionByReference(ctx, reference); err != nil {
		return Transaction{}, err
	} else if found {
		return Transaction{}, ErrAlreadyProcessed
	}
	transactionID, err := NewTransactionID(ledger.idFn())
	if err != nil {
		return Transaction{}, err
	}
	now := ledger.nowFn().UTC()
	transaction := Transaction{
		ID:          transactionID,
		UserID:      userID,
		Type:        transactionType,
		Amount:      amount,
		Status:      StatusCompleted,
		Method:      methodWallet,
		Reason:      reason,
		Reference:   reference,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
		CompletedAt: &now,
	}
	if _, err := ApplyDelta(ctx, records, userID, transaction.SignedAmount(), RefForTransaction(transactionID), now); err != nil {
		return Transaction{}, err
	}
	if err := records.CreateTransaction(ctx, transaction); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return Transaction{}, ErrAlreadyProcessed
		}
		return Transaction{}, err
	}
	return transaction, nil
}

func (ledger *Ledger) notify(ctx context.Context, message notice.Notice) {
	if message.OccurredAt.IsZero() {
		message.OccurredAt = ledger.nowFn().UTC()
	}
	notice.Dispatch(ctx, ledger.notifier, ledger.notifyFailures, message)
}

func (ledger *Ledger) logOperation(ctx context.Context, entry OperationLog) {
	if ledger.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	ledger.logger.LogOperation(ctx, entry)
}

func normalizeHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
