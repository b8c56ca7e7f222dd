package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const centsExponent = -2

var maxCents = decimal.NewFromInt(math.MaxInt64)

// Cents is a signed currency amount in cents.
type Cents int64

// Int64 returns the raw cents value.
func (cents Cents) Int64() int64 {
	return int64(cents)
}

// Decimal returns the amount in currency units.
func (cents Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(cents), centsExponent)
}

// String formats the amount with two decimal places.
func (cents Cents) String() string {
	return cents.Decimal().StringFixed(2)
}

// NewBalance validates a stored balance, which may be zero but never negative.
func NewBalance(raw int64) (Cents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidBalance)
	}
	return Cents(raw), nil
}

// PositiveCents is a strictly positive amount in cents.
type PositiveCents int64

// NewPositiveCents validates an amount and ensures it is strictly positive.
func NewPositiveCents(raw int64) (PositiveCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return PositiveCents(raw), nil
}

// ParseAmount parses a decimal currency string such as "12.50".
func ParseAmount(raw string) (PositiveCents, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return AmountFromDecimal(parsed)
}

// AmountFromDecimal converts a currency-unit decimal with at most two fractional digits.
func AmountFromDecimal(value decimal.Decimal) (PositiveCents, error) {
	scaled := value.Shift(2)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: more than two decimal places", ErrInvalidAmount)
	}
	if scaled.GreaterThan(maxCents) {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return NewPositiveCents(scaled.IntPart())
}

// Cents returns the amount as signed cents.
func (amount PositiveCents) Cents() Cents {
	return Cents(amount)
}

// Negated returns the amount as a negative delta.
func (amount PositiveCents) Negated() Cents {
	return -Cents(amount)
}

// String formats the amount with two decimal places.
func (amount PositiveCents) String() string {
	return Cents(amount).String()
}

// UserID identifies a wallet owner.
type UserID struct {
	value uint64
}

// NewUserID validates a user id.
func NewUserID(raw uint64) (UserID, error) {
	if raw == 0 {
		return UserID{}, fmt.Errorf("%w: zero value", ErrInvalidUserID)
	}
	return UserID{value: raw}, nil
}

// ParseUserID parses a decimal user id.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return UserID{}, fmt.Errorf("%w: %v", ErrInvalidUserID, err)
	}
	return NewUserID(parsed)
}

// Uint64 returns the raw identifier.
func (id UserID) Uint64() uint64 {
	return id.value
}

// IsZero reports whether the id is unset.
func (id UserID) IsZero() bool {
	return id.value == 0
}

// String returns the decimal identifier.
func (id UserID) String() string {
	return strconv.FormatUint(id.value, 10)
}

// TransactionID identifies a wallet transaction.
type TransactionID struct {
	value string
}

// NewTransactionID validates and normalizes a transaction id.
func NewTransactionID(raw string) (TransactionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TransactionID{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	return TransactionID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id TransactionID) String() string {
	return id.value
}

// TransactionRef is the idempotency reference of a balance delta or a payment.
type TransactionRef struct {
	value string
}

// NewTransactionRef validates and normalizes a reference.
func NewTransactionRef(raw string) (TransactionRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TransactionRef{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionRef)
	}
	return TransactionRef{value: trimmed}, nil
}

// RefForTransaction returns the ledger ref owned by a completed transaction.
func RefForTransaction(id TransactionID) TransactionRef {
	return TransactionRef{value: transactionRefPrefix + id.String()}
}

// String returns the normalized reference.
func (ref TransactionRef) String() string {
	return ref.value
}

// IsZero reports whether the reference is unset.
func (ref TransactionRef) IsZero() bool {
	return ref.value == ""
}

// MetadataJSON stores arbitrary transaction metadata.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// MetadataFrom marshals a flat string map into metadata.
func MetadataFrom(fields map[string]string) MetadataJSON {
	if len(fields) == 0 {
		return MetadataJSON{value: "{}"}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return MetadataJSON{value: "{}"}
	}
	return MetadataJSON{value: string(raw)}
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// TransactionType enumerates wallet transaction kinds.
type TransactionType string

const (
	TransactionTopup   TransactionType = "topup"
	TransactionPayment TransactionType = "payment"
	TransactionRefund  TransactionType = "refund"
)

// ParseTransactionType validates a stored transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(raw) {
	case TransactionTopup, TransactionPayment, TransactionRefund:
		return TransactionType(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
	}
}

// String returns the type value.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// Credits reports whether a completed transaction of this type adds to the balance.
func (transactionType TransactionType) Credits() bool {
	return transactionType == TransactionTopup || transactionType == TransactionRefund
}

// TransactionStatus defines the wallet transaction lifecycle.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusVerified  TransactionStatus = "verified"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// ParseTransactionStatus validates a stored status.
func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	switch TransactionStatus(raw) {
	case StatusPending, StatusVerified, StatusCompleted, StatusFailed:
		return TransactionStatus(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionState, raw)
	}
}

// String returns the status value.
func (status TransactionStatus) String() string {
	return string(status)
}

// Final reports whether no further transition is possible.
func (status TransactionStatus) Final() bool {
	return status == StatusCompleted || status == StatusFailed
}

// Transaction is an immutable record of one wallet event.
type Transaction struct {
	ID               TransactionID
	UserID           UserID
	Type             TransactionType
	Amount           PositiveCents
	Status           TransactionStatus
	Method           string
	Mobile           string
	VerificationCode string
	VerifyAttempts   int
	ApprovedBy       UserID
	Reason           string
	Reference        TransactionRef
	Metadata         MetadataJSON
	CreatedAt        time.Time
	UpdatedAt        time.Time
	VerifiedAt       *time.Time
	CompletedAt      *time.Time
}

// SignedAmount returns the balance effect of the transaction once completed.
func (transaction Transaction) SignedAmount() Cents {
	if transaction.Type.Credits() {
		return transaction.Amount.Cents()
	}
	return transaction.Amount.Negated()
}

// Entry is a single immutable line of the balance ledger.
type Entry struct {
	UserID       UserID
	Ref          TransactionRef
	Delta        Cents
	BalanceAfter Cents
	CreatedAt    time.Time
}

// TransactionChange is the command applied to a transaction's status.
type TransactionChange struct {
	To         TransactionStatus
	ApprovedBy UserID
	Reason     string
	At         time.Time
}

// Reconciliation compares the stored balance with the completed transaction log.
type Reconciliation struct {
	UserID  UserID
	Balance Cents
	Credits Cents
	Debits  Cents
}

// Expected returns the balance implied by completed transactions.
func (reconciliation Reconciliation) Expected() Cents {
	return reconciliation.Credits - reconciliation.Debits
}

// Consistent reports whether the stored balance matches the transaction log.
func (reconciliation Reconciliation) Consistent() bool {
	return reconciliation.Balance == reconciliation.Expected()
}

// Records is the row-level persistence used by ledger operations inside a transaction.
type Records interface {
	GetBalance(ctx context.Context, userID UserID) (Cents, error)
	LockBalance(ctx context.Context, userID UserID) (Cents, error)
	FindEntry(ctx context.Context, userID UserID, ref TransactionRef) (Entry, bool, error)
	AppendEntry(ctx context.Context, entry Entry) error
	CreateTransaction(ctx context.Context, transaction Transaction) error
	GetTransaction(ctx context.Context, transactionID TransactionID) (Transaction, error)
	FindTransactionByReference(ctx context.Context, reference TransactionRef) (Transaction, bool, error)
	UpdateTransactionStatus(ctx context.Context, transactionID TransactionID, from TransactionStatus, change TransactionChange) (Transaction, error)
	// RecordFailedVerification counts a wrong code against a pending topup and
	// returns the new count. A topup that left pending yields ErrStatusConflict.
	RecordFailedVerification(ctx context.Context, transactionID TransactionID) (int, error)
	SumCompleted(ctx context.Context, userID UserID) (credits Cents, debits Cents, err error)
	ListTransactions(ctx context.Context, userID UserID, limit int) ([]Transaction, error)
	ListEntries(ctx context.Context, userID UserID, limit int) ([]Entry, error)
}

// Store is the persistence contract used by Ledger.
type Store interface {
	Records
	WithTx(ctx context.Context, fn func(ctx context.Context, txRecords Records) error) error
}
