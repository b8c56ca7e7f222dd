package wallet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

type stubState struct {
	balances     map[UserID]Cents
	entries      []Entry
	transactions map[TransactionID]Transaction
	created      []TransactionID
	lockErr      error
}

func (state *stubState) clone() *stubState {
	copied := &stubState{
		balances:     make(map[UserID]Cents, len(state.balances)),
		entries:      append([]Entry(nil), state.entries...),
		transactions: make(map[TransactionID]Transaction, len(state.transactions)),
		created:      append([]TransactionID(nil), state.created...),
		lockErr:      state.lockErr,
	}
	for userID, balance := range state.balances {
		copied.balances[userID] = balance
	}
	for transactionID, transaction := range state.transactions {
		copied.transactions[transactionID] = transaction
	}
	return copied
}

func (state *stubState) GetBalance(_ context.Context, userID UserID) (Cents, error) {
	balance, ok := state.balances[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return balance, nil
}

func (state *stubState) LockBalance(ctx context.Context, userID UserID) (Cents, error) {
	if state.lockErr != nil {
		return 0, state.lockErr
	}
	return state.GetBalance(ctx, userID)
}

func (state *stubState) FindEntry(_ context.Context, userID UserID, ref TransactionRef) (Entry, bool, error) {
	for _, entry := range state.entries {
		if entry.UserID == userID && entry.Ref == ref {
			return entry, true, nil
		}
	}
	return Entry{}, false, nil
}

func (state *stubState) AppendEntry(_ context.Context, entry Entry) error {
	if _, ok := state.balances[entry.UserID]; !ok {
		return ErrNotFound
	}
	for _, existing := range state.entries {
		if existing.UserID == entry.UserID && existing.Ref == entry.Ref {
			return ErrDuplicateReference
		}
	}
	state.entries = append(state.entries, entry)
	state.balances[entry.UserID] = entry.BalanceAfter
	return nil
}

func (state *stubState) CreateTransaction(_ context.Context, transaction Transaction) error {
	if _, exists := state.transactions[transaction.ID]; exists {
		return fmt.Errorf("duplicate id %s", transaction.ID)
	}
	if !transaction.Reference.IsZero() {
		for _, existing := range state.transactions {
			if existing.Reference == transaction.Reference {
				return ErrDuplicateReference
			}
		}
	}
	state.transactions[transaction.ID] = transaction
	state.created = append(state.created, transaction.ID)
	return nil
}

func (state *stubState) GetTransaction(_ context.Context, transactionID TransactionID) (Transaction, error) {
	transaction, ok := state.transactions[transactionID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return transaction, nil
}

func (state *stubState) FindTransactionByReference(_ context.Context, reference TransactionRef) (Transaction, bool, error) {
	for _, transaction := range state.transactions {
		if transaction.Reference == reference {
			return transaction, true, nil
		}
	}
	return Transaction{}, false, nil
}

func (state *stubState) RecordFailedVerification(_ context.Context, transactionID TransactionID) (int, error) {
	transaction, ok := state.transactions[transactionID]
	if !ok {
		return 0, ErrNotFound
	}
	if transaction.Status != StatusPending {
		return 0, ErrStatusConflict
	}
	transaction.VerifyAttempts++
	state.transactions[transactionID] = transaction
	return transaction.VerifyAttempts, nil
}

func (state *stubState) UpdateTransactionStatus(_ context.Context, transactionID TransactionID, from TransactionStatus, change TransactionChange) (Transaction, error) {
	transaction, ok := state.transactions[transactionID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if transaction.Status != from {
		return Transaction{}, ErrStatusConflict
	}
	at := change.At
	transaction.Status = change.To
	transaction.UpdatedAt = at
	if !change.ApprovedBy.IsZero() {
		transaction.ApprovedBy = change.ApprovedBy
	}
	if change.Reason != "" {
		transaction.Reason = change.Reason
	}
	switch change.To {
	case StatusVerified:
		transaction.VerifiedAt = &at
	case StatusCompleted, StatusFailed:
		transaction.CompletedAt = &at
	}
	state.transactions[transactionID] = transaction
	return transaction, nil
}

func (state *stubState) SumCompleted(_ context.Context, userID UserID) (Cents, Cents, error) {
	var credits, debits Cents
	for _, transaction := range state.transactions {
		if transaction.UserID != userID || transaction.Status != StatusCompleted {
			continue
		}
		if transaction.Type.Credits() {
			credits += transaction.Amount.Cents()
		} else {
			debits += transaction.Amount.Cents()
		}
	}
	return credits, debits, nil
}

func (state *stubState) ListTransactions(_ context.Context, userID UserID, limit int) ([]Transaction, error) {
	var result []Transaction
	for index := len(state.created) - 1; index >= 0 && len(result) < limit; index-- {
		transaction := state.transactions[state.created[index]]
		if transaction.UserID == userID {
			result = append(result, transaction)
		}
	}
	return result, nil
}

func (state *stubState) ListEntries(_ context.Context, userID UserID, limit int) ([]Entry, error) {
	var result []Entry
	for index := len(state.entries) - 1; index >= 0 && len(result) < limit; index-- {
		if state.entries[index].UserID == userID {
			result = append(result, state.entries[index])
		}
	}
	return result, nil
}

// stubStore serializes transactions and rolls the state back when fn fails.
type stubStore struct {
	*stubState
	mutex sync.Mutex
}

func newStubStore(test *testing.T, balances map[uint64]Cents) *stubStore {
	test.Helper()
	state := &stubState{
		balances:     make(map[UserID]Cents, len(balances)),
		transactions: make(map[TransactionID]Transaction),
	}
	for raw, balance := range balances {
		state.balances[mustUserID(test, raw)] = balance
	}
	return &stubStore{stubState: state}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txRecords Records) error) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	snapshot := store.stubState.clone()
	if err := fn(ctx, store.stubState); err != nil {
		store.stubState = snapshot
		return err
	}
	return nil
}

func (store *stubStore) GetBalance(ctx context.Context, userID UserID) (Cents, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.stubState.GetBalance(ctx, userID)
}

func (store *stubStore) GetTransaction(ctx context.Context, transactionID TransactionID) (Transaction, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.stubState.GetTransaction(ctx, transactionID)
}

func (store *stubStore) ListTransactions(ctx context.Context, userID UserID, limit int) ([]Transaction, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.stubState.ListTransactions(ctx, userID, limit)
}

func (store *stubStore) ListEntries(ctx context.Context, userID UserID, limit int) ([]Entry, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.stubState.ListEntries(ctx, userID, limit)
}

func (store *stubStore) balance(test *testing.T, raw uint64) Cents {
	test.Helper()
	balance, err := store.GetBalance(context.Background(), mustUserID(test, raw))
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	return balance
}

func (store *stubStore) entryCount() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.stubState.entries)
}

func (store *stubStore) transaction(test *testing.T, transactionID TransactionID) Transaction {
	test.Helper()
	store.mutex.Lock()
	defer store.mutex.Unlock()
	transaction, ok := store.stubState.transactions[transactionID]
	if !ok {
		test.Fatalf("transaction %s not found", transactionID)
	}
	return transaction
}

func (store *stubStore) transactionCount() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.stubState.transactions)
}

var fixedNow = time.Date(2025, 4, 10, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time {
	return fixedNow
}

func sequentialIDs(prefix string) func() string {
	var (
		mutex   sync.Mutex
		counter int
	)
	return func() string {
		mutex.Lock()
		defer mutex.Unlock()
		counter++
		return fmt.Sprintf("%s-%03d", prefix, counter)
	}
}

func mustNewLedger(test *testing.T, store Store, options ...LedgerOption) *Ledger {
	test.Helper()
	defaults := []LedgerOption{
		WithIDGenerator(sequentialIDs("txn")),
		WithCodeGenerator(func() (string, error) { return "123456", nil }),
	}
	ledger, err := NewLedger(store, fixedClock, append(defaults, options...)...)
	if err != nil {
		test.Fatalf("new ledger: %v", err)
	}
	return ledger
}

func mustUserID(test *testing.T, raw uint64) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustRef(test *testing.T, raw string) TransactionRef {
	test.Helper()
	ref, err := NewTransactionRef(raw)
	if err != nil {
		test.Fatalf("ref: %v", err)
	}
	return ref
}

func mustAmount(test *testing.T, raw int64) PositiveCents {
	test.Helper()
	amount, err := NewPositiveCents(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return amount
}

func sortedRefs(entries []Entry) []string {
	refs := make([]string, 0, len(entries))
	for _, entry := range entries {
		refs = append(refs, entry.Ref.String())
	}
	sort.Strings(refs)
	return refs
}
