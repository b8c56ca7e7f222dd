package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
)

type stubState struct {
	balances     map[wallet.UserID]wallet.Cents
	entries      []wallet.Entry
	transactions map[wallet.TransactionID]wallet.Transaction
	parkings     map[ParkingID]Parking
	slots        map[SlotID]Slot
	services     map[ServiceID]ServiceItem
	bookings     map[ParkingBookingID]ParkingBooking
	orders       map[ServiceOrderID]ServiceOrder
	nextBooking  ParkingBookingID
	nextOrder    ServiceOrderID
	conflictOnce bool
}

func (state *stubState) clone() *stubState {
	copied := &stubState{
		balances:     map[wallet.UserID]wallet.Cents{},
		entries:      append([]wallet.Entry(nil), state.entries...),
		transactions: map[wallet.TransactionID]wallet.Transaction{},
		parkings:     map[ParkingID]Parking{},
		slots:        map[SlotID]Slot{},
		services:     map[ServiceID]ServiceItem{},
		bookings:     map[ParkingBookingID]ParkingBooking{},
		orders:       map[ServiceOrderID]ServiceOrder{},
		nextBooking:  state.nextBooking,
		nextOrder:    state.nextOrder,
		conflictOnce: state.conflictOnce,
	}
	for key, value := range state.balances {
		copied.balances[key] = value
	}
	for key, value := range state.transactions {
		copied.transactions[key] = value
	}
	for key, value := range state.parkings {
		copied.parkings[key] = value
	}
	for key, value := range state.slots {
		copied.slots[key] = value
	}
	for key, value := range state.services {
		copied.services[key] = value
	}
	for key, value := range state.bookings {
		copied.bookings[key] = value
	}
	for key, value := range state.orders {
		copied.orders[key] = value
	}
	return copied
}

func (state *stubState) GetBalance(_ context.Context, userID wallet.UserID) (wallet.Cents, error) {
	balance, ok := state.balances[userID]
	if !ok {
		return 0, wallet.ErrNotFound
	}
	return balance, nil
}

func (state *stubState) LockBalance(ctx context.Context, userID wallet.UserID) (wallet.Cents, error) {
	return state.GetBalance(ctx, userID)
}

func (state *stubState) FindEntry(_ context.Context, userID wallet.UserID, ref wallet.TransactionRef) (wallet.Entry, bool, error) {
	for _, entry := range state.entries {
		if entry.UserID == userID && entry.Ref == ref {
			return entry, true, nil
		}
	}
	return wallet.Entry{}, false, nil
}

func (state *stubState) AppendEntry(_ context.Context, entry wallet.Entry) error {
	state.entries = append(state.entries, entry)
	state.balances[entry.UserID] = entry.BalanceAfter
	return nil
}

func (state *stubState) CreateTransaction(_ context.Context, transaction wallet.Transaction) error {
	for _, existing := range state.transactions {
		if !transaction.Reference.IsZero() && existing.Reference == transaction.Reference {
			return wallet.ErrDuplicateReference
		}
	}
	state.transactions[transaction.ID] = transaction
	return nil
}

func (state *stubState) GetTransaction(_ context.Context, transactionID wallet.TransactionID) (wallet.Transaction, error) {
	transaction, ok := state.transactions[transactionID]
	if !ok {
		return wallet.Transaction{}, wallet.ErrNotFound
	}
	return transaction, nil
}

func (state *stubState) FindTransactionByReference(_ context.Context, reference wallet.TransactionRef) (wallet.Transaction, bool, error) {
	for _, transaction := range state.transactions {
		if transaction.Reference == reference {
			return transaction, true, nil
		}
	}
	return wallet.Transaction{}, false, nil
}

func (state *stubState) UpdateTransactionStatus(context.Context, wallet.TransactionID, wallet.TransactionStatus, wallet.TransactionChange) (wallet.Transaction, error) {
	return wallet.Transaction{}, fmt.Errorf("not used by booking tests")
}

func (state *stubState) RecordFailedVerification(context.Context, wallet.TransactionID) (int, error) {
	return 0, fmt.Errorf("not used by booking tests")
}

func (state *stubState) SumCompleted(_ context.Context, userID wallet.UserID) (wallet.Cents, wallet.Cents, error) {
	var credits, debits wallet.Cents
	for _, transaction := range state.transactions {
		if transaction.UserID != userID || transaction.Status != wallet.StatusCompleted {
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

func (state *stubState) ListTransactions(context.Context, wallet.UserID, int) ([]wallet.Transaction, error) {
	return nil, nil
}

func (state *stubState) ListEntries(context.Context, wallet.UserID, int) ([]wallet.Entry, error) {
	return nil, nil
}

func (state *stubState) GetParking(_ context.Context, parkingID ParkingID) (Parking, error) {
	parking, ok := state.parkings[parkingID]
	if !ok {
		return Parking{}, ErrNotFound
	}
	return parking, nil
}

func (state *stubState) GetSlot(_ context.Context, slotID SlotID) (Slot, error) {
	slot, ok := state.slots[slotID]
	if !ok {
		return Slot{}, ErrNotFound
	}
	return slot, nil
}

func (state *stubState) LockSlot(ctx context.Context, slotID SlotID) (Slot, error) {
	return state.GetSlot(ctx, slotID)
}

func (state *stubState) SetSlotAvailability(_ context.Context, slotID SlotID, from bool, to bool) error {
	slot, ok := state.slots[slotID]
	if !ok {
		return ErrNotFound
	}
	if slot.Available != from {
		return ErrStatusConflict
	}
	slot.Available = to
	state.slots[slotID] = slot
	return nil
}

func (state *stubState) ListAvailableSlots(_ context.Context, parkingID ParkingID) ([]Slot, error) {
	var slots []Slot
	for id := SlotID(1); id <= SlotID(len(state.slots)); id++ {
		slot, ok := state.slots[id]
		if ok && slot.ParkingID == parkingID && slot.Available {
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

func (state *stubState) GetService(_ context.Context, serviceID ServiceID) (ServiceItem, error) {
	item, ok := state.services[serviceID]
	if !ok {
		return ServiceItem{}, ErrNotFound
	}
	return item, nil
}

func (state *stubState) CreateParkingBooking(_ context.Context, booking ParkingBooking) (ParkingBooking, error) {
	state.nextBooking++
	booking.ID = state.nextBooking
	state.bookings[booking.ID] = booking
	return booking, nil
}

func (state *stubState) GetParkingBooking(_ context.Context, bookingID ParkingBookingID) (ParkingBooking, error) {
	booking, ok := state.bookings[bookingID]
	if !ok {
		return ParkingBooking{}, ErrNotFound
	}
	return booking, nil
}

func (state *stubState) LockParkingBooking(ctx context.Context, bookingID ParkingBookingID) (ParkingBooking, error) {
	return state.GetParkingBooking(ctx, bookingID)
}

func (state *stubState) ApplyParkingChange(_ context.Context, bookingID ParkingBookingID, from Status, change ParkingChange) (ParkingBooking, error) {
	booking, ok := state.bookings[bookingID]
	if !ok {
		return ParkingBooking{}, ErrNotFound
	}
	if state.conflictOnce {
		state.conflictOnce = false
		booking.Status = change.To
		state.bookings[bookingID] = booking
		return ParkingBooking{}, ErrStatusConflict
	}
	if booking.Status != from {
		return ParkingBooking{}, ErrStatusConflict
	}
	booking.Status = change.To
	booking.UpdatedAt = change.At
	if change.HandledBy != nil {
		booking.HandledBy = *change.HandledBy
	}
	if change.CheckoutRequestedAt != nil {
		booking.CheckoutRequestedAt = change.CheckoutRequestedAt
	}
	if change.ActualEndTime != nil {
		booking.ActualEndTime = change.ActualEndTime
	}
	if change.ExtraMinutes != nil {
		booking.ExtraMinutes = *change.ExtraMinutes
	}
	if change.BilledMinutes != nil {
		booking.BilledMinutes = *change.BilledMinutes
	}
	if change.ExtraChargeCents != nil {
		booking.ExtraChargeCents = *change.ExtraChargeCents
	}
	if change.CheckoutRequested != nil {
		booking.CheckoutRequested = *change.CheckoutRequested
	}
	if change.CheckoutApproved != nil {
		booking.CheckoutApproved = *change.CheckoutApproved
	}
	if change.TicketNumber != nil {
		booking.TicketNumber = *change.TicketNumber
	}
	state.bookings[bookingID] = booking
	return booking, nil
}

func (state *stubState) CreateServiceOrder(_ context.Context, order ServiceOrder) (ServiceOrder, error) {
	state.nextOrder++
	order.ID = state.nextOrder
	state.orders[order.ID] = order
	return order, nil
}

func (state *stubState) GetServiceOrder(_ context.Context, orderID ServiceOrderID) (ServiceOrder, error) {
	order, ok := state.orders[orderID]
	if !ok {
		return ServiceOrder{}, ErrNotFound
	}
	return order, nil
}

func (state *stubState) LockServiceOrder(ctx context.Context, orderID ServiceOrderID) (ServiceOrder, error) {
	return state.GetServiceOrder(ctx, orderID)
}

func (state *stubState) ApplyServiceChange(_ context.Context, orderID ServiceOrderID, from Status, change ServiceChange) (ServiceOrder, error) {
	order, ok := state.orders[orderID]
	if !ok {
		return ServiceOrder{}, ErrNotFound
	}
	if order.Status != from {
		return ServiceOrder{}, ErrStatusConflict
	}
	order.Status = change.To
	order.UpdatedAt = change.At
	if change.HandledBy != nil {
		order.HandledBy = *change.HandledBy
	}
	if change.ScheduledInProgressAt != nil {
		order.ScheduledInProgressAt = change.ScheduledInProgressAt
	}
	if change.ScheduledCompletedAt != nil {
		order.ScheduledCompletedAt = change.ScheduledCompletedAt
	}
	if change.SlipNumber != nil {
		order.SlipNumber = *change.SlipNumber
	}
	if change.InvoiceNumber != nil {
		order.InvoiceNumber = *change.InvoiceNumber
	}
	if change.StartedAt != nil {
		order.StartedAt = change.StartedAt
	}
	if change.CompletedAt != nil {
		order.CompletedAt = change.CompletedAt
	}
	if change.CancelledAt != nil {
		order.CancelledAt = change.CancelledAt
	}
	state.orders[orderID] = order
	return order, nil
}

// stubStore serializes transactions and rolls the state back when fn fails.
type stubStore struct {
	*stubState
	mutex sync.Mutex
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

func (store *stubStore) read(fn func(state *stubState)) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	fn(store.stubState)
}

func (store *stubStore) balance(test *testing.T, raw uint64) wallet.Cents {
	test.Helper()
	var balance wallet.Cents
	store.read(func(state *stubState) { balance = state.balances[mustUserID(test, raw)] })
	return balance
}

func (store *stubStore) slotAvailable(slotID SlotID) bool {
	var available bool
	store.read(func(state *stubState) { available = state.slots[slotID].Available })
	return available
}

func (store *stubStore) transactionCount() int {
	var count int
	store.read(func(state *stubState) { count = len(state.transactions) })
	return count
}

func (store *stubStore) reconcile(test *testing.T, raw uint64) {
	test.Helper()
	store.read(func(state *stubState) {
		userID := mustUserID(test, raw)
		credits, debits, _ := state.SumCompleted(context.Background(), userID)
		if state.balances[userID] != credits-debits {
			test.Fatalf("balance %d does not match completed transactions %d", state.balances[userID], credits-debits)
		}
	})
}

// walletView exposes the stub as a wallet.Store so the real ledger can run on it.
type walletView struct {
	*stubStore
}

func (view walletView) WithTx(ctx context.Context, fn func(ctx context.Context, txRecords wallet.Records) error) error {
	return view.stubStore.WithTx(ctx, func(ctx context.Context, txRecords Records) error {
		return fn(ctx, txRecords)
	})
}

type recordingNotifier struct {
	mutex   sync.Mutex
	notices []notice.Notice
}

func (notifier *recordingNotifier) Notify(_ context.Context, message notice.Notice) error {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.notices = append(notifier.notices, message)
	return nil
}

func (notifier *recordingNotifier) kinds() []notice.Kind {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	kinds := make([]notice.Kind, 0, len(notifier.notices))
	for _, message := range notifier.notices {
		kinds = append(kinds, message.Kind)
	}
	return kinds
}

type recordingTransitions struct {
	mutex   sync.Mutex
	entries []TransitionLog
}

func (logger *recordingTransitions) LogTransition(_ context.Context, entry TransitionLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

// testClock is a settable clock shared by the ledger and the booking service.
type testClock struct {
	mutex sync.Mutex
	now   time.Time
}

func (clock *testClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.now
}

func (clock *testClock) Advance(duration time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.now = clock.now.Add(duration)
}

type fixture struct {
	store     *stubStore
	clock     *testClock
	ledger    *wallet.Ledger
	service   *Service
	notifier  *recordingNotifier
	logger    *recordingTransitions
	customer  wallet.UserID
	staff     wallet.UserID
	parkingID ParkingID
	washID    ServiceID
}

const (
	customerRaw   = 7
	otherRaw      = 8
	staffRaw      = 900
	hourlyRate    = 6000
	washPrice     = 1500
	washDuration  = 45
	startingFunds = 50000
)

func newFixture(test *testing.T) *fixture {
	test.Helper()
	state := &stubState{
		balances:     map[wallet.UserID]wallet.Cents{},
		transactions: map[wallet.TransactionID]wallet.Transaction{},
		parkings:     map[ParkingID]Parking{1: {ID: 1, Name: "North Lot", PricePerHourCents: hourlyRate}},
		slots: map[SlotID]Slot{
			1: {ID: 1, ParkingID: 1, Code: "A1", Available: true},
			2: {ID: 2, ParkingID: 1, Code: "A2", Available: true},
		},
		services: map[ServiceID]ServiceItem{1: {ID: 1, Name: "Full Wash", PriceCents: washPrice, DurationMinutes: washDuration}},
		bookings: map[ParkingBookingID]ParkingBooking{},
		orders:   map[ServiceOrderID]ServiceOrder{},
	}
	customer := mustUserID(test, customerRaw)
	state.balances[customer] = startingFunds
	state.balances[mustUserID(test, otherRaw)] = 0
	store := &stubStore{stubState: state}
	clock := &testClock{now: time.Date(2025, 4, 10, 10, 0, 0, 0, time.UTC)}
	ledger, err := wallet.NewLedger(walletView{store}, clock.Now, wallet.WithIDGenerator(sequentialIDs()))
	if err != nil {
		test.Fatalf("ledger: %v", err)
	}
	notifier := &recordingNotifier{}
	logger := &recordingTransitions{}
	service, err := NewService(store, ledger, clock.Now, WithNotifier(notifier, nil), WithTransitionLogger(logger))
	if err != nil {
		test.Fatalf("service: %v", err)
	}
	return &fixture{
		store:     store,
		clock:     clock,
		ledger:    ledger,
		service:   service,
		notifier:  notifier,
		logger:    logger,
		customer:  customer,
		staff:     mustUserID(test, staffRaw),
		parkingID: 1,
		washID:    1,
	}
}

func sequentialIDs() func() string {
	var (
		mutex   sync.Mutex
		counter int
	)
	return func() string {
		mutex.Lock()
		defer mutex.Unlock()
		counter++
		return fmt.Sprintf("txn-%04d", counter)
	}
}

func mustUserID(test *testing.T, raw uint64) wallet.UserID {
	test.Helper()
	userID, err := wallet.NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}
