// Package booking drives parking reservations and service orders through their
// lifecycles. One generic engine executes a per-kind transition table; guards and
// side effects (slot reservation, payments, document numbers) are looked up from
// per-kind hook tables and run inside the transition's transaction.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/settlement"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
)

// EventCreate labels creation in transition logs. It is not a table event.
const EventCreate Event = "create"

// Actor is whoever asked for a transition. The zero value is the system clock.
type Actor struct {
	UserID wallet.UserID
	Staff  bool
}

// Customer returns an actor restricted to their own bookings.
func Customer(userID wallet.UserID) Actor {
	return Actor{UserID: userID}
}

// StaffMember returns an actor allowed to act on any booking.
func StaffMember(userID wallet.UserID) Actor {
	return Actor{UserID: userID, Staff: true}
}

func (actor Actor) request(id uint64, event Event, now time.Time) request {
	input := request{id: id, event: event, actor: actor.UserID, now: now}
	if actor.Staff {
		input.handler = actor.UserID
	} else {
		input.owner = actor.UserID
	}
	return input
}

// Service is the booking state machine over a Store.
type Service struct {
	store          Store
	payments       Payments
	calculator     settlement.Calculator
	nowFn          func() time.Time
	notifier       notice.Notifier
	notifyFailures notice.FailureLogger
	logger         TransitionLogger
	parking        machine[ParkingBooking, ParkingChange]
	orders         machine[ServiceOrder, ServiceChange]
}

// NewService wires a Service.
func NewService(store Store, payments Payments, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if payments == nil {
		return nil, fmt.Errorf("%w: payments dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, payments: payments, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	service.parking = service.parkingMachine()
	service.orders = service.serviceMachine()
	return service, nil
}

// ParkingBooking returns a parking booking by id.
func (service *Service) ParkingBooking(ctx context.Context, bookingID ParkingBookingID) (ParkingBooking, error) {
	return service.store.GetParkingBooking(ctx, bookingID)
}

// ServiceOrder returns a service order by id.
func (service *Service) ServiceOrder(ctx context.Context, orderID ServiceOrderID) (ServiceOrder, error) {
	return service.store.GetServiceOrder(ctx, orderID)
}

// AvailableSlots lists the free slots of a parking lot. The count is derived from slot flags.
func (service *Service) AvailableSlots(ctx context.Context, parkingID ParkingID) ([]Slot, error) {
	if _, err := service.store.GetParking(ctx, parkingID); err != nil {
		return nil, err
	}
	return service.store.ListAvailableSlots(ctx, parkingID)
}

func (service *Service) now() time.Time {
	return service.nowFn().UTC()
}

func (service *Service) dispatch(ctx context.Context, notices []notice.Notice) {
	for _, message := range notices {
		notice.Dispatch(ctx, service.notifier, service.notifyFailures, message)
	}
}

// runTransition fires one event in its own transaction, logs the attempt and
// dispatches notices once the transaction has committed.
func runTransition[T any, C any](ctx context.Context, service *Service, engine machine[T, C], input request) (T, error) {
	var outcome firing[T]
	transitionError := service.store.WithTx(ctx, func(ctx context.Context, txRecords Records) error {
		fired, err := engine.fire(ctx, txRecords, input)
		outcome = fired
		return err
	})
	service.logTransition(ctx, TransitionLog{
		Kind:      engine.kind,
		BookingID: input.id,
		Event:     input.event,
		From:      outcome.from,
		To:        outcome.to,
		Actor:     input.actor,
		Error:     transitionError,
	})
	if transitionError != nil {
		var zero T
		return zero, transitionError
	}
	service.dispatch(ctx, outcome.notices)
	return outcome.after, nil
}

// paymentError maps wallet funding failures onto ErrPaymentFailed.
func paymentError(err error) error {
	if errors.Is(err, wallet.ErrInsufficientFunds) {
		return fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}
	return err
}

// refundPayment returns the completed payment recorded under paymentRef, if any.
func (service *Service) refundPayment(ctx context.Context, records Records, userID wallet.UserID, paymentRef wallet.TransactionRef, refundRef wallet.TransactionRef, reason string) error {
	payment, found, err := records.FindTransactionByReference(ctx, paymentRef)
	if err != nil {
		return err
	}
	if !found || payment.Status != wallet.StatusCompleted || payment.Type != wallet.TransactionPayment {
		return nil
	}
	metadata := wallet.MetadataFrom(map[string]string{"payment_reference": paymentRef.String()})
	_, err = service.payments.RefundWithin(ctx, records, userID, payment.Amount, reason, refundRef, metadata)
	if errors.Is(err, wallet.ErrAlreadyProcessed) {
		return nil
	}
	return err
}

func handlerPointer(handler wallet.UserID) *wallet.UserID {
	if handler.IsZero() {
		return nil
	}
	return &handler
}

func timePointer(value time.Time) *time.Time {
	return &value
}
