package booking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
)

type serviceStep = step[ServiceOrder, ServiceChange]

func (service *Service) serviceMachine() machine[ServiceOrder, ServiceChange] {
	return machine[ServiceOrder, ServiceChange]{
		kind:        KindService,
		transitions: serviceTransitions,
		hooks: map[Event]hook[ServiceOrder, ServiceChange]{
			EventConfirm:  {guard: confirmPaidOrder, effect: announceSlip},
			EventStart:    {guard: stampStarted},
			EventComplete: {guard: mintInvoice, effect: announceCompletion},
			EventCancel:   {guard: stampCancelled, effect: service.refundOrder},
		},
		load: func(ctx context.Context, records Records, id uint64) (ServiceOrder, error) {
			return records.LockServiceOrder(ctx, ServiceOrderID(id))
		},
		status: func(order ServiceOrder) Status { return order.Status },
		owner:  func(order ServiceOrder) wallet.UserID { return order.UserID },
		begin: func(to Status, now time.Time, handler wallet.UserID) ServiceChange {
			return ServiceChange{To: to, At: now, HandledBy: handlerPointer(handler)}
		},
		persist: func(ctx context.Context, records Records, id uint64, from Status, change ServiceChange) (ServiceOrder, error) {
			return records.ApplyServiceChange(ctx, ServiceOrderID(id), from, change)
		},
	}
}

// CreateServiceOrder books serviceID at bookingTime, charges its price and
// confirms the order, all in one transaction.
func (service *Service) CreateServiceOrder(ctx context.Context, userID wallet.UserID, serviceID ServiceID, bookingTime time.Time, notes string) (ServiceOrder, error) {
	var outcome firing[ServiceOrder]
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txRecords Records) error {
		if userID.IsZero() {
			return fmt.Errorf("%w: missing user", ErrInvalidRequest)
		}
		if bookingTime.IsZero() {
			return fmt.Errorf("%w: missing booking time", ErrInvalidRequest)
		}
		item, err := txRecords.GetService(ctx, serviceID)
		if err != nil {
			return err
		}
		now := service.now()
		order, err := txRecords.CreateServiceOrder(ctx, ServiceOrder{
			UserID:      userID,
			ServiceID:   item.ID,
			Status:      StatusPending,
			PriceCents:  item.PriceCents,
			Notes:       strings.TrimSpace(notes),
			BookingTime: bookingTime.UTC(),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
		if order.PriceCents > 0 {
			amount, err := wallet.NewPositiveCents(order.PriceCents)
			if err != nil {
				return err
			}
			metadata := wallet.MetadataFrom(map[string]string{
				"booking_kind": KindService.String(),
				"booking_id":   strconv.FormatUint(uint64(order.ID), 10),
				"service":      item.Name,
			})
			if _, err := service.payments.ChargeWithin(ctx, txRecords, userID, amount, "service order", ServicePaymentRef(order.ID, refSuffixPayment), metadata); err != nil {
				return paymentError(err)
			}
		}
		fired, err := service.orders.fire(ctx, txRecords, Actor{}.request(uint64(order.ID), EventConfirm, now))
		outcome = fired
		return err
	})
	service.logTransition(ctx, TransitionLog{
		Kind:      KindService,
		BookingID: uint64(outcome.after.ID),
		Event:     EventCreate,
		To:        outcome.after.Status,
		Actor:     userID,
		Error:     operationError,
	})
	if operationError != nil {
		return ServiceOrder{}, operationError
	}
	service.dispatch(ctx, outcome.notices)
	return outcome.after, nil
}

// ConfirmServiceOrder confirms a pending order whose payment is recorded.
func (service *Service) ConfirmServiceOrder(ctx context.Context, orderID ServiceOrderID, staffID wallet.UserID) (ServiceOrder, error) {
	return runTransition(ctx, service, service.orders, StaffMember(staffID).request(uint64(orderID), EventConfirm, service.now()))
}

// StartServiceOrder moves a confirmed order in progress. A zero staffID means the scheduler.
func (service *Service) StartServiceOrder(ctx context.Context, orderID ServiceOrderID, staffID wallet.UserID) (ServiceOrder, error) {
	return runTransition(ctx, service, service.orders, StaffMember(staffID).request(uint64(orderID), EventStart, service.now()))
}

// CompleteServiceOrder completes an order and mints its invoice. A zero staffID means the scheduler.
func (service *Service) CompleteServiceOrder(ctx context.Context, orderID ServiceOrderID, staffID wallet.UserID) (ServiceOrder, error) {
	return runTransition(ctx, service, service.orders, StaffMember(staffID).request(uint64(orderID), EventComplete, service.now()))
}

// CancelServiceOrder cancels an order and refunds its payment.
func (service *Service) CancelServiceOrder(ctx context.Context, orderID ServiceOrderID, actor Actor) (ServiceOrder, error) {
	return runTransition(ctx, service, service.orders, actor.request(uint64(orderID), EventCancel, service.now()))
}

func confirmPaidOrder(ctx context.Context, current *serviceStep) error {
	order := current.current
	if order.PriceCents > 0 {
		payment, found, err := current.records.FindTransactionByReference(ctx, ServicePaymentRef(order.ID, refSuffixPayment))
		if err != nil {
			return err
		}
		if !found || payment.Status != wallet.StatusCompleted {
			return fmt.Errorf("%w: service order %d has no recorded payment", ErrPaymentRequired, order.ID)
		}
	}
	item, err := current.records.GetService(ctx, order.ServiceID)
	if err != nil {
		return err
	}
	current.change.ScheduledInProgressAt = timePointer(order.BookingTime)
	current.change.ScheduledCompletedAt = timePointer(order.BookingTime.Add(time.Duration(item.DurationMinutes) * time.Minute))
	if order.SlipNumber == "" {
		slip := FormatNumber(prefixSlip, current.now, uint64(order.ID))
		current.change.SlipNumber = &slip
	}
	return nil
}

func announceSlip(_ context.Context, current *serviceStep) error {
	order := current.current
	current.emit(notice.Notice{
		Kind:        notice.KindBookingConfirmed,
		UserID:      order.UserID.Uint64(),
		Subject:     "Service booking confirmed " + order.SlipNumber,
		Number:      order.SlipNumber,
		AmountCents: order.PriceCents,
		Details: map[string]string{
			"order_id":     strconv.FormatUint(uint64(order.ID), 10),
			"booking_time": order.BookingTime.Format(time.RFC3339),
		},
	})
	return nil
}

func stampStarted(_ context.Context, current *serviceStep) error {
	current.change.StartedAt = timePointer(current.now)
	return nil
}

func mintInvoice(_ context.Context, current *serviceStep) error {
	current.change.CompletedAt = timePointer(current.now)
	if current.current.InvoiceNumber == "" {
		invoice := FormatNumber(prefixInvoice, current.now, uint64(current.current.ID))
		current.change.InvoiceNumber = &invoice
	}
	return nil
}

func announceCompletion(_ context.Context, current *serviceStep) error {
	order := current.current
	current.emit(notice.Notice{
		Kind:        notice.KindServiceCompleted,
		UserID:      order.UserID.Uint64(),
		Subject:     "Service completed " + order.InvoiceNumber,
		Number:      order.InvoiceNumber,
		AmountCents: order.PriceCents,
		Details: map[string]string{
			"order_id": strconv.FormatUint(uint64(order.ID), 10),
			"slip":     order.SlipNumber,
		},
	})
	return nil
}

func stampCancelled(_ context.Context, current *serviceStep) error {
	current.change.CancelledAt = timePointer(current.now)
	return nil
}

func (service *Service) refundOrder(ctx context.Context, current *serviceStep) error {
	order := current.current
	return service.refundPayment(ctx, current.records, order.UserID,
		ServicePaymentRef(order.ID, refSuffixPayment),
		ServicePaymentRef(order.ID, refSuffixRefund),
		"service order cancelled")
}
