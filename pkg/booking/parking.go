package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
	"github.com/shopspring/decimal"
)

// MaxParkingHours caps the length of one parking booking.
const MaxParkingHours = 24 * 31

var maxCents = decimal.NewFromInt(math.MaxInt64)

type parkingStep = step[ParkingBooking, ParkingChange]

func (service *Service) parkingMachine() machine[ParkingBooking, ParkingChange] {
	return machine[ParkingBooking, ParkingChange]{
		kind:        KindParking,
		transitions: parkingTransitions,
		hooks: map[Event]hook[ParkingBooking, ParkingChange]{
			EventConfirm:         {guard: reserveSlot},
			EventRequestCheckout: {guard: service.quoteCheckout},
			EventPayCheckout:     {guard: service.payCheckout},
			EventComplete:        {guard: approveCheckout, effect: releaseSlotWithTicket},
			EventReject:          {guard: stampActualEnd},
			EventCancel:          {effect: service.refundParking},
			EventExpire:          {guard: expireDue, effect: releaseSlot},
		},
		load: func(ctx context.Context, records Records, id uint64) (ParkingBooking, error) {
			return records.LockParkingBooking(ctx, ParkingBookingID(id))
		},
		status: func(booking ParkingBooking) Status { return booking.Status },
		owner:  func(booking ParkingBooking) wallet.UserID { return booking.UserID },
		begin: func(to Status, now time.Time, handler wallet.UserID) ParkingChange {
			return ParkingChange{To: to, At: now, HandledBy: handlerPointer(handler)}
		},
		persist: func(ctx context.Context, records Records, id uint64, from Status, change ParkingChange) (ParkingBooking, error) {
			return records.ApplyParkingChange(ctx, ParkingBookingID(id), from, change)
		},
	}
}

// CreateParkingBooking reserves slotID for hours starting now and charges the
// full price from the customer's wallet. The booking starts pending.
func (service *Service) CreateParkingBooking(ctx context.Context, userID wallet.UserID, slotID SlotID, hours int64) (ParkingBooking, error) {
	var created ParkingBooking
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txRecords Records) error {
		if userID.IsZero() {
			return fmt.Errorf("%w: missing user", ErrInvalidRequest)
		}
		if hours <= 0 || hours > MaxParkingHours {
			return fmt.Errorf("%w: hours must be between 1 and %d", ErrInvalidRequest, MaxParkingHours)
		}
		slot, err := txRecords.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if !slot.Available {
			return fmt.Errorf("%w: slot %s", ErrSlotUnavailable, slot.Code)
		}
		parking, err := txRecords.GetParking(ctx, slot.ParkingID)
		if err != nil {
			return err
		}
		totalPrice, err := parkingPrice(hours, parking.PricePerHourCents)
		if err != nil {
			return err
		}
		now := service.now()
		booking, err := txRecords.CreateParkingBooking(ctx, ParkingBooking{
			UserID:          userID,
			SlotID:          slot.ID,
			ParkingID:       parking.ID,
			Status:          StatusPending,
			Hours:           hours,
			TotalPriceCents: totalPrice,
			StartTime:       now,
			EndTime:         now.Add(time.Duration(hours) * time.Hour),
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			return err
		}
		if booking.TotalPriceCents > 0 {
			amount, err := wallet.NewPositiveCents(booking.TotalPriceCents)
			if err != nil {
				return err
			}
			metadata := wallet.MetadataFrom(map[string]string{
				"booking_kind": KindParking.String(),
				"booking_id":   strconv.FormatUint(uint64(booking.ID), 10),
				"slot":         slot.Code,
			})
			if _, err := service.payments.ChargeWithin(ctx, txRecords, userID, amount, "parking booking", ParkingPaymentRef(booking.ID, refSuffixPayment), metadata); err != nil {
				return paymentError(err)
			}
		}
		created = booking
		return nil
	})
	service.logTransition(ctx, TransitionLog{
		Kind:      KindParking,
		BookingID: uint64(created.ID),
		Event:     EventCreate,
		To:        StatusPending,
		Actor:     userID,
		Error:     operationError,
	})
	if operationError != nil {
		return ParkingBooking{}, operationError
	}
	return created, nil
}

func parkingPrice(hours int64, pricePerHourCents int64) (int64, error) {
	if pricePerHourCents < 0 {
		return 0, fmt.Errorf("%w: negative hourly price", ErrInvalidRequest)
	}
	total := decimal.NewFromInt(hours).Mul(decimal.NewFromInt(pricePerHourCents))
	if total.GreaterThan(maxCents) {
		return 0, fmt.Errorf("%w: price exceeds the wallet range", ErrInvalidRequest)
	}
	return total.IntPart(), nil
}

// ConfirmParkingBooking reserves the booking's slot.
func (service *Service) ConfirmParkingBooking(ctx context.Context, bookingID ParkingBookingID, staffID wallet.UserID) (ParkingBooking, error) {
	return runTransition(ctx, service, service.parking, StaffMember(staffID).request(uint64(bookingID), EventConfirm, service.now()))
}

// ActivateParkingBooking checks the customer in.
func (service *Service) ActivateParkingBooking(ctx context.Context, bookingID ParkingBookingID, staffID wallet.UserID) (ParkingBooking, error) {
	return runTransition(ctx, service, service.parking, StaffMember(staffID).request(uint64(bookingID), EventActivate, service.now()))
}

// RequestCheckout stamps the checkout time and stores the overrun quote. No money moves.
func (service *Service) RequestCheckout(ctx context.Context, bookingID ParkingBookingID, userID wallet.UserID) (ParkingBooking, error) {
	return runTransition(ctx, service, service.parking, Customer(userID).request(uint64(bookingID), EventRequestCheckout, service.now()))
}

// PayCheckout charges the stored overrun, if any.
func (service *Service) PayCheckout(ctx context.Context, bookingID ParkingBookingID, userID wallet.UserID) (ParkingBooking, error) {
	return runTransition(ctx, service, service.parking, Customer(userID).request(uint64(bookingID), EventPayCheckout, service.now()))
}

// ApproveCheckout completes the booking, frees the slot and mints the ticket.
func (service *Service) ApproveCheckout(ctx context.Context, bookingID ParkingBookingID, staffID wallet.UserID) (ParkingBooking, error) {
	return runTransition(ctx, service, service.parking, StaffMember(staffID).request(uint64(bookingID), EventComplete, service.now()))
}

// RejectCheckout rejects the checkout request.
func (service *Service) RejectCheckout(ctx context.Context, bookingID ParkingBookingID, staffID wallet.UserID) (ParkingBooking, error) {
	return runTransition(ctx, service, service.parking, StaffMember(staffID).request(uint64(bookingID), EventReject, service.now()))
}

// CancelParkingBooking cancels a pending booking and refunds its payment.
func (service *Service) CancelParkingBooking(ctx context.Context, bookingID ParkingBookingID, actor Actor) (ParkingBooking, error) {
	return runTransition(ctx, service, service.parking, actor.request(uint64(bookingID), EventCancel, service.now()))
}

// ExpireParkingBooking completes a confirmed booking whose end time has passed.
func (service *Service) ExpireParkingBooking(ctx context.Context, bookingID ParkingBookingID) (ParkingBooking, error) {
	return runTransition(ctx, service, service.parking, Actor{}.request(uint64(bookingID), EventExpire, service.now()))
}

func reserveSlot(ctx context.Context, current *parkingStep) error {
	slot, err := current.records.LockSlot(ctx, current.current.SlotID)
	if err != nil {
		return err
	}
	if !slot.Available {
		return fmt.Errorf("%w: slot %s", ErrSlotUnavailable, slot.Code)
	}
	err = current.records.SetSlotAvailability(ctx, slot.ID, true, false)
	if errors.Is(err, ErrStatusConflict) {
		return fmt.Errorf("%w: slot %s", ErrSlotUnavailable, slot.Code)
	}
	return err
}

func (service *Service) quoteCheckout(ctx context.Context, current *parkingStep) error {
	parking, err := current.records.GetParking(ctx, current.current.ParkingID)
	if err != nil {
		return err
	}
	quote, err := service.calculator.Quote(current.current.EndTime, current.now, parking.PricePerHourCents)
	if err != nil {
		return err
	}
	requested := true
	current.change.CheckoutRequested = &requested
	current.change.CheckoutRequestedAt = timePointer(current.now)
	current.change.ExtraMinutes = &quote.ExtraMinutes
	current.change.BilledMinutes = &quote.BilledMinutes
	current.change.ExtraChargeCents = &quote.ChargeCents
	return nil
}

func (service *Service) payCheckout(ctx context.Context, current *parkingStep) error {
	booking := current.current
	if booking.ExtraChargeCents <= 0 {
		return nil
	}
	amount, err := wallet.NewPositiveCents(booking.ExtraChargeCents)
	if err != nil {
		return err
	}
	metadata := wallet.MetadataFrom(map[string]string{
		"booking_kind":   KindParking.String(),
		"booking_id":     strconv.FormatUint(uint64(booking.ID), 10),
		"billed_minutes": strconv.FormatInt(booking.BilledMinutes, 10),
	})
	_, err = service.payments.ChargeWithin(ctx, current.records, booking.UserID, amount, "parking overrun", ParkingPaymentRef(booking.ID, refSuffixExtra), metadata)
	if errors.Is(err, wallet.ErrAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return paymentError(err)
	}
	return nil
}

func approveCheckout(_ context.Context, current *parkingStep) error {
	booking := current.current
	if current.from == StatusCheckoutRequested && booking.ExtraChargeCents > 0 {
		return fmt.Errorf("%w: %d cents outstanding", ErrPaymentRequired, booking.ExtraChargeCents)
	}
	approved := true
	current.change.CheckoutApproved = &approved
	current.change.ActualEndTime = timePointer(current.now)
	if booking.TicketNumber == "" {
		ticket := FormatNumber(prefixTicket, current.now, uint64(booking.ID))
		current.change.TicketNumber = &ticket
	}
	return nil
}

func releaseSlotWithTicket(ctx context.Context, current *parkingStep) error {
	if err := releaseSlot(ctx, current); err != nil {
		return err
	}
	booking := current.current
	current.emit(notice.Notice{
		Kind:        notice.KindCheckoutTicket,
		UserID:      booking.UserID.Uint64(),
		Subject:     "Parking checkout ticket " + booking.TicketNumber,
		Number:      booking.TicketNumber,
		AmountCents: booking.TotalPriceCents + booking.ExtraChargeCents,
		Details: map[string]string{
			"booking_id":     strconv.FormatUint(uint64(booking.ID), 10),
			"extra_minutes":  strconv.FormatInt(booking.ExtraMinutes, 10),
			"billed_minutes": strconv.FormatInt(booking.BilledMinutes, 10),
		},
	})
	return nil
}

func stampActualEnd(_ context.Context, current *parkingStep) error {
	current.change.ActualEndTime = timePointer(current.now)
	return nil
}

func (service *Service) refundParking(ctx context.Context, current *parkingStep) error {
	booking := current.current
	return service.refundPayment(ctx, current.records, booking.UserID,
		ParkingPaymentRef(booking.ID, refSuffixPayment),
		ParkingPaymentRef(booking.ID, refSuffixRefund),
		"parking booking cancelled")
}

func expireDue(_ context.Context, current *parkingStep) error {
	if !current.current.EndTime.Before(current.now) {
		return fmt.Errorf("%w: parking %d ends at %s", ErrInvalidTransition, current.current.ID, current.current.EndTime.Format(time.RFC3339))
	}
	current.change.ActualEndTime = timePointer(current.now)
	return nil
}

// releaseSlot frees the booking's slot. A slot that is already free stays free.
func releaseSlot(ctx context.Context, current *parkingStep) error {
	err := current.records.SetSlotAvailability(ctx, current.current.SlotID, false, true)
	if errors.Is(err, ErrStatusConflict) {
		return nil
	}
	return err
}
