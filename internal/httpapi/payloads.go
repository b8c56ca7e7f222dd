package httpapi

import (
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/sweep"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
)

type createParkingRequest struct {
	SlotID uint64 `json:"slot_id" binding:"required"`
	Hours  int64  `json:"hours" binding:"required"`
}

type createServiceOrderRequest struct {
	ServiceID   uint64    `json:"service_id" binding:"required"`
	BookingTime time.Time `json:"booking_time" binding:"required"`
	Notes       string    `json:"notes"`
}

type initiateTopupRequest struct {
	Amount string `json:"amount" binding:"required"`
	Method string `json:"method"`
	Mobile string `json:"mobile"`
}

type verifyTopupRequest struct {
	Code string `json:"code" binding:"required"`
}

type rejectTopupRequest struct {
	Reason string `json:"reason"`
}

type slotPayload struct {
	ID   uint64 `json:"id"`
	Code string `json:"code"`
}

type parkingBookingPayload struct {
	ID                  uint64     `json:"id"`
	UserID              uint64     `json:"user_id"`
	SlotID              uint64     `json:"slot_id"`
	ParkingID           uint64     `json:"parking_id"`
	Status              string     `json:"status"`
	Hours               int64      `json:"hours"`
	TotalPriceCents     int64      `json:"total_price_cents"`
	ExtraChargeCents    int64      `json:"extra_charge_cents"`
	ExtraMinutes        int64      `json:"extra_minutes"`
	BilledMinutes       int64      `json:"billed_minutes"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             time.Time  `json:"end_time"`
	CheckoutRequestedAt *time.Time `json:"checkout_requested_at,omitempty"`
	ActualEndTime       *time.Time `json:"actual_end_time,omitempty"`
	CheckoutRequested   bool       `json:"checkout_requested"`
	CheckoutApproved    bool       `json:"checkout_approved"`
	TicketNumber        string     `json:"ticket_number,omitempty"`
}

type serviceOrderPayload struct {
	ID                    uint64     `json:"id"`
	UserID                uint64     `json:"user_id"`
	ServiceID             uint64     `json:"service_id"`
	Status                string     `json:"status"`
	PriceCents            int64      `json:"price_cents"`
	Notes                 string     `json:"notes,omitempty"`
	BookingTime           time.Time  `json:"booking_time"`
	ScheduledInProgressAt *time.Time `json:"scheduled_in_progress_at,omitempty"`
	ScheduledCompletedAt  *time.Time `json:"scheduled_completed_at,omitempty"`
	SlipNumber            string     `json:"slip_number,omitempty"`
	InvoiceNumber         string     `json:"invoice_number,omitempty"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty"`
}

// transactionPayload never carries the verification code.
type transactionPayload struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AmountCents int64           `json:"amount_cents"`
	Amount      string          `json:"amount"`
	Status      string          `json:"status"`
	Method      string          `json:"method,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	VerifiedAt  *time.Time      `json:"verified_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

type walletPayload struct {
	UserID       uint64               `json:"user_id"`
	BalanceCents int64                `json:"balance_cents"`
	Balance      string               `json:"balance"`
	Transactions []transactionPayload `json:"transactions"`
}

type reconciliationPayload struct {
	UserID        uint64 `json:"user_id"`
	BalanceCents  int64  `json:"balance_cents"`
	CreditsCents  int64  `json:"credits_cents"`
	DebitsCents   int64  `json:"debits_cents"`
	ExpectedCents int64  `json:"expected_cents"`
	Consistent    bool   `json:"consistent"`
}

type sweepPayload struct {
	Expired   int      `json:"expired"`
	Started   int      `json:"started"`
	Completed int      `json:"completed"`
	Skipped   int      `json:"skipped"`
	Failures  []string `json:"failures"`
}

func newSlotPayloads(slots []booking.Slot) []slotPayload {
	payloads := make([]slotPayload, 0, len(slots))
	for _, slot := range slots {
		payloads = append(payloads, slotPayload{ID: uint64(slot.ID), Code: slot.Code})
	}
	return payloads
}

func newParkingBookingPayload(parkingBooking booking.ParkingBooking) parkingBookingPayload {
	return parkingBookingPayload{
		ID:                  uint64(parkingBooking.ID),
		UserID:              parkingBooking.UserID.Uint64(),
		SlotID:              uint64(parkingBooking.SlotID),
		ParkingID:           uint64(parkingBooking.ParkingID),
		Status:              parkingBooking.Status.String(),
		Hours:               parkingBooking.Hours,
		TotalPriceCents:     parkingBooking.TotalPriceCents,
		ExtraChargeCents:    parkingBooking.ExtraChargeCents,
		ExtraMinutes:        parkingBooking.ExtraMinutes,
		BilledMinutes:       parkingBooking.BilledMinutes,
		StartTime:           parkingBooking.StartTime,
		EndTime:             parkingBooking.EndTime,
		CheckoutRequestedAt: parkingBooking.CheckoutRequestedAt,
		ActualEndTime:       parkingBooking.ActualEndTime,
		CheckoutRequested:   parkingBooking.CheckoutRequested,
		CheckoutApproved:    parkingBooking.CheckoutApproved,
		TicketNumber:        parkingBooking.TicketNumber,
	}
}

func newServiceOrderPayload(order booking.ServiceOrder) serviceOrderPayload {
	return serviceOrderPayload{
		ID:                    uint64(order.ID),
		UserID:                order.UserID.Uint64(),
		ServiceID:             uint64(order.ServiceID),
		Status:                order.Status.String(),
		PriceCents:            order.PriceCents,
		Notes:                 order.Notes,
		BookingTime:           order.BookingTime,
		ScheduledInProgressAt: order.ScheduledInProgressAt,
		ScheduledCompletedAt:  order.ScheduledCompletedAt,
		SlipNumber:            order.SlipNumber,
		InvoiceNumber:         order.InvoiceNumber,
		StartedAt:             order.StartedAt,
		CompletedAt:           order.CompletedAt,
		CancelledAt:           order.CancelledAt,
	}
}

func newTransactionPayload(transaction wallet.Transaction) transactionPayload {
	return transactionPayload{
		ID:          transaction.ID.String(),
		Type:        transaction.Type.String(),
		AmountCents: transaction.Amount.Cents().Int64(),
		Amount:      transaction.Amount.String(),
		Status:      transaction.Status.String(),
		Method:      transaction.Method,
		Reason:      transaction.Reason,
		Reference:   transaction.Reference.String(),
		Metadata:    json.RawMessage(transaction.Metadata.String()),
		CreatedAt:   transaction.CreatedAt,
		VerifiedAt:  transaction.VerifiedAt,
		CompletedAt: transaction.CompletedAt,
	}
}

func newSweepPayload(report sweep.Report) sweepPayload {
	failures := make([]string, 0, len(report.Failures))
	for _, failure := range report.Failures {
		failures = append(failures, failure.Error())
	}
	return sweepPayload{
		Expired:   report.Expired,
		Started:   report.Started,
		Completed: report.Completed,
		Skipped:   report.Skipped,
		Failures:  failures,
	}
}
