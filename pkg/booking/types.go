package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
)

// ParkingID identifies a parking lot.
type ParkingID uint64

// SlotID identifies a parking slot.
type SlotID uint64

// ServiceID identifies a catalog service such as a wash.
type ServiceID uint64

// ParkingBookingID identifies a parking reservation.
type ParkingBookingID uint64

// ServiceOrderID identifies a service order.
type ServiceOrderID uint64

// Parking is a catalog row read by the engine.
type Parking struct {
	ID                ParkingID
	Name              string
	PricePerHourCents int64
}

// Slot is a single bookable parking space.
type Slot struct {
	ID        SlotID
	ParkingID ParkingID
	Code      string
	Available bool
}

// ServiceItem is a catalog service read by the engine.
type ServiceItem struct {
	ID              ServiceID
	Name            string
	PriceCents      int64
	DurationMinutes int64
}

// ParkingBooking is a reservation of one slot for a number of hours.
type ParkingBooking struct {
	ID                  ParkingBookingID
	UserID              wallet.UserID
	SlotID              SlotID
	ParkingID           ParkingID
	Status              Status
	Hours               int64
	TotalPriceCents     int64
	ExtraChargeCents    int64
	ExtraMinutes        int64
	BilledMinutes       int64
	StartTime           time.Time
	EndTime             time.Time
	CheckoutRequestedAt *time.Time
	ActualEndTime       *time.Time
	CheckoutRequested   bool
	CheckoutApproved    bool
	TicketNumber        string
	HandledBy           wallet.UserID
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ServiceOrder is a booked appointment for a catalog service.
type ServiceOrder struct {
	ID                    ServiceOrderID
	UserID                wallet.UserID
	ServiceID             ServiceID
	Status                Status
	PriceCents            int64
	Notes                 string
	BookingTime           time.Time
	ScheduledInProgressAt *time.Time
	ScheduledCompletedAt  *time.Time
	SlipNumber            string
	InvoiceNumber         string
	StartedAt             *time.Time
	CompletedAt           *time.Time
	CancelledAt           *time.Time
	HandledBy             wallet.UserID
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ParkingChange is the column set written together with a parking status change.
// Nil fields are left untouched.
type ParkingChange struct {
	To                  Status
	At                  time.Time
	HandledBy           *wallet.UserID
	CheckoutRequestedAt *time.Time
	ActualEndTime       *time.Time
	ExtraMinutes        *int64
	BilledMinutes       *int64
	ExtraChargeCents    *int64
	CheckoutRequested   *bool
	CheckoutApproved    *bool
	TicketNumber        *string
}

// ServiceChange is the column set written together with a service order status change.
// Nil fields are left untouched.
type ServiceChange struct {
	To                    Status
	At                    time.Time
	HandledBy             *wallet.UserID
	ScheduledInProgressAt *time.Time
	ScheduledCompletedAt  *time.Time
	SlipNumber            *string
	InvoiceNumber         *string
	StartedAt             *time.Time
	CompletedAt           *time.Time
	CancelledAt           *time.Time
}

// Records is the row-level persistence used by booking transitions. It embeds the
// wallet records so payments join the transition's transaction.
type Records interface {
	wallet.Records
	GetParking(ctx context.Context, parkingID ParkingID) (Parking, error)
	GetSlot(ctx context.Context, slotID SlotID) (Slot, error)
	LockSlot(ctx context.Context, slotID SlotID) (Slot, error)
	SetSlotAvailability(ctx context.Context, slotID SlotID, from bool, to bool) error
	ListAvailableSlots(ctx context.Context, parkingID ParkingID) ([]Slot, error)
	GetService(ctx context.Context, serviceID ServiceID) (ServiceItem, error)
	CreateParkingBooking(ctx context.Context, booking ParkingBooking) (ParkingBooking, error)
	GetParkingBooking(ctx context.Context, bookingID ParkingBookingID) (ParkingBooking, error)
	LockParkingBooking(ctx context.Context, bookingID ParkingBookingID) (ParkingBooking, error)
	ApplyParkingChange(ctx context.Context, bookingID ParkingBookingID, from Status, change ParkingChange) (ParkingBooking, error)
	CreateServiceOrder(ctx context.Context, order ServiceOrder) (ServiceOrder, error)
	GetServiceOrder(ctx context.Context, orderID ServiceOrderID) (ServiceOrder, error)
	LockServiceOrder(ctx context.Context, orderID ServiceOrderID) (ServiceOrder, error)
	ApplyServiceChange(ctx context.Context, orderID ServiceOrderID, from Status, change ServiceChange) (ServiceOrder, error)
}

// Store is the persistence contract used by Service.
type Store interface {
	Records
	WithTx(ctx context.Context, fn func(ctx context.Context, txRecords Records) error) error
}

// Payments moves money inside an enclosing booking transaction.
type Payments interface {
	ChargeWithin(ctx context.Context, records wallet.Records, userID wallet.UserID, amount wallet.PositiveCents, reason string, reference wallet.TransactionRef, metadata wallet.MetadataJSON) (wallet.Transaction, error)
	RefundWithin(ctx context.Context, records wallet.Records, userID wallet.UserID, amount wallet.PositiveCents, reason string, reference wallet.TransactionRef, metadata wallet.MetadataJSON) (wallet.Transaction, error)
}

const (
	parkingRefPrefix = "parking-booking"
	serviceRefPrefix = "service-order"

	refSuffixPayment = "payment"
	refSuffixExtra   = "extra"
	refSuffixRefund  = "refund"
)

// ParkingPaymentRef is the wallet reference of a parking booking's payment leg.
func ParkingPaymentRef(bookingID ParkingBookingID, suffix string) wallet.TransactionRef {
	ref, _ := wallet.NewTransactionRef(fmt.Sprintf("%s:%d:%s", parkingRefPrefix, bookingID, suffix))
	return ref
}

// ServicePaymentRef is the wallet reference of a service order's payment leg.
func ServicePaymentRef(orderID ServiceOrderID, suffix string) wallet.TransactionRef {
	ref, _ := wallet.NewTransactionRef(fmt.Sprintf("%s:%d:%s", serviceRefPrefix, orderID, suffix))
	return ref
}
