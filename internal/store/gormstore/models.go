package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User mirrors the users table. Only AppendEntry writes wallet_balance_cents.
type User struct {
	ID                 uint64    `gorm:"primaryKey"`
	Name               string    `gorm:"not null"`
	Email              string    `gorm:"not null;index"`
	Mobile             string    `gorm:"not null;default:''"`
	WalletBalanceCents int64     `gorm:"not null;default:0;check:chk_users_wallet_balance,wallet_balance_cents >= 0"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// LedgerEntry mirrors the append-only ledger_entries table.
type LedgerEntry struct {
	ID                uint64    `gorm:"primaryKey"`
	UserID            uint64    `gorm:"not null;uniqueIndex:uniq_ledger_entries_user_ref,priority:1;index:idx_ledger_entries_user_created,priority:1"`
	TransactionRef    string    `gorm:"not null;uniqueIndex:uniq_ledger_entries_user_ref,priority:2"`
	DeltaCents        int64     `gorm:"not null"`
	BalanceAfterCents int64     `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null;index:idx_ledger_entries_user_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// WalletTransaction mirrors the wallet_transactions table.
type WalletTransaction struct {
	ID               string         `gorm:"type:uuid;primaryKey"`
	UserID           uint64         `gorm:"not null;index:idx_wallet_transactions_user_created,priority:1"`
	Type             string         `gorm:"not null"`
	AmountCents      int64          `gorm:"not null"`
	Status           string         `gorm:"not null;index"`
	Method           string         `gorm:"not null;default:''"`
	Mobile           string         `gorm:"not null;default:''"`
	VerificationCode string         `gorm:"not null;default:''"`
	VerifyAttempts   int            `gorm:"not null;default:0"`
	ApprovedBy       *uint64        `gorm:""`
	Reason           string         `gorm:"not null;default:''"`
	Reference        *string        `gorm:"uniqueIndex:uniq_wallet_transactions_reference"`
	Metadata         datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt        time.Time      `gorm:"not null;index:idx_wallet_transactions_user_created,priority:2"`
	UpdatedAt        time.Time      `gorm:"not null"`
	VerifiedAt       *time.Time     `gorm:""`
	CompletedAt      *time.Time     `gorm:""`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

func (transaction *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.ID == "" {
		transaction.ID = uuid.NewString()
	}
	return nil
}

// Parking mirrors the parkings catalog table.
type Parking struct {
	ID                uint64    `gorm:"primaryKey"`
	Name              string    `gorm:"not null"`
	PricePerHourCents int64     `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (Parking) TableName() string { return "parkings" }

// Slot mirrors the slots table. The available count of a parking is derived from these rows.
type Slot struct {
	ID        uint64 `gorm:"primaryKey"`
	ParkingID uint64 `gorm:"not null;index:idx_slots_parking_available,priority:1"`
	Code      string `gorm:"not null"`
	Available bool   `gorm:"not null;index:idx_slots_parking_available,priority:2"`
}

func (Slot) TableName() string { return "slots" }

// CatalogService mirrors the services catalog table.
type CatalogService struct {
	ID              uint64    `gorm:"primaryKey"`
	Name            string    `gorm:"not null"`
	PriceCents      int64     `gorm:"not null"`
	DurationMinutes int64     `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (CatalogService) TableName() string { return "services" }

// ParkingBooking mirrors the parking_bookings table.
type ParkingBooking struct {
	ID                  uint64     `gorm:"primaryKey"`
	UserID              uint64     `gorm:"not null;index"`
	SlotID              uint64     `gorm:"not null;index"`
	ParkingID           uint64     `gorm:"not null"`
	Status              string     `gorm:"not null;index:idx_parking_bookings_status_end,priority:1"`
	Hours               int64      `gorm:"not null"`
	TotalPriceCents     int64      `gorm:"not null"`
	ExtraChargeCents    int64      `gorm:"not null;default:0"`
	ExtraMinutes        int64      `gorm:"not null;default:0"`
	BilledMinutes       int64      `gorm:"not null;default:0"`
	StartTime           time.Time  `gorm:"not null"`
	EndTime             time.Time  `gorm:"not null;index:idx_parking_bookings_status_end,priority:2"`
	CheckoutRequestedAt *time.Time `gorm:""`
	ActualEndTime       *time.Time `gorm:""`
	CheckoutRequested   bool       `gorm:"not null;default:false"`
	CheckoutApproved    bool       `gorm:"not null;default:false"`
	TicketNumber        *string    `gorm:"uniqueIndex"`
	HandledBy           *uint64    `gorm:""`
	CreatedAt           time.Time  `gorm:"not null"`
	UpdatedAt           time.Time  `gorm:"not null"`
}

func (ParkingBooking) TableName() string { return "parking_bookings" }

// ServiceOrder mirrors the service_orders table.
type ServiceOrder struct {
	ID                    uint64     `gorm:"primaryKey"`
	UserID                uint64     `gorm:"not null;index"`
	ServiceID             uint64     `gorm:"not null"`
	Status                string     `gorm:"not null;index"`
	PriceCents            int64      `gorm:"not null"`
	Notes                 string     `gorm:"not null;default:''"`
	BookingTime           time.Time  `gorm:"not null"`
	ScheduledInProgressAt *time.Time `gorm:"index"`
	ScheduledCompletedAt  *time.Time `gorm:"index"`
	SlipNumber            *string    `gorm:"uniqueIndex"`
	InvoiceNumber         *string    `gorm:"uniqueIndex"`
	StartedAt             *time.Time `gorm:""`
	CompletedAt           *time.Time `gorm:""`
	CancelledAt           *time.Time `gorm:""`
	HandledBy             *uint64    `gorm:""`
	CreatedAt             time.Time  `gorm:"not null"`
	UpdatedAt             time.Time  `gorm:"not null"`
}

func (ServiceOrder) TableName() string { return "service_orders" }

// Models lists every table for schema migration.
func Models() []any {
	return []any{
		&User{},
		&LedgerEntry{},
		&WalletTransaction{},
		&Parking{},
		&Slot{},
		&CatalogService{},
		&ParkingBooking{},
		&ServiceOrder{},
	}
}
