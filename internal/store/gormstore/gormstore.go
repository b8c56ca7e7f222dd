package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintLedgerEntryRef        = "uniq_ledger_entries_user_ref"
	constraintTransactionReference  = "uniq_wallet_transactions_reference"
	defaultMetadataJSON             = "{}"
	dialectSQLite                   = "sqlite"
	pgUniqueViolationCode           = "23505"
	sqliteConstraintCode            = 19
	errorOperationStore             = "store"
	errorSubjectBalance             = "balance"
	errorSubjectEntry               = "entry"
	errorSubjectTransaction         = "transaction"
	errorSubjectParking             = "parking"
	errorSubjectSlot                = "slot"
	errorSubjectService             = "service"
	errorSubjectParkingBooking      = "parking_booking"
	errorSubjectServiceOrder        = "service_order"
	errorSubjectCatalog             = "catalog"
	errorCodeCreate                 = "create"
	errorCodeDuplicate              = "duplicate"
	errorCodeGet                    = "get"
	errorCodeInsert                 = "insert"
	errorCodeInvalid                = "invalid"
	errorCodeList                   = "list"
	errorCodeLock                   = "lock"
	errorCodeLookup                 = "lookup"
	errorCodeSumCompleted           = "sum_completed"
	errorCodeUpdate                 = "update"
	errorCodeUpdateStatus           = "update_status"
	errorCodeMigrate                = "migrate"
)

// Store implements wallet.Records, booking.Records and sweep.Candidates using GORM.
// Use Wallet and Bookings for the transactional views.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table.
func (store *Store) Migrate(ctx context.Context) error {
	if err := store.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return wrapStoreError(errorSubjectCatalog, errorCodeMigrate, err)
	}
	return nil
}

// Wallet returns the view consumed by wallet.Ledger.
func (store *Store) Wallet() WalletStore {
	return WalletStore{Store: store}
}

// Bookings returns the view consumed by booking.Service.
func (store *Store) Bookings() BookingStore {
	return BookingStore{Store: store}
}

// WalletStore adapts Store to wallet.Store.
type WalletStore struct {
	*Store
}

// WithTx executes fn within a transaction.
func (store WalletStore) WithTx(ctx context.Context, fn func(ctx context.Context, txRecords wallet.Records) error) error {
	return store.transaction(ctx, func(txStore *Store) error {
		return fn(ctx, txStore)
	})
}

// BookingStore adapts Store to booking.Store.
type BookingStore struct {
	*Store
}

// WithTx executes fn within a transaction.
func (store BookingStore) WithTx(ctx context.Context, fn func(ctx context.Context, txRecords booking.Records) error) error {
	return store.transaction(ctx, func(txStore *Store) error {
		return fn(ctx, txStore)
	})
}

func (store *Store) transaction(ctx context.Context, fn func(txStore *Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(&Store{db: transaction})
	})
}

// locking adds FOR UPDATE on dialects that support row locks. SQLite serializes
// writers on the database file instead.
func (store *Store) locking(ctx context.Context) *gorm.DB {
	query := store.db.WithContext(ctx)
	if store.db.Dialector.Name() == dialectSQLite {
		return query
	}
	return query.Clauses(clause.Locking{Strength: "UPDATE"})
}

func wrapStoreError(subject string, code string, err error) error {
	return wallet.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

type sqlCreditsDebits struct {
	Credits int64
	Debits  int64
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	normalized := value.UTC()
	return &normalized
}

func stringPointer(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func userPointer(userID wallet.UserID) *uint64 {
	if userID.IsZero() {
		return nil
	}
	raw := userID.Uint64()
	return &raw
}

func userOrZero(raw *uint64) (wallet.UserID, error) {
	if raw == nil || *raw == 0 {
		return wallet.UserID{}, nil
	}
	return wallet.NewUserID(*raw)
}

// isUniqueViolation reports a unique constraint failure. Postgres errors are
// matched by constraint name; SQLite only reports the constraint class.
func isUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintName
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
