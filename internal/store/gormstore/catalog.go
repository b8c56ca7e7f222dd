package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/internal/notify"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
	"gorm.io/gorm"
)

// Catalog rows are managed outside the booking engine. These helpers back the
// seed command and the store tests.

// CreateUser inserts a user with an empty wallet.
func (store *Store) CreateUser(ctx context.Context, name string, email string, mobile string) (wallet.UserID, error) {
	now := time.Now().UTC()
	row := User{Name: name, Email: email, Mobile: mobile, CreatedAt: now, UpdatedAt: now}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wallet.UserID{}, wrapStoreError(errorSubjectCatalog, errorCodeCreate, err)
	}
	return wallet.NewUserID(row.ID)
}

// CreateParking inserts a parking lot with slotCodes as its slots, all available.
func (store *Store) CreateParking(ctx context.Context, name string, pricePerHourCents int64, slotCodes []string) (booking.ParkingID, error) {
	var parkingID booking.ParkingID
	err := store.transaction(ctx, func(txStore *Store) error {
		row := Parking{Name: name, PricePerHourCents: pricePerHourCents, CreatedAt: time.Now().UTC()}
		if err := txStore.db.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
		for _, code := range slotCodes {
			slot := Slot{ParkingID: row.ID, Code: code, Available: true}
			if err := txStore.db.WithContext(ctx).Create(&slot).Error; err != nil {
				return err
			}
		}
		parkingID = booking.ParkingID(row.ID)
		return nil
	})
	if err != nil {
		return 0, wrapStoreError(errorSubjectCatalog, errorCodeCreate, err)
	}
	return parkingID, nil
}

// CreateService inserts a catalog service.
func (store *Store) CreateService(ctx context.Context, name string, priceCents int64, durationMinutes int64) (booking.ServiceID, error) {
	row := CatalogService{Name: name, PriceCents: priceCents, DurationMinutes: durationMinutes, CreatedAt: time.Now().UTC()}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, wrapStoreError(errorSubjectCatalog, errorCodeCreate, err)
	}
	return booking.ServiceID(row.ID), nil
}

// LookupContact returns where notices for userID are delivered.
func (store *Store) LookupContact(ctx context.Context, userID uint64) (notify.Contact, error) {
	var row User
	err := store.db.WithContext(ctx).Select("id", "name", "email", "mobile").Where("id = ?", userID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notify.Contact{}, wrapStoreError(errorSubjectCatalog, errorCodeLookup, wallet.ErrNotFound)
		}
		return notify.Contact{}, wrapStoreError(errorSubjectCatalog, errorCodeLookup, err)
	}
	return notify.Contact{Name: row.Name, Email: row.Email, Mobile: row.Mobile}, nil
}
