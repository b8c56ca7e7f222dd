package gormstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
	"gorm.io/gorm"
)

func (store *Store) GetParking(ctx context.Context, parkingID booking.ParkingID) (booking.Parking, error) {
	var row Parking
	err := store.db.WithContext(ctx).Where("id = ?", uint64(parkingID)).Take(&row).Error
	if err != nil {
		return booking.Parking{}, wrapStoreError(errorSubjectParking, errorCodeGet, notFound(err))
	}
	return booking.Parking{
		ID:                booking.ParkingID(row.ID),
		Name:              row.Name,
		PricePerHourCents: row.PricePerHourCents,
	}, nil
}

func (store *Store) GetSlot(ctx context.Context, slotID booking.SlotID) (booking.Slot, error) {
	return store.readSlot(store.db.WithContext(ctx), slotID, errorCodeGet)
}

func (store *Store) LockSlot(ctx context.Context, slotID booking.SlotID) (booking.Slot, error) {
	return store.readSlot(store.locking(ctx), slotID, errorCodeLock)
}

func (store *Store) readSlot(query *gorm.DB, slotID booking.SlotID, code string) (booking.Slot, error) {
	var row Slot
	if err := query.Where("id = ?", uint64(slotID)).Take(&row).Error; err != nil {
		return booking.Slot{}, wrapStoreError(errorSubjectSlot, code, notFound(err))
	}
	return mapSlot(row), nil
}

// SetSlotAvailability flips the slot flag only when it still holds from.
func (store *Store) SetSlotAvailability(ctx context.Context, slotID booking.SlotID, from bool, to bool) error {
	result := store.db.WithContext(ctx).
		Model(&Slot{}).
		Where("id = ? AND available = ?", uint64(slotID), from).
		Update("available", to)
	if result.Error != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetSlot(ctx, slotID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectSlot, errorCodeUpdate, booking.ErrStatusConflict)
	}
	return nil
}

func (store *Store) ListAvailableSlots(ctx context.Context, parkingID booking.ParkingID) ([]booking.Slot, error) {
	var rows []Slot
	err := store.db.WithContext(ctx).
		Where("parking_id = ? AND available = ?", uint64(parkingID), true).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSlot, errorCodeList, err)
	}
	slots := make([]booking.Slot, 0, len(rows))
	for _, row := range rows {
		slots = append(slots, mapSlot(row))
	}
	return slots, nil
}

func (store *Store) GetService(ctx context.Context, serviceID booking.ServiceID) (booking.ServiceItem, error) {
	var row CatalogService
	err := store.db.WithContext(ctx).Where("id = ?", uint64(serviceID)).Take(&row).Error
	if err != nil {
		return booking.ServiceItem{}, wrapStoreError(errorSubjectService, errorCodeGet, notFound(err))
	}
	return booking.ServiceItem{
		ID:              booking.ServiceID(row.ID),
		Name:            row.Name,
		PriceCents:      row.PriceCents,
		DurationMinutes: row.DurationMinutes,
	}, nil
}

func (store *Store) CreateParkingBooking(ctx context.Context, parkingBooking booking.ParkingBooking) (booking.ParkingBooking, error) {
	row := ParkingBooking{
		UserID:              parkingBooking.UserID.Uint64(),
		SlotID:              uint64(parkingBooking.SlotID),
		ParkingID:           uint64(parkingBooking.ParkingID),
		Status:              parkingBooking.Status.String(),
		Hours:               parkingBooking.Hours,
		TotalPriceCents:     parkingBooking.TotalPriceCents,
		ExtraChargeCents:    parkingBooking.ExtraChargeCents,
		ExtraMinutes:        parkingBooking.ExtraMinutes,
		BilledMinutes:       parkingBooking.BilledMinutes,
		StartTime:           parkingBooking.StartTime.UTC(),
		EndTime:             parkingBooking.EndTime.UTC(),
		CheckoutRequestedAt: utcPointer(parkingBooking.CheckoutRequestedAt),
		ActualEndTime:       utcPointer(parkingBooking.ActualEndTime),
		CheckoutRequested:   parkingBooking.CheckoutRequested,
		CheckoutApproved:    parkingBooking.CheckoutApproved,
		TicketNumber:        stringPointer(parkingBooking.TicketNumber),
		HandledBy:           userPointer(parkingBooking.HandledBy),
		CreatedAt:           parkingBooking.CreatedAt.UTC(),
		UpdatedAt:           parkingBooking.UpdatedAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return booking.ParkingBooking{}, wrapStoreError(errorSubjectParkingBooking, errorCodeCreate, err)
	}
	created, err := mapParkingBooking(row)
	if err != nil {
		return booking.ParkingBooking{}, wrapStoreError(errorSubjectParkingBooking, errorCodeInvalid, err)
	}
	return created, nil
}

func (store *Store) GetParkingBooking(ctx context.Context, bookingID booking.ParkingBookingID) (booking.ParkingBooking, error) {
	return store.readParkingBooking(store.db.WithContext(ctx), bookingID, errorCodeGet)
}

func (store *Store) LockParkingBooking(ctx context.Context, bookingID booking.ParkingBookingID) (booking.ParkingBooking, error) {
	return store.readParkingBooking(store.locking(ctx), bookingID, errorCodeLock)
}

func (store *Store) readParkingBooking(query *gorm.DB, bookingID booking.ParkingBookingID, code string) (booking.ParkingBooking, error) {
	var row ParkingBooking
	if err := query.Where("id = ?", uint64(bookingID)).Take(&row).Error; err != nil {
		return booking.ParkingBooking{}, wrapStoreError(errorSubjectParkingBooking, code, notFound(err))
	}
	parkingBooking, err := mapParkingBooking(row)
	if err != nil {
		return booking.ParkingBooking{}, wrapStoreError(errorSubjectParkingBooking, errorCodeInvalid, err)
	}
	return parkingBooking, nil
}

// ApplyParkingChange writes the status and the non-nil change columns in one
// conditional update. Zero affected rows is reported as booking.ErrStatusConflict.
func (store *Store) ApplyParkingChange(ctx context.Context, bookingID booking.ParkingBookingID, from booking.Status, change booking.ParkingChange) (booking.ParkingBooking, error) {
	updates := map[string]any{
		"status":     change.To.String(),
		"updated_at": change.At.UTC(),
	}
	if change.HandledBy != nil {
		updates["handled_by"] = change.HandledBy.Uint64()
	}
	if change.CheckoutRequestedAt != nil {
		updates["checkout_requested_at"] = change.CheckoutRequestedAt.UTC()
	}
	if change.ActualEndTime != nil {
		updates["actual_end_time"] = change.ActualEndTime.UTC()
	}
	if change.ExtraMinutes != nil {
		updates["extra_minutes"] = *change.ExtraMinutes
	}
	if change.BilledMinutes != nil {
		updates["billed_minutes"] = *change.BilledMinutes
	}
	if change.ExtraChargeCents != nil {
		updates["extra_charge_cents"] = *change.ExtraChargeCents
	}
	if change.CheckoutRequested != nil {
		updates["checkout_requested"] = *change.CheckoutRequested
	}
	if change.CheckoutApproved != nil {
		updates["checkout_approved"] = *change.CheckoutApproved
	}
	if change.TicketNumber != nil {
		updates["ticket_number"] = *change.TicketNumber
	}
	result := store.db.WithContext(ctx).
		Model(&ParkingBooking{}).
		Where("id = ? AND status = ?", uint64(bookingID), from.String()).
		Updates(updates)
	if result.Error != nil {
		return booking.ParkingBooking{}, wrapStoreError(errorSubjectParkingBooking, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetParkingBooking(ctx, bookingID); err != nil {
			return booking.ParkingBooking{}, err
		}
		return booking.ParkingBooking{}, wrapStoreError(errorSubjectParkingBooking, errorCodeUpdateStatus, booking.ErrStatusConflict)
	}
	return store.GetParkingBooking(ctx, bookingID)
}

func (store *Store) CreateServiceOrder(ctx context.Context, order booking.ServiceOrder) (booking.ServiceOrder, error) {
	row := ServiceOrder{
		UserID:                order.UserID.Uint64(),
		ServiceID:             uint64(order.ServiceID),
		Status:                order.Status.String(),
		PriceCents:            order.PriceCents,
		Notes:                 order.Notes,
		BookingTime:           order.BookingTime.UTC(),
		ScheduledInProgressAt: utcPointer(order.ScheduledInProgressAt),
		ScheduledCompletedAt:  utcPointer(order.ScheduledCompletedAt),
		SlipNumber:            stringPointer(order.SlipNumber),
		InvoiceNumber:         stringPointer(order.InvoiceNumber),
		StartedAt:             utcPointer(order.StartedAt),
		CompletedAt:           utcPointer(order.CompletedAt),
		CancelledAt:           utcPointer(order.CancelledAt),
		HandledBy:             userPointer(order.HandledBy),
		CreatedAt:             order.CreatedAt.UTC(),
		UpdatedAt:             order.UpdatedAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return booking.ServiceOrder{}, wrapStoreError(errorSubjectServiceOrder, errorCodeCreate, err)
	}
	created, err := mapServiceOrder(row)
	if err != nil {
		return booking.ServiceOrder{}, wrapStoreError(errorSubjectServiceOrder, errorCodeInvalid, err)
	}
	return created, nil
}

func (store *Store) GetServiceOrder(ctx context.Context, orderID booking.ServiceOrderID) (booking.ServiceOrder, error) {
	return store.readServiceOrder(store.db.WithContext(ctx), orderID, errorCodeGet)
}

func (store *Store) LockServiceOrder(ctx context.Context, orderID booking.ServiceOrderID) (booking.ServiceOrder, error) {
	return store.readServiceOrder(store.locking(ctx), orderID, errorCodeLock)
}

func (store *Store) readServiceOrder(query *gorm.DB, orderID booking.ServiceOrderID, code string) (booking.ServiceOrder, error) {
	var row ServiceOrder
	if err := query.Where("id = ?", uint64(orderID)).Take(&row).Error; err != nil {
		return booking.ServiceOrder{}, wrapStoreError(errorSubjectServiceOrder, code, notFound(err))
	}
	order, err := mapServiceOrder(row)
	if err != nil {
		return booking.ServiceOrder{}, wrapStoreError(errorSubjectServiceOrder, errorCodeInvalid, err)
	}
	return order, nil
}

// ApplyServiceChange is the service order counterpart of ApplyParkingChange.
func (store *Store) ApplyServiceChange(ctx context.Context, orderID booking.ServiceOrderID, from booking.Status, change booking.ServiceChange) (booking.ServiceOrder, error) {
	updates := map[string]any{
		"status":     change.To.String(),
		"updated_at": change.At.UTC(),
	}
	if change.HandledBy != nil {
		updates["handled_by"] = change.HandledBy.Uint64()
	}
	if change.ScheduledInProgressAt != nil {
		updates["scheduled_in_progress_at"] = change.ScheduledInProgressAt.UTC()
	}
	if change.ScheduledCompletedAt != nil {
		updates["scheduled_completed_at"] = change.ScheduledCompletedAt.UTC()
	}
	if change.SlipNumber != nil {
		updates["slip_number"] = *change.SlipNumber
	}
	if change.InvoiceNumber != nil {
		updates["invoice_number"] = *change.InvoiceNumber
	}
	if change.StartedAt != nil {
		updates["started_at"] = change.StartedAt.UTC()
	}
	if change.CompletedAt != nil {
		updates["completed_at"] = change.CompletedAt.UTC()
	}
	if change.CancelledAt != nil {
		updates["cancelled_at"] = change.CancelledAt.UTC()
	}
	result := store.db.WithContext(ctx).
		Model(&ServiceOrder{}).
		Where("id = ? AND status = ?", uint64(orderID), from.String()).
		Updates(updates)
	if result.Error != nil {
		return booking.ServiceOrder{}, wrapStoreError(errorSubjectServiceOrder, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetServiceOrder(ctx, orderID); err != nil {
			return booking.ServiceOrder{}, err
		}
		return booking.ServiceOrder{}, wrapStoreError(errorSubjectServiceOrder, errorCodeUpdateStatus, booking.ErrStatusConflict)
	}
	return store.GetServiceOrder(ctx, orderID)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.ErrNotFound
	}
	return err
}

func mapSlot(row Slot) booking.Slot {
	return booking.Slot{
		ID:        booking.SlotID(row.ID),
		ParkingID: booking.ParkingID(row.ParkingID),
		Code:      row.Code,
		Available: row.Available,
	}
}

func mapParkingBooking(row ParkingBooking) (booking.ParkingBooking, error) {
	userID, err := wallet.NewUserID(row.UserID)
	if err != nil {
		return booking.ParkingBooking{}, err
	}
	status, err := booking.ParseStatus(booking.KindParking, row.Status)
	if err != nil {
		return booking.ParkingBooking{}, err
	}
	handledBy, err := userOrZero(row.HandledBy)
	if err != nil {
		return booking.ParkingBooking{}, err
	}
	return booking.ParkingBooking{
		ID:                  booking.ParkingBookingID(row.ID),
		UserID:              userID,
		SlotID:              booking.SlotID(row.SlotID),
		ParkingID:           booking.ParkingID(row.ParkingID),
		Status:              status,
		Hours:               row.Hours,
		TotalPriceCents:     row.TotalPriceCents,
		ExtraChargeCents:    row.ExtraChargeCents,
		ExtraMinutes:        row.ExtraMinutes,
		BilledMinutes:       row.BilledMinutes,
		StartTime:           row.StartTime.UTC(),
		EndTime:             row.EndTime.UTC(),
		CheckoutRequestedAt: utcPointer(row.CheckoutRequestedAt),
		ActualEndTime:       utcPointer(row.ActualEndTime),
		CheckoutRequested:   row.CheckoutRequested,
		CheckoutApproved:    row.CheckoutApproved,
		TicketNumber:        stringOrEmpty(row.TicketNumber),
		HandledBy:           handledBy,
		CreatedAt:           row.CreatedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
	}, nil
}

func mapServiceOrder(row ServiceOrder) (booking.ServiceOrder, error) {
	userID, err := wallet.NewUserID(row.UserID)
	if err != nil {
		return booking.ServiceOrder{}, err
	}
	status, err := booking.ParseStatus(booking.KindService, row.Status)
	if err != nil {
		return booking.ServiceOrder{}, err
	}
	handledBy, err := userOrZero(row.HandledBy)
	if err != nil {
		return booking.ServiceOrder{}, err
	}
	return booking.ServiceOrder{
		ID:                    booking.ServiceOrderID(row.ID),
		UserID:                userID,
		ServiceID:             booking.ServiceID(row.ServiceID),
		Status:                status,
		PriceCents:            row.PriceCents,
		Notes:                 row.Notes,
		BookingTime:           row.BookingTime.UTC(),
		ScheduledInProgressAt: utcPointer(row.ScheduledInProgressAt),
		ScheduledCompletedAt:  utcPointer(row.ScheduledCompletedAt),
		SlipNumber:            stringOrEmpty(row.SlipNumber),
		InvoiceNumber:         stringOrEmpty(row.InvoiceNumber),
		StartedAt:             utcPointer(row.StartedAt),
		CompletedAt:           utcPointer(row.CompletedAt),
		CancelledAt:           utcPointer(row.CancelledAt),
		HandledBy:             handledBy,
		CreatedAt:             row.CreatedAt.UTC(),
		UpdatedAt:             row.UpdatedAt.UTC(),
	}, nil
}
