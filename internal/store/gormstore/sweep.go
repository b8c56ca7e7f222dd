package gormstore

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
)

// ListExpiredParkingBookings returns confirmed bookings whose end time is before now.
func (store *Store) ListExpiredParkingBookings(ctx context.Context, now time.Time, limit int) ([]booking.ParkingBookingID, error) {
	var ids []uint64
	err := store.db.WithContext(ctx).
		Model(&ParkingBooking{}).
		Where("status = ? AND end_time < ?", booking.StatusConfirmed.String(), now.UTC()).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectParkingBooking, errorCodeList, err)
	}
	bookingIDs := make([]booking.ParkingBookingID, 0, len(ids))
	for _, id := range ids {
		bookingIDs = append(bookingIDs, booking.ParkingBookingID(id))
	}
	return bookingIDs, nil
}

// ListServiceOrdersToStart returns confirmed orders whose scheduled start has passed.
func (store *Store) ListServiceOrdersToStart(ctx context.Context, now time.Time, limit int) ([]booking.ServiceOrderID, error) {
	return store.listServiceOrdersDue(ctx, booking.StatusConfirmed, "scheduled_in_progress_at", now, limit)
}

// ListServiceOrdersToComplete returns in-progress orders whose scheduled finish has passed.
func (store *Store) ListServiceOrdersToComplete(ctx context.Context, now time.Time, limit int) ([]booking.ServiceOrderID, error) {
	return store.listServiceOrdersDue(ctx, booking.StatusInProgress, "scheduled_completed_at", now, limit)
}

func (store *Store) listServiceOrdersDue(ctx context.Context, status booking.Status, column string, now time.Time, limit int) ([]booking.ServiceOrderID, error) {
	var ids []uint64
	err := store.db.WithContext(ctx).
		Model(&ServiceOrder{}).
		Where("status = ?", status.String()).
		Where(column+" IS NOT NULL AND "+column+" <= ?", now.UTC()).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectServiceOrder, errorCodeList, err)
	}
	orderIDs := make([]booking.ServiceOrderID, 0, len(ids))
	for _, id := range ids {
		orderIDs = append(orderIDs, booking.ServiceOrderID(id))
	}
	return orderIDs, nil
}
