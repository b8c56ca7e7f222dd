// Package sweep runs the time-driven booking transitions: expiring overdue parking
// bookings and moving service orders through their scheduled start and finish.
// A sweep is idempotent; running it twice against the same clock is a no-op.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
)

const defaultBatchSize = 500

// ErrInvalidConfig indicates a missing sweeper dependency.
var ErrInvalidConfig = errors.New("invalid sweeper config")

// Candidates lists the bookings due for a time-driven transition at now.
type Candidates interface {
	ListExpiredParkingBookings(ctx context.Context, now time.Time, limit int) ([]booking.ParkingBookingID, error)
	ListServiceOrdersToStart(ctx context.Context, now time.Time, limit int) ([]booking.ServiceOrderID, error)
	ListServiceOrdersToComplete(ctx context.Context, now time.Time, limit int) ([]booking.ServiceOrderID, error)
}

// Transitions fires the time-driven events.
type Transitions interface {
	ExpireParkingBooking(ctx context.Context, bookingID booking.ParkingBookingID) (booking.ParkingBooking, error)
	StartServiceOrder(ctx context.Context, orderID booking.ServiceOrderID, staffID wallet.UserID) (booking.ServiceOrder, error)
	CompleteServiceOrder(ctx context.Context, orderID booking.ServiceOrderID, staffID wallet.UserID) (booking.ServiceOrder, error)
}

// Report summarizes one sweep.
type Report struct {
	Expired   int
	Started   int
	Completed int
	Skipped   int
	Failures  []error
}

// Err joins the failures of the sweep, or returns nil.
func (report Report) Err() error {
	return errors.Join(report.Failures...)
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithBatchSize bounds how many candidates each scan returns.
func WithBatchSize(size int) Option {
	return func(sweeper *Sweeper) {
		if size > 0 {
			sweeper.batchSize = size
		}
	}
}

// Sweeper runs the scheduled transitions.
type Sweeper struct {
	candidates  Candidates
	transitions Transitions
	nowFn       func() time.Time
	batchSize   int
}

// New wires a Sweeper.
func New(candidates Candidates, transitions Transitions, now func() time.Time, options ...Option) (*Sweeper, error) {
	if candidates == nil || transitions == nil {
		return nil, fmt.Errorf("%w: nil dependency", ErrInvalidConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidConfig)
	}
	sweeper := &Sweeper{candidates: candidates, transitions: transitions, nowFn: now, batchSize: defaultBatchSize}
	for _, option := range options {
		if option != nil {
			option(sweeper)
		}
	}
	return sweeper, nil
}

// Run performs one sweep. Transitions lost to a concurrent staff action are
// counted as skipped; other failures are collected and the sweep continues.
func (sweeper *Sweeper) Run(ctx context.Context) (Report, error) {
	var report Report
	now := sweeper.nowFn().UTC()

	expired, err := sweeper.candidates.ListExpiredParkingBookings(ctx, now, sweeper.batchSize)
	if err != nil {
		return report, fmt.Errorf("sweep.parking.list: %w", err)
	}
	for _, bookingID := range expired {
		_, err := sweeper.transitions.ExpireParkingBooking(ctx, bookingID)
		report.record(&report.Expired, fmt.Sprintf("parking %d expire", bookingID), err)
	}

	toStart, err := sweeper.candidates.ListServiceOrdersToStart(ctx, now, sweeper.batchSize)
	if err != nil {
		return report, fmt.Errorf("sweep.service.list_start: %w", err)
	}
	for _, orderID := range toStart {
		_, err := sweeper.transitions.StartServiceOrder(ctx, orderID, wallet.UserID{})
		report.record(&report.Started, fmt.Sprintf("service %d start", orderID), err)
	}

	toComplete, err := sweeper.candidates.ListServiceOrdersToComplete(ctx, now, sweeper.batchSize)
	if err != nil {
		return report, fmt.Errorf("sweep.service.list_complete: %w", err)
	}
	for _, orderID := range toComplete {
		_, err := sweeper.transitions.CompleteServiceOrder(ctx, orderID, wallet.UserID{})
		report.record(&report.Completed, fmt.Sprintf("service %d complete", orderID), err)
	}
	return report, nil
}

func (report *Report) record(counter *int, label string, err error) {
	switch {
	case err == nil:
		*counter++
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrAlreadyProcessed):
		report.Skipped++
	default:
		report.Failures = append(report.Failures, fmt.Errorf("%s: %w", label, err))
	}
}
