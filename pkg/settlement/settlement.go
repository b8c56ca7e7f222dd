// Package settlement quotes the extra charge owed when a parking booking overruns
// its scheduled end. Overrun minutes are rounded up and billed in fixed blocks.
package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBlockMinutes is the billing granularity for overruns.
const DefaultBlockMinutes = 10

var (
	// ErrInvalidBlock indicates a non-positive billing block.
	ErrInvalidBlock = errors.New("invalid billing block")
	// ErrInvalidRate indicates a negative hourly rate.
	ErrInvalidRate = errors.New("invalid hourly rate")
)

var minutesPerHour = decimal.NewFromInt(60)

// Quote is the outcome of a settlement calculation.
type Quote struct {
	ExtraMinutes  int64
	BilledMinutes int64
	ChargeCents   int64
}

// RequiresPayment reports whether the booking owes an extra payment before completion.
func (quote Quote) RequiresPayment() bool {
	return quote.ChargeCents > 0
}

// Calculator computes overrun quotes.
type Calculator struct {
	blockMinutes int64
}

// NewCalculator builds a Calculator billing in blocks of blockMinutes.
func NewCalculator(blockMinutes int) (Calculator, error) {
	if blockMinutes <= 0 {
		return Calculator{}, fmt.Errorf("%w: %d", ErrInvalidBlock, blockMinutes)
	}
	return Calculator{blockMinutes: int64(blockMinutes)}, nil
}

// BlockMinutes returns the billing block size.
func (calculator Calculator) BlockMinutes() int {
	if calculator.blockMinutes == 0 {
		return DefaultBlockMinutes
	}
	return int(calculator.blockMinutes)
}

// Quote prices the overrun between scheduledEnd and actualEnd at hourlyRateCents.
// An actual end at or before the scheduled end owes nothing.
func (calculator Calculator) Quote(scheduledEnd time.Time, actualEnd time.Time, hourlyRateCents int64) (Quote, error) {
	if hourlyRateCents < 0 {
		return Quote{}, fmt.Errorf("%w: %d", ErrInvalidRate, hourlyRateCents)
	}
	extraMinutes := ExtraMinutes(scheduledEnd, actualEnd)
	billedMinutes := calculator.BilledMinutes(extraMinutes)
	charge := decimal.NewFromInt(billedMinutes).
		Mul(decimal.NewFromInt(hourlyRateCents)).
		Div(minutesPerHour).
		Round(0)
	return Quote{
		ExtraMinutes:  extraMinutes,
		BilledMinutes: billedMinutes,
		ChargeCents:   charge.IntPart(),
	}, nil
}

// BilledMinutes rounds extraMinutes up to the next whole block.
func (calculator Calculator) BilledMinutes(extraMinutes int64) int64 {
	if extraMinutes <= 0 {
		return 0
	}
	block := int64(calculator.BlockMinutes())
	return ((extraMinutes + block - 1) / block) * block
}

// ExtraMinutes returns the overrun rounded up to whole minutes, never negative.
func ExtraMinutes(scheduledEnd time.Time, actualEnd time.Time) int64 {
	overrun := actualEnd.Sub(scheduledEnd)
	if overrun <= 0 {
		return 0
	}
	minutes := int64(overrun / time.Minute)
	if overrun%time.Minute != 0 {
		minutes++
	}
	return minutes
}
