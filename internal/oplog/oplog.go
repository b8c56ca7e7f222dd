// Package oplog writes wallet operations, booking transitions and failed notices
// to a zap logger.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
	"go.uber.org/zap"
)

// Logger implements wallet.OperationLogger, booking.TransitionLogger and
// notice.FailureLogger.
type Logger struct {
	logger *zap.Logger
}

// New wraps logger. A nil logger discards everything.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

// LogOperation implements wallet.OperationLogger.
func (log *Logger) LogOperation(_ context.Context, entry wallet.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.Uint64("user_id", entry.UserID.Uint64()),
		zap.Int64("amount_cents", entry.Amount.Int64()),
		zap.Int64("balance_cents", entry.Balance.Int64()),
	}
	if transactionID := entry.TransactionID.String(); transactionID != "" {
		fields = append(fields, zap.String("transaction_id", transactionID))
	}
	if !entry.Reference.IsZero() {
		fields = append(fields, zap.String("reference", entry.Reference.String()))
	}
	if entry.Error != nil {
		log.logger.Warn("wallet operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	log.logger.Info("wallet operation", fields...)
}

// LogTransition implements booking.TransitionLogger.
func (log *Logger) LogTransition(_ context.Context, entry booking.TransitionLog) {
	fields := []zap.Field{
		zap.String("kind", entry.Kind.String()),
		zap.Uint64("booking_id", entry.BookingID),
		zap.String("event", entry.Event.String()),
		zap.String("from", entry.From.String()),
		zap.String("to", entry.To.String()),
		zap.Uint64("actor", entry.Actor.Uint64()),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		log.logger.Warn("booking transition failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	log.logger.Info("booking transition", fields...)
}

// LogNotifyFailure implements notice.FailureLogger.
func (log *Logger) LogNotifyFailure(_ context.Context, message notice.Notice, err error) {
	log.logger.Warn("notice delivery failed",
		zap.String("kind", message.Kind.String()),
		zap.Uint64("user_id", message.UserID),
		zap.String("number", message.Number),
		zap.Error(err),
	)
}
