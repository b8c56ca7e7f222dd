// Package grpcserver exposes the staff console over gRPC. Messages are
// google.protobuf.Struct values so the service needs no generated code.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/sweep"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	errorInvalidBookingID     = "invalid_booking_id"
	errorInvalidTransactionID = "invalid_transaction_id"
	errorInvalidUserID        = "invalid_user_id"
	errorInvalidStaffID       = "invalid_staff_id"
	errorInvalidRequest       = "invalid_request"
	errorInvalidAmount        = "invalid_amount"
	errorNotFound             = "not_found"
	errorAlreadyProcessed     = "already_processed"
	errorInvalidTransition    = "invalid_transition"
	errorInsufficientFunds    = "insufficient_funds"
	errorPaymentFailed        = "payment_failed"
	errorPaymentRequired      = "payment_required"
	errorNotPending           = "not_pending"
	errorNotVerified          = "not_verified"
	errorConflict             = "conflict"

	fieldBookingID     = "booking_id"
	fieldTransactionID = "transaction_id"
	fieldStaffID       = "staff_id"
	fieldUserID        = "user_id"
	fieldReason        = "reason"
)

// StaffConsoleServer serves parkwash.staff.v1.StaffConsole.
type StaffConsoleServer struct {
	bookings *booking.Service
	wallet   *wallet.Ledger
	sweeper  *sweep.Sweeper
	logger   *zap.Logger
}

// NewStaffConsoleServer constructs the staff console.
func NewStaffConsoleServer(bookings *booking.Service, ledger *wallet.Ledger, sweeper *sweep.Sweeper, logger *zap.Logger) (*StaffConsoleServer, error) {
	if bookings == nil || ledger == nil || sweeper == nil {
		return nil, fmt.Errorf("grpcserver: missing dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffConsoleServer{bookings: bookings, wallet: ledger, sweeper: sweeper, logger: logger}, nil
}

func (server *StaffConsoleServer) ApproveCheckout(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	bookingID, staffID, err := bookingAndStaff(request)
	if err != nil {
		return nil, err
	}
	approved, operationError := server.bookings.ApproveCheckout(ctx, bookingID, staffID)
	if operationError != nil {
		return nil, server.mapToGRPCError("approve checkout", operationError)
	}
	return newStruct(map[string]any{"parking_booking": parkingBookingFields(approved)})
}

func (server *StaffConsoleServer) RejectCheckout(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	bookingID, staffID, err := bookingAndStaff(request)
	if err != nil {
		return nil, err
	}
	rejected, operationError := server.bookings.RejectCheckout(ctx, bookingID, staffID)
	if operationError != nil {
		return nil, server.mapToGRPCError("reject checkout", operationError)
	}
	return newStruct(map[string]any{"parking_booking": parkingBookingFields(rejected)})
}

func (server *StaffConsoleServer) ApproveTopup(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	transactionID, staffID, err := transactionAndStaff(request)
	if err != nil {
		return nil, err
	}
	approved, operationError := server.wallet.ApproveTopup(ctx, transactionID, staffID)
	if operationError != nil {
		return nil, server.mapToGRPCError("approve topup", operationError)
	}
	return newStruct(map[string]any{"transaction": transactionFields(approved)})
}

func (server *StaffConsoleServer) RejectTopup(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	transactionID, staffID, err := transactionAndStaff(request)
	if err != nil {
		return nil, err
	}
	reason := request.GetFields()[fieldReason].GetStringValue()
	rejected, operationError := server.wallet.RejectTopup(ctx, transactionID, staffID, reason)
	if operationError != nil {
		return nil, server.mapToGRPCError("reject topup", operationError)
	}
	return newStruct(map[string]any{"transaction": transactionFields(rejected)})
}

func (server *StaffConsoleServer) RunSweep(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	report, operationError := server.sweeper.Run(ctx)
	if operationError != nil {
		return nil, server.mapToGRPCError("sweep", operationError)
	}
	failures := make([]any, 0, len(report.Failures))
	for _, failure := range report.Failures {
		failures = append(failures, failure.Error())
	}
	if len(failures) > 0 {
		server.logger.Warn("sweep finished with failures", zap.Error(report.Err()))
	}
	return newStruct(map[string]any{
		"expired":   report.Expired,
		"started":   report.Started,
		"completed": report.Completed,
		"skipped":   report.Skipped,
		"failures":  failures,
	})
}

// GetBalance returns the stored balance together with its reconciliation.
func (server *StaffConsoleServer) GetBalance(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	rawUserID, err := uintField(request, fieldUserID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, errorInvalidUserID)
	}
	userID, err := wallet.NewUserID(rawUserID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, errorInvalidUserID)
	}
	reconciliation, operationError := server.wallet.Reconcile(ctx, userID)
	if operationError != nil {
		return nil, server.mapToGRPCError("get balance", operationError)
	}
	return newStruct(map[string]any{
		"user_id":        userID.Uint64(),
		"balance_cents":  reconciliation.Balance.Int64(),
		"balance":        reconciliation.Balance.String(),
		"credits_cents":  reconciliation.Credits.Int64(),
		"debits_cents":   reconciliation.Debits.Int64(),
		"expected_cents": reconciliation.Expected().Int64(),
		"consistent":     reconciliation.Consistent(),
	})
}

func bookingAndStaff(request *structpb.Struct) (booking.ParkingBookingID, wallet.UserID, error) {
	rawBookingID, err := uintField(request, fieldBookingID)
	if err != nil || rawBookingID == 0 {
		return 0, wallet.UserID{}, status.Error(codes.InvalidArgument, errorInvalidBookingID)
	}
	staffID, err := staffField(request)
	if err != nil {
		return 0, wallet.UserID{}, err
	}
	return booking.ParkingBookingID(rawBookingID), staffID, nil
}

func transactionAndStaff(request *structpb.Struct) (wallet.TransactionID, wallet.UserID, error) {
	transactionID, err := wallet.NewTransactionID(request.GetFields()[fieldTransactionID].GetStringValue())
	if err != nil {
		return wallet.TransactionID{}, wallet.UserID{}, status.Error(codes.InvalidArgument, errorInvalidTransactionID)
	}
	staffID, err := staffField(request)
	if err != nil {
		return wallet.TransactionID{}, wallet.UserID{}, err
	}
	return transactionID, staffID, nil
}

func staffField(request *structpb.Struct) (wallet.UserID, error) {
	rawStaffID, err := uintField(request, fieldStaffID)
	if err != nil {
		return wallet.UserID{}, status.Error(codes.InvalidArgument, errorInvalidStaffID)
	}
	staffID, err := wallet.NewUserID(rawStaffID)
	if err != nil {
		return wallet.UserID{}, status.Error(codes.InvalidArgument, errorInvalidStaffID)
	}
	return staffID, nil
}

// uintField reads a whole non-negative number; Struct carries numbers as doubles.
func uintField(request *structpb.Struct, name string) (uint64, error) {
	value, ok := request.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("missing %s", name)
	}
	number, ok := value.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s is not a number", name)
	}
	if number.NumberValue < 0 || number.NumberValue != math.Trunc(number.NumberValue) || number.NumberValue > math.MaxInt64 {
		return 0, fmt.Errorf("%s is not a whole number", name)
	}
	return uint64(number.NumberValue), nil
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	response, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return response, nil
}

func parkingBookingFields(parkingBooking booking.ParkingBooking) map[string]any {
	return map[string]any{
		"id":                 uint64(parkingBooking.ID),
		"user_id":            parkingBooking.UserID.Uint64(),
		"slot_id":            uint64(parkingBooking.SlotID),
		"status":             parkingBooking.Status.String(),
		"hours":              parkingBooking.Hours,
		"total_price_cents":  parkingBooking.TotalPriceCents,
		"extra_charge_cents": parkingBooking.ExtraChargeCents,
		"extra_minutes":      parkingBooking.ExtraMinutes,
		"billed_minutes":     parkingBooking.BilledMinutes,
		"end_time":           parkingBooking.EndTime.Format(time.RFC3339),
		"checkout_approved":  parkingBooking.CheckoutApproved,
		"ticket_number":      parkingBooking.TicketNumber,
	}
}

func transactionFields(transaction wallet.Transaction) map[string]any {
	return map[string]any{
		"id":           transaction.ID.String(),
		"user_id":      transaction.UserID.Uint64(),
		"type":         transaction.Type.String(),
		"status":       transaction.Status.String(),
		"amount_cents": transaction.Amount.Cents().Int64(),
		"amount":       transaction.Amount.String(),
		"reason":       transaction.Reason,
	}
}

type grpcErrorMapping struct {
	target error
	code   codes.Code
	reason string
}

var grpcErrorMappings = []grpcErrorMapping{
	{booking.ErrPaymentFailed, codes.FailedPrecondition, errorPaymentFailed},
	{booking.ErrPaymentRequired, codes.FailedPrecondition, errorPaymentRequired},
	{wallet.ErrInsufficientFunds, codes.FailedPrecondition, errorInsufficientFunds},
	{booking.ErrInvalidTransition, codes.FailedPrecondition, errorInvalidTransition},
	{wallet.ErrNotPending, codes.FailedPrecondition, errorNotPending},
	{wallet.ErrNotVerified, codes.FailedPrecondition, errorNotVerified},
	{booking.ErrStatusConflict, codes.Aborted, errorConflict},
	{wallet.ErrStatusConflict, codes.Aborted, errorConflict},
	{booking.ErrNotFound, codes.NotFound, errorNotFound},
	{wallet.ErrNotFound, codes.NotFound, errorNotFound},
	{booking.ErrAlreadyProcessed, codes.AlreadyExists, errorAlreadyProcessed},
	{wallet.ErrAlreadyProcessed, codes.AlreadyExists, errorAlreadyProcessed},
	{booking.ErrInvalidRequest, codes.InvalidArgument, errorInvalidRequest},
	{wallet.ErrInvalidAmount, codes.InvalidArgument, errorInvalidAmount},
	{wallet.ErrInvalidUserID, codes.InvalidArgument, errorInvalidUserID},
	{wallet.ErrInvalidTransactionID, codes.InvalidArgument, errorInvalidTransactionID},
}

func (server *StaffConsoleServer) mapToGRPCError(operation string, source error) error {
	for _, mapping := range grpcErrorMappings {
		if errors.Is(source, mapping.target) {
			return status.Error(mapping.code, mapping.reason)
		}
	}
	server.logger.Error(operation+" failed", zap.Error(source))
	return status.Error(codes.Internal, source.Error())
}
