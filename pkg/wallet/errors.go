package wallet

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the wallet ledger.
var (
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInvalidCode             = errors.New("invalid verification code")
	ErrTooManyAttempts         = errors.New("too many verification attempts")
	ErrNotFound                = errors.New("not found")
	ErrNotPending              = errors.New("transaction not pending")
	ErrNotVerified             = errors.New("transaction not verified")
	ErrAlreadyProcessed        = errors.New("already processed")
	ErrStatusConflict          = errors.New("transaction status changed concurrently")
	ErrDuplicateReference      = errors.New("duplicate transaction reference")
	ErrInvalidUserID           = errors.New("invalid user id")
	ErrInvalidTransactionID    = errors.New("invalid transaction id")
	ErrInvalidTransactionRef   = errors.New("invalid transaction ref")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidTransactionType  = errors.New("invalid transaction type")
	ErrInvalidTransactionState = errors.New("invalid transaction status")
	ErrInvalidMetadataJSON     = errors.New("invalid metadata json")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
	ErrInvalidBalance          = errors.New("invalid balance")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
