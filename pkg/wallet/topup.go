package wallet

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
)

// InitiateTopup records a pending topup and sends the verification code to the user.
func (ledger *Ledger) InitiateTopup(ctx context.Context, userID UserID, amount PositiveCents, method string, mobile string) (Transaction, error) {
	var created Transaction
	operationError := ledger.store.WithTx(ctx, func(ctx context.Context, txRecords Records) error {
		if userID.IsZero() {
			return ErrInvalidUserID
		}
		if amount <= 0 {
			return ErrInvalidAmount
		}
		if _, err := txRecords.GetBalance(ctx, userID); err != nil {
			return err
		}
		transactionID, err := NewTransactionID(ledger.idFn())
		if err != nil {
			return err
		}
		code, err := ledger.codeFn()
		if err != nil {
			return WrapError(operationInitiateTopup, "code", "generate", err)
		}
		now := ledger.nowFn().UTC()
		transaction := Transaction{
			ID:               transactionID,
			UserID:           userID,
			Type:             TransactionTopup,
			Amount:           amount,
			Status:           StatusPending,
			Method:           strings.TrimSpace(method),
			Mobile:           strings.TrimSpace(mobile),
			VerificationCode: code,
			Metadata:         MetadataFrom(nil),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := txRecords.CreateTransaction(ctx, transaction); err != nil {
			return err
		}
		created = transaction
		return nil
	})
	ledger.logOperation(ctx, OperationLog{
		Operation:     operationInitiateTopup,
		UserID:        userID,
		TransactionID: created.ID,
		Amount:        amount.Cents(),
		Error:         operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	ledger.notify(ctx, notice.Notice{
		Kind:        notice.KindVerificationCode,
		UserID:      userID.Uint64(),
		Subject:     "Wallet topup verification code",
		Code:        created.VerificationCode,
		AmountCents: amount.Cents().Int64(),
		Details:     map[string]string{"transaction_id": created.ID.String(), "mobile": created.Mobile},
	})
	return created, nil
}

// VerifyTopup moves a pending topup to verified when code matches. The balance is untouched.
// Every wrong code is counted, and the topup fails after too many of them.
func (ledger *Ledger) VerifyTopup(ctx context.Context, transactionID TransactionID, code string) (Transaction, error) {
	var verified Transaction
	operationError := ledger.store.WithTx(ctx, func(ctx context.Context, txRecords Records) error {
		transaction, err := txRecords.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		verified = transaction
		if transaction.Type != TransactionTopup || transaction.Status != StatusPending {
			return ErrNotPending
		}
		if transaction.VerificationCode == "" || transaction.VerificationCode != code {
			return ErrInvalidCode
		}
		updated, err := txRecords.UpdateTransactionStatus(ctx, transactionID, StatusPending, TransactionChange{
			To: StatusVerified,
			At: ledger.nowFn().UTC(),
		})
		if errors.Is(err, ErrStatusConflict) {
			return ErrNotPending
		}
		if err != nil {
			return err
		}
		verified = updated
		return nil
	})
	if errors.Is(operationError, ErrInvalidCode) {
		operationError = ledger.recordFailedVerification(ctx, transactionID)
	}
	ledger.logOperation(ctx, OperationLog{
		Operation:     operationVerifyTopup,
		UserID:        verified.UserID,
		TransactionID: transactionID,
		Amount:        verified.Amount.Cents(),
		Error:         operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	return verified, nil
}

// recordFailedVerification commits the wrong-code count outside the rejected
// verification and returns the error the caller should see.
func (ledger *Ledger) recordFailedVerification(ctx context.Context, transactionID TransactionID) error {
	exhausted := false
	err := ledger.store.WithTx(ctx, func(ctx context.Context, txRecords Records) error {
		attempts, err := txRecords.RecordFailedVerification(ctx, transactionID)
		if err != nil {
			return err
		}
		if attempts < maxVerifyAttempts {
			return nil
		}
		_, err = txRecords.UpdateTransactionStatus(ctx, transactionID, StatusPending, TransactionChange{
			To:     StatusFailed,
			Reason: ErrTooManyAttempts.Error(),
			At:     ledger.nowFn().UTC(),
		})
		if err != nil {
			return err
		}
		exhausted = true
		return nil
	})
	switch {
	case errors.Is(err, ErrStatusConflict):
		return ErrNotPending
	case err != nil:
		return err
	case exhausted:
		return ErrTooManyAttempts
	default:
		return ErrInvalidCode
	}
}

// ApproveTopup completes a verified topup and credits the balance in the same transaction.
func (ledger *Ledger) ApproveTopup(ctx context.Context, transactionID TransactionID, approverID UserID) (Transaction, error) {
	var (
		approved Transaction
		balance  Cents
	)
	operationError := ledger.store.WithTx(ctx, func(ctx context.Context, txRecords Records) error {
		transaction, err := loadVerifiedTopup(ctx, txRecords, transactionID)
		approved = transaction
		if err != nil {
			return err
		}
		now := ledger.nowFn().UTC()
		updated, err := txRecords.UpdateTransactionStatus(ctx, transactionID, StatusVerified, TransactionChange{
			To:         StatusCompleted,
			ApprovedBy: approverID,
			At:         now,
		})
		if errors.Is(err, ErrStatusConflict) {
			return ErrAlreadyProcessed
		}
		if err != nil {
			return err
		}
		approved = updated
		next, err := ApplyDelta(ctx, txRecords, updated.UserID, updated.Amount.Cents(), RefForTransaction(transactionID), now)
		if err != nil {
			return err
		}
		balance = next
		return nil
	})
	ledger.logOperation(ctx, OperationLog{
		Operation:     operationApproveTopup,
		UserID:        approved.UserID,
		TransactionID: transactionID,
		Reference:     RefForTransaction(transactionID),
		Amount:        approved.Amount.Cents(),
		Balance:       balance,
		Error:         operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	ledger.notify(ctx, notice.Notice{
		Kind:        notice.KindTopupApproved,
		UserID:      approved.UserID.Uint64(),
		Subject:     "Wallet topup approved",
		AmountCents: approved.Amount.Cents().Int64(),
		Details:     map[string]string{"transaction_id": transactionID.String(), "balance": balance.String()},
	})
	return approved, nil
}

// RejectTopup fails a verified topup without touching the balance.
func (ledger *Ledger) RejectTopup(ctx context.Context, transactionID TransactionID, approverID UserID, reason string) (Transaction, error) {
	var rejected Transaction
	operationError := ledger.store.WithTx(ctx, func(ctx context.Context, txRecords Records) error {
		transaction, err := loadVerifiedTopup(ctx, txRecords, transactionID)
		rejected = transaction
		if err != nil {
			return err
		}
		updated, err := txRecords.UpdateTransactionStatus(ctx, transactionID, StatusVerified, TransactionChange{
			To:         StatusFailed,
			ApprovedBy: approverID,
			Reason:     strings.TrimSpace(reason),
			At:         ledger.nowFn().UTC(),
		})
		if errors.Is(err, ErrStatusConflict) {
			return ErrAlreadyProcessed
		}
		if err != nil {
			return err
		}
		rejected = updated
		return nil
	})
	ledger.logOperation(ctx, OperationLog{
		Operation:     operationRejectTopup,
		UserID:        rejected.UserID,
		TransactionID: transactionID,
		Amount:        rejected.Amount.Cents(),
		Error:         operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	ledger.notify(ctx, notice.Notice{
		Kind:        notice.KindTopupRejected,
		UserID:      rejected.UserID.Uint64(),
		Subject:     "Wallet topup rejected",
		AmountCents: rejected.Amount.Cents().Int64(),
		Details:     map[string]string{"transaction_id": transactionID.String(), "reason": rejected.Reason},
	})
	return rejected, nil
}

func loadVerifiedTopup(ctx context.Context, records Records, transactionID TransactionID) (Transaction, error) {
	transaction, err := records.GetTransaction(ctx, transactionID)
	if err != nil {
		return Transaction{}, err
	}
	if transaction.Type != TransactionTopup || transaction.Status.Final() {
		return transaction, ErrAlreadyProcessed
	}
	if transaction.Status != StatusVerified {
		return transaction, ErrNotVerified
	}
	return transaction, nil
}

func generateVerificationCode() (string, error) {
	var builder strings.Builder
	builder.Grow(verificationCodeDigits)
	ten := big.NewInt(10)
	for index := 0; index < verificationCodeDigits; index++ {
		digit, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		builder.WriteByte(byte('0' + digit.Int64()))
	}
	return builder.String(), nil
}
