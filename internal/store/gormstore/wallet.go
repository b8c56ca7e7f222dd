package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (store *Store) GetBalance(ctx context.Context, userID wallet.UserID) (wallet.Cents, error) {
	return store.readBalance(store.db.WithContext(ctx), userID, errorCodeGet)
}

func (store *Store) LockBalance(ctx context.Context, userID wallet.UserID) (wallet.Cents, error) {
	return store.readBalance(store.locking(ctx), userID, errorCodeLock)
}

func (store *Store) readBalance(query *gorm.DB, userID wallet.UserID, code string) (wallet.Cents, error) {
	var user User
	err := query.Select("id", "wallet_balance_cents").Where("id = ?", userID.Uint64()).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, wrapStoreError(errorSubjectBalance, code, wallet.ErrNotFound)
		}
		return 0, wrapStoreError(errorSubjectBalance, code, err)
	}
	balance, err := wallet.NewBalance(user.WalletBalanceCents)
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
	}
	return balance, nil
}

func (store *Store) FindEntry(ctx context.Context, userID wallet.UserID, ref wallet.TransactionRef) (wallet.Entry, bool, error) {
	var row LedgerEntry
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND transaction_ref = ?", userID.Uint64(), ref.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Entry{}, false, nil
	}
	if err != nil {
		return wallet.Entry{}, false, wrapStoreError(errorSubjectEntry, errorCodeLookup, err)
	}
	entry, err := mapLedgerEntry(row)
	if err != nil {
		return wallet.Entry{}, false, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, true, nil
}

// AppendEntry inserts the ledger line and writes its balance_after onto the user row.
func (store *Store) AppendEntry(ctx context.Context, entry wallet.Entry) error {
	row := LedgerEntry{
		UserID:            entry.UserID.Uint64(),
		TransactionRef:    entry.Ref.String(),
		DeltaCents:        entry.Delta.Int64(),
		BalanceAfterCents: entry.BalanceAfter.Int64(),
		CreatedAt:         entry.CreatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err, constraintLedgerEntryRef) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, wallet.ErrDuplicateReference)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	result := store.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", entry.UserID.Uint64()).
		Updates(map[string]any{
			"wallet_balance_cents": entry.BalanceAfter.Int64(),
			"updated_at":           row.CreatedAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBalance, errorCodeUpdate, wallet.ErrNotFound)
	}
	return nil
}

func (store *Store) CreateTransaction(ctx context.Context, transaction wallet.Transaction) error {
	var reference *string
	if !transaction.Reference.IsZero() {
		reference = stringPointer(transaction.Reference.String())
	}
	row := WalletTransaction{
		ID:               transaction.ID.String(),
		UserID:           transaction.UserID.Uint64(),
		Type:             transaction.Type.String(),
		AmountCents:      int64(transaction.Amount),
		Status:           transaction.Status.String(),
		Method:           transaction.Method,
		Mobile:           transaction.Mobile,
		VerificationCode: transaction.VerificationCode,
		ApprovedBy:       userPointer(transaction.ApprovedBy),
		Reason:           transaction.Reason,
		Reference:        reference,
		Metadata:         datatypesJSON(transaction.Metadata.String()),
		CreatedAt:        transaction.CreatedAt.UTC(),
		UpdatedAt:        transaction.UpdatedAt.UTC(),
		VerifiedAt:       utcPointer(transaction.VerifiedAt),
		CompletedAt:      utcPointer(transaction.CompletedAt),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if reference != nil && isUniqueViolation(err, constraintTransactionReference) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, wallet.ErrDuplicateReference)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetTransaction(ctx context.Context, transactionID wallet.TransactionID) (wallet.Transaction, error) {
	if _, err := uuid.Parse(transactionID.String()); err != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, wallet.ErrNotFound)
	}
	var row WalletTransaction
	err := store.db.WithContext(ctx).Where("id = ?", transactionID.String()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wallet.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, wallet.ErrNotFound)
		}
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, err)
	}
	transaction, err := mapTransaction(row)
	if err != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return transaction, nil
}

func (store *Store) FindTransactionByReference(ctx context.Context, reference wallet.TransactionRef) (wallet.Transaction, bool, error) {
	var row WalletTransaction
	err := store.db.WithContext(ctx).Where("reference = ?", reference.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Transaction{}, false, nil
	}
	if err != nil {
		return wallet.Transaction{}, false, wrapStoreError(errorSubjectTransaction, errorCodeLookup, err)
	}
	transaction, err := mapTransaction(row)
	if err != nil {
		return wallet.Transaction{}, false, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return transaction, true, nil
}

// UpdateTransactionStatus moves a transaction from one status to another.
// Zero affected rows means another writer moved it first.
func (store *Store) UpdateTransactionStatus(ctx context.Context, transactionID wallet.TransactionID, from wallet.TransactionStatus, change wallet.TransactionChange) (wallet.Transaction, error) {
	at := change.At.UTC()
	updates := map[string]any{
		"status":     change.To.String(),
		"updated_at": at,
	}
	if !change.ApprovedBy.IsZero() {
		updates["approved_by"] = change.ApprovedBy.Uint64()
	}
	if change.Reason != "" {
		updates["reason"] = change.Reason
	}
	switch change.To {
	case wallet.StatusVerified:
		updates["verified_at"] = at
	case wallet.StatusCompleted, wallet.StatusFailed:
		updates["completed_at"] = at
	}
	result := store.db.WithContext(ctx).
		Model(&WalletTransaction{}).
		Where("id = ? AND status = ?", transactionID.String(), from.String()).
		Updates(updates)
	if result.Error != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetTransaction(ctx, transactionID); err != nil {
			return wallet.Transaction{}, err
		}
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, wallet.ErrStatusConflict)
	}
	return store.GetTransaction(ctx, transactionID)
}

func (store *Store) RecordFailedVerification(ctx context.Context, transactionID wallet.TransactionID) (int, error) {
	result := store.db.WithContext(ctx).
		Model(&WalletTransaction{}).
		Where("id = ? AND status = ?", transactionID.String(), wallet.StatusPending.String()).
		UpdateColumn("verify_attempts", gorm.Expr("verify_attempts + ?", 1))
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectTransaction, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, wrapStoreError(errorSubjectTransaction, errorCodeUpdate, wallet.ErrStatusConflict)
	}
	transaction, err := store.GetTransaction(ctx, transactionID)
	if err != nil {
		return 0, err
	}
	return transaction.VerifyAttempts, nil
}

func (store *Store) SumCompleted(ctx context.Context, userID wallet.UserID) (wallet.Cents, wallet.Cents, error) {
	var sums sqlCreditsDebits
	err := store.db.WithContext(ctx).
		Model(&WalletTransaction{}).
		Select(
			"coalesce(sum(case when type in (?, ?) then amount_cents else 0 end),0) as credits, "+
				"coalesce(sum(case when type = ? then amount_cents else 0 end),0) as debits",
			wallet.TransactionTopup.String(), wallet.TransactionRefund.String(), wallet.TransactionPayment.String(),
		).
		Where("user_id = ? AND status = ?", userID.Uint64(), wallet.StatusCompleted.String()).
		Scan(&sums).Error
	if err != nil {
		return 0, 0, wrapStoreError(errorSubjectTransaction, errorCodeSumCompleted, err)
	}
	return wallet.Cents(sums.Credits), wallet.Cents(sums.Debits), nil
}

func (store *Store) ListTransactions(ctx context.Context, userID wallet.UserID, limit int) ([]wallet.Transaction, error) {
	var rows []WalletTransaction
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.Uint64()).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	transactions := make([]wallet.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func (store *Store) ListEntries(ctx context.Context, userID wallet.UserID, limit int) ([]wallet.Entry, error) {
	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.Uint64()).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]wallet.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func mapLedgerEntry(row LedgerEntry) (wallet.Entry, error) {
	userID, err := wallet.NewUserID(row.UserID)
	if err != nil {
		return wallet.Entry{}, err
	}
	ref, err := wallet.NewTransactionRef(row.TransactionRef)
	if err != nil {
		return wallet.Entry{}, err
	}
	balanceAfter, err := wallet.NewBalance(row.BalanceAfterCents)
	if err != nil {
		return wallet.Entry{}, err
	}
	return wallet.Entry{
		UserID:       userID,
		Ref:          ref,
		Delta:        wallet.Cents(row.DeltaCents),
		BalanceAfter: balanceAfter,
		CreatedAt:    row.CreatedAt.UTC(),
	}, nil
}

func mapTransaction(row WalletTransaction) (wallet.Transaction, error) {
	transactionID, err := wallet.NewTransactionID(row.ID)
	if err != nil {
		return wallet.Transaction{}, err
	}
	userID, err := wallet.NewUserID(row.UserID)
	if err != nil {
		return wallet.Transaction{}, err
	}
	transactionType, err := wallet.ParseTransactionType(row.Type)
	if err != nil {
		return wallet.Transaction{}, err
	}
	amount, err := wallet.NewPositiveCents(row.AmountCents)
	if err != nil {
		return wallet.Transaction{}, err
	}
	status, err := wallet.ParseTransactionStatus(row.Status)
	if err != nil {
		return wallet.Transaction{}, err
	}
	approvedBy, err := userOrZero(row.ApprovedBy)
	if err != nil {
		return wallet.Transaction{}, err
	}
	var reference wallet.TransactionRef
	if row.Reference != nil {
		reference, err = wallet.NewTransactionRef(*row.Reference)
		if err != nil {
			return wallet.Transaction{}, err
		}
	}
	metadata, err := wallet.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return wallet.Transaction{}, err
	}
	return wallet.Transaction{
		ID:               transactionID,
		UserID:           userID,
		Type:             transactionType,
		Amount:           amount,
		Status:           status,
		Method:           row.Method,
		Mobile:           row.Mobile,
		VerificationCode: row.VerificationCode,
		VerifyAttempts:   row.VerifyAttempts,
		ApprovedBy:       approvedBy,
		Reason:           row.Reason,
		Reference:        reference,
		Metadata:         metadata,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
		VerifiedAt:       utcPointer(row.VerifiedAt),
		CompletedAt:      utcPointer(row.CompletedAt),
	}, nil
}
