package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
)

type recordingNotifier struct {
	mutex   sync.Mutex
	notices []notice.Notice
	err     error
}

func (notifier *recordingNotifier) Notify(_ context.Context, message notice.Notice) error {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.notices = append(notifier.notices, message)
	return notifier.err
}

type recordingFailures struct {
	mutex sync.Mutex
	errs  []error
}

func (failures *recordingFailures) LogNotifyFailure(_ context.Context, _ notice.Notice, err error) {
	failures.mutex.Lock()
	defer failures.mutex.Unlock()
	failures.errs = append(failures.errs, err)
}

func initiateVerified(test *testing.T, ledger *Ledger, userID UserID, amount int64) Transaction {
	test.Helper()
	topup, err := ledger.InitiateTopup(context.Background(), userID, mustAmount(test, amount), "bkash", "01700000000")
	if err != nil {
		test.Fatalf("initiate: %v", err)
	}
	verified, err := ledger.VerifyTopup(context.Background(), topup.ID, topup.VerificationCode)
	if err != nil {
		test.Fatalf("verify: %v", err)
	}
	return verified
}

func TestTopupLifecycleCreditsOnApproval(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, map[uint64]Cents{1: 0})
	notifier := &recordingNotifier{}
	ledger := mustNewLedger(test, store, WithNotifier(notifier, nil))
	userID := mustUserID(test, 1)
	staffID := mustUserID(test, 500)
	ctx := context.Background()

	topup, err := ledger.InitiateTopup(ctx, userID, mustAmount(test, 5000), " bkash ", "01700000000")
	if err != nil {
		test.Fatalf("initiate: %v", err)
	}
	if topup.Status != StatusPending || topup.Method != "bkash" || topup.VerificationCode != "123456" {
		test.Fatalf("unexpected pending topup: %+v", topup)
	}
	verified, err := ledger.VerifyTopup(ctx, topup.ID, "123456")
	if err != nil {
		test.Fatalf("verify: %v", err)
	}
	if verified.Status != StatusVerified || verified.VerifiedAt == nil {
		test.Fatalf("unexpected verified topup: %+v", verified)
	}
	if store.balance(test, 1) != 0 {
		test.Fatalf("verification must not touch the balance")
	}
	approved, err := ledger.ApproveTopup(ctx, topup.ID, staffID)
	if err != nil {
		test.Fatalf("approve: %v", err)
	}
	if approved.Status != StatusCompleted || approved.ApprovedBy != staffID {
		test.Fatalf("unexpected approved topup: %+v", approved)
	}
	if store.balance(test, 1) != 5000 {
		test.Fatalf("expected balance 5000, got %d", store.balance(test, 1))
	}

	if len(notifier.notices) != 2 {
		test.Fatalf("expected two notices, got %d", len(notifier.notices))
	}
	if notifier.notices[0].Kind != notice.KindVerificationCode || notifier.notices[0].Code != "123456" {
		test.Fatalf("unexpected verification notice: %+v", notifier.notices[0])
	}
	if notifier.notices[1].Kind != notice.KindTopupApproved || notifier.notices[1].AmountCents != 5000 {
		test.Fatalf("unexpected approval notice: %+v", notifier.notices[1])
	}
}

func TestVerifyTopupFailures(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, map[uint64]Cents{1: 0})
	ledger := mustNewLedger(test, store)
	userID := mustUserID(test, 1)
	ctx := context.Background()

	topup, err := ledger.InitiateTopup(ctx, userID, mustAmount(test, 100), "nagad", "")
	if err != nil {
		test.Fatalf("initiate: %v", err)
	}
	if _, err := ledger.VerifyTopup(ctx, topup.ID, "654321"); !errors.Is(err, ErrInvalidCode) {
		test.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if store.transaction(test, topup.ID).Status != StatusPending {
		test.Fatalf("wrong code must leave the topup pending")
	}
	missing, _ := NewTransactionID("missing")
	if _, err := ledger.VerifyTopup(ctx, missing, "123456"); !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := ledger.VerifyTopup(ctx, topup.ID, "123456"); err != nil {
		test.Fatalf("verify: %v", err)
	}
	if _, err := ledger.VerifyTopup(ctx, topup.ID, "123456"); !errors.Is(err, ErrNotPending) {
		test.Fatalf("expected ErrNotPending on second verification, got %v", err)
	}
}

func TestVerifyTopupFailsAfterRepeatedWrongCodes(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, map[uint64]Cents{1: 0})
	ledger := mustNewLedger(test, store)
	ctx := context.Background()

	topup, err := ledger.InitiateTopup(ctx, mustUserID(test, 1), mustAmount(test, 2500), "bkash", "")
	if err != nil {
		test.Fatalf("initiate: %v", err)
	}
	for attempt := 1; attempt < maxVerifyAttempts; attempt++ {
		if _, err := ledger.VerifyTopup(ctx, topup.ID, "000000"); !errors.Is(err, ErrInvalidCode) {
			test.Fatalf("attempt %d: expected ErrInvalidCode, got %v", attempt, err)
		}
		if recorded := store.transaction(test, topup.ID); recorded.VerifyAttempts != attempt || recorded.Status != StatusPending {
			test.Fatalf("attempt %d: unexpected topup %+v", attempt, recorded)
		}
	}
	if _, err := ledger.VerifyTopup(ctx, topup.ID, "000000"); !errors.Is(err, ErrTooManyAttempts) {
		test.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	failed := store.transaction(test, topup.ID)
	if failed.Status != StatusFailed || failed.CompletedAt == nil || failed.Reason == "" {
		test.Fatalf("expected failed topup, got %+v", failed)
	}
	if _, err := ledger.VerifyTopup(ctx, topup.ID, "123456"); !errors.Is(err, ErrNotPending) {
		test.Fatalf("expected ErrNotPending after lockout, got %v", err)
	}
	if store.balance(test, 1) != 0 {
		test.Fatalf("failed topup must not touch the balance")
	}
}

func TestApproveTopupRequiresVerification(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, map[uint64]Cents{1: 0})
	ledger := mustNewLedger(test, store)
	ctx := context.Background()

	topup, err := ledger.InitiateTopup(ctx, mustUserID(test, 1), mustAmount(test, 100), "card", "")
	if err != nil {
		test.Fatalf("initiate: %v", err)
	}
	if _, err := ledger.ApproveTopup(ctx, topup.ID, mustUserID(test, 2)); !errors.Is(err, ErrNotVerified) {
		test.Fatalf("expected ErrNotVerified, got %v", err)
	}
	if _, err := ledger.RejectTopup(ctx, topup.ID, mustUserID(test, 2), "no proof"); !errors.Is(err, ErrNotVerified) {
		test.Fatalf("expected ErrNotVerified on reject, got %v", err)
	}
	if store.balance(test, 1) != 0 {
		test.Fatalf("expected untouched balance")
	}
}

func TestApproveTopupTwiceIsAlreadyProcessed(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, map[uint64]Cents{1: 0})
	ledger := mustNewLedger(test, store)
	verified := initiateVerified(test, ledger, mustUserID(test, 1), 700)
	ctx := context.Background()

	if _, err := ledger.ApproveTopup(ctx, verified.ID, mustUserID(test, 2)); err != nil {
		test.Fatalf("approve: %v", err)
	}
	if _, err := ledger.ApproveTopup(ctx, verified.ID, mustUserID(test, 2)); !errors.Is(err, ErrAlreadyProcessed) {
		test.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if _, err := ledger.RejectTopup(ctx, verified.ID, mustUserID(test, 2), "late"); !errors.Is(err, ErrAlreadyProcessed) {
		test.Fatalf("expected ErrAlreadyProcessed on reject, got %v", err)
	}
	if store.balance(test, 1) != 700 {
		test.Fatalf("expected a single credit, got %d", store.balance(test, 1))
	}
}

func TestConcurrentApprovalsCreditOnce(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, map[uint64]Cents{1: 0})
	ledger := mustNewLedger(test, store)
	verified := initiateVerified(test, ledger, mustUserID(test, 1), 1200)
	staffID := mustUserID(test, 2)

	const workers = 8
	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		successes int
		repeats   int
	)
	for worker := 0; worker < workers; worker++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			_, err := ledger.ApproveTopup(context.Background(), verified.ID, staffID)
			mutex.Lock()
			defer mutex.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyProcessed):
				repeats++
			}
		}()
	}
	waitGroup.Wait()

	if successes != 1 || repeats != workers-1 {
		test.Fatalf("expected one success and %d repeats, got %d and %d", workers-1, successes, repeats)
	}
	if store.balance(test, 1) != 1200 {
		test.Fatalf("expected balance 1200, got %d", store.balance(test, 1))
	}
}

func TestRejectTopupLeavesBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, map[uint64]Cents{1: 250})
	notifier := &recordingNotifier{}
	ledger := mustNewLedger(test, store, WithNotifier(notifier, nil))
	verified := initiateVerified(test, ledger, mustUserID(test, 1), 900)

	rejected, err := ledger.RejectTopup(context.Background(), verified.ID, mustUserID(test, 2), " receipt mismatch ")
	if err != nil {
		test.Fatalf("reject: %v", err)
	}
	if rejected.Status != StatusFailed || rejected.Reason != "receipt mismatch" {
		test.Fatalf("unexpected rejected topup: %+v", rejected)
	}
	if store.balance(test, 1) != 250 {
		test.Fatalf("expected untouched balance, got %d", store.balance(test, 1))
	}
	last := notifier.notices[len(notifier.notices)-1]
	if last.Kind != notice.KindTopupRejected || last.Details["reason"] != "receipt mismatch" {
		test.Fatalf("unexpected rejection notice: %+v", last)
	}
}

func TestNotifierFailureDoesNotFailTopup(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, map[uint64]Cents{1: 0})
	deliveryErr := errors.New("smtp unavailable")
	notifier := &recordingNotifier{err: deliveryErr}
	failures := &recordingFailures{}
	ledger := mustNewLedger(test, store, WithNotifier(notifier, failures))

	topup, err := ledger.InitiateTopup(context.Background(), mustUserID(test, 1), mustAmount(test, 100), "card", "")
	if err != nil {
		test.Fatalf("initiate must succeed despite notifier failure: %v", err)
	}
	if store.transaction(test, topup.ID).Status != StatusPending {
		test.Fatalf("expected persisted pending topup")
	}
	if len(failures.errs) != 1 || !errors.Is(failures.errs[0], deliveryErr) {
		test.Fatalf("expected failure to be reported, got %v", failures.errs)
	}
}

func TestInitiateTopupUnknownUser(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, map[uint64]Cents{1: 0})
	ledger := mustNewLedger(test, store)

	if _, err := ledger.InitiateTopup(context.Background(), mustUserID(test, 42), mustAmount(test, 100), "card", ""); !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.transactionCount() != 0 {
		test.Fatalf("expected nothing persisted")
	}
}

func TestGenerateVerificationCode(test *testing.T) {
	test.Parallel()
	code, err := generateVerificationCode()
	if err != nil {
		test.Fatalf("generate: %v", err)
	}
	if len(code) != verificationCodeDigits {
		test.Fatalf("expected %d digits, got %q", verificationCodeDigits, code)
	}
	for _, character := range code {
		if character < '0' || character > '9' {
			test.Fatalf("expected digits only, got %q", code)
		}
	}
}
