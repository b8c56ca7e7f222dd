package wallet

const (
	operationApplyDelta    = "apply_delta"
	operationInitiateTopup = "initiate_topup"
	operationVerifyTopup   = "verify_topup"
	operationApproveTopup  = "approve_topup"
	operationRejectTopup   = "reject_topup"
	operationCharge        = "charge"
	operationRefund        = "refund"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	transactionRefPrefix = "txn:"
	methodWallet         = "wallet"

	verificationCodeDigits = 6
	maxVerifyAttempts      = 5
	defaultHistoryLimit    = 20
	maxHistoryLimit        = 200
)
