package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Order matters: a payment failure wraps the wallet error that caused it.
var errorMappings = []errorMapping{
	{booking.ErrPaymentFailed, http.StatusPaymentRequired, "payment_failed", "wallet payment failed"},
	{booking.ErrPaymentRequired, http.StatusPaymentRequired, "payment_required", "checkout payment outstanding"},
	{wallet.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds", "insufficient wallet balance"},
	{booking.ErrNotFound, http.StatusNotFound, "not_found", "booking not found"},
	{wallet.ErrNotFound, http.StatusNotFound, "not_found", "not found"},
	{booking.ErrAlreadyProcessed, http.StatusConflict, "already_processed", "already processed"},
	{wallet.ErrAlreadyProcessed, http.StatusConflict, "already_processed", "already processed"},
	{booking.ErrInvalidTransition, http.StatusConflict, "invalid_transition", "transition not allowed from the current status"},
	{booking.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable", "slot is not available"},
	{wallet.ErrNotPending, http.StatusConflict, "not_pending", "top-up is not awaiting verification"},
	{wallet.ErrNotVerified, http.StatusConflict, "not_verified", "top-up is not verified"},
	{booking.ErrStatusConflict, http.StatusConflict, "conflict", "booking changed concurrently, retry"},
	{wallet.ErrStatusConflict, http.StatusConflict, "conflict", "transaction changed concurrently, retry"},
	{wallet.ErrTooManyAttempts, http.StatusConflict, "too_many_attempts", "top-up failed after too many wrong codes"},
	{wallet.ErrInvalidCode, http.StatusBadRequest, "invalid_code", "verification code does not match"},
	{booking.ErrInvalidRequest, http.StatusBadRequest, "invalid_request", "invalid request"},
	{wallet.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount", "invalid amount"},
	{wallet.ErrInvalidUserID, http.StatusBadRequest, "invalid_request", "invalid user id"},
	{wallet.ErrInvalidTransactionID, http.StatusBadRequest, "invalid_request", "invalid transaction id"},
}

func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			ctx.JSON(mapping.status, errorResponse(mapping.code, mapping.message))
			return
		}
	}
	handler.logger.Error(operation+" failed", zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, errorResponse("internal", "internal error"))
}
