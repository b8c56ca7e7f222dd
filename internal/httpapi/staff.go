package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (handler *httpHandler) handleConfirmParkingBooking(ctx *gin.Context) {
	handler.parkingTransition(ctx, "confirm parking booking", handler.bookings.ConfirmParkingBooking)
}

func (handler *httpHandler) handleActivateParkingBooking(ctx *gin.Context) {
	handler.parkingTransition(ctx, "activate parking booking", handler.bookings.ActivateParkingBooking)
}

func (handler *httpHandler) handleStaffCancelParkingBooking(ctx *gin.Context) {
	handler.parkingTransition(ctx, "cancel parking booking", func(requestCtx context.Context, bookingID booking.ParkingBookingID, staffID wallet.UserID) (booking.ParkingBooking, error) {
		return handler.bookings.CancelParkingBooking(requestCtx, bookingID, booking.StaffMember(staffID))
	})
}

func (handler *httpHandler) handleApproveCheckout(ctx *gin.Context) {
	handler.parkingTransition(ctx, "approve checkout", handler.bookings.ApproveCheckout)
}

func (handler *httpHandler) handleRejectCheckout(ctx *gin.Context) {
	handler.parkingTransition(ctx, "reject checkout", handler.bookings.RejectCheckout)
}

func (handler *httpHandler) handleConfirmServiceOrder(ctx *gin.Context) {
	handler.serviceTransition(ctx, "confirm service order", handler.bookings.ConfirmServiceOrder)
}

func (handler *httpHandler) handleStartServiceOrder(ctx *gin.Context) {
	handler.serviceTransition(ctx, "start service order", handler.bookings.StartServiceOrder)
}

func (handler *httpHandler) handleCompleteServiceOrder(ctx *gin.Context) {
	handler.serviceTransition(ctx, "complete service order", handler.bookings.CompleteServiceOrder)
}

func (handler *httpHandler) handleStaffCancelServiceOrder(ctx *gin.Context) {
	handler.serviceTransition(ctx, "cancel service order", func(requestCtx context.Context, orderID booking.ServiceOrderID, staffID wallet.UserID) (booking.ServiceOrder, error) {
		return handler.bookings.CancelServiceOrder(requestCtx, orderID, booking.StaffMember(staffID))
	})
}

func (handler *httpHandler) handleApproveTopup(ctx *gin.Context) {
	staffID, ok := caller(ctx)
	if !ok {
		return
	}
	transactionID, err := wallet.NewTransactionID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "approve topup", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	approved, err := handler.wallet.ApproveTopup(requestCtx, transactionID, staffID)
	if err != nil {
		handler.respondError(ctx, "approve topup", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transaction": newTransactionPayload(approved)})
}

func (handler *httpHandler) handleRejectTopup(ctx *gin.Context) {
	staffID, ok := caller(ctx)
	if !ok {
		return
	}
	transactionID, err := wallet.NewTransactionID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "reject topup", err)
		return
	}
	var request rejectTopupRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	rejected, err := handler.wallet.RejectTopup(requestCtx, transactionID, staffID, request.Reason)
	if err != nil {
		handler.respondError(ctx, "reject topup", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transaction": newTransactionPayload(rejected)})
}

func (handler *httpHandler) handleReconcile(ctx *gin.Context) {
	rawUserID, ok := pathID(ctx, "user_id")
	if !ok {
		return
	}
	userID, err := wallet.NewUserID(rawUserID)
	if err != nil {
		handler.respondError(ctx, "reconcile wallet", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reconciliation, err := handler.wallet.Reconcile(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "reconcile wallet", err)
		return
	}
	if !reconciliation.Consistent() {
		handler.logger.Warn("wallet balance drift",
			zap.Uint64("user_id", userID.Uint64()),
			zap.Int64("balance_cents", reconciliation.Balance.Int64()),
			zap.Int64("expected_cents", reconciliation.Expected().Int64()),
		)
	}
	ctx.JSON(http.StatusOK, gin.H{"reconciliation": reconciliationPayload{
		UserID:        userID.Uint64(),
		BalanceCents:  reconciliation.Balance.Int64(),
		CreditsCents:  reconciliation.Credits.Int64(),
		DebitsCents:   reconciliation.Debits.Int64(),
		ExpectedCents: reconciliation.Expected().Int64(),
		Consistent:    reconciliation.Consistent(),
	}})
}

func (handler *httpHandler) handleSweep(ctx *gin.Context) {
	if _, ok := caller(ctx); !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	report, err := handler.sweeper.Run(requestCtx)
	if err != nil {
		handler.respondError(ctx, "sweep", err)
		return
	}
	if failures := report.Err(); failures != nil {
		handler.logger.Warn("sweep finished with failures", zap.Error(failures))
	}
	ctx.JSON(http.StatusOK, gin.H{"sweep": newSweepPayload(report)})
}
