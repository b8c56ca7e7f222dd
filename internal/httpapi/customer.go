package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handleAvailableSlots(ctx *gin.Context) {
	if _, ok := caller(ctx); !ok {
		return
	}
	parkingID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	slots, err := handler.bookings.AvailableSlots(requestCtx, booking.ParkingID(parkingID))
	if err != nil {
		handler.respondError(ctx, "available slots", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"parking_id": parkingID, "available": len(slots), "slots": newSlotPayloads(slots)})
}

func (handler *httpHandler) handleCreateParkingBooking(ctx *gin.Context) {
	userID, ok := caller(ctx)
	if !ok {
		return
	}
	var request createParkingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected slot_id and hours"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	created, err := handler.bookings.CreateParkingBooking(requestCtx, userID, booking.SlotID(request.SlotID), request.Hours)
	if err != nil {
		handler.respondError(ctx, "create parking booking", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"parking_booking": newParkingBookingPayload(created)})
}

func (handler *httpHandler) handleGetParkingBooking(ctx *gin.Context) {
	userID, ok := caller(ctx)
	if !ok {
		return
	}
	bookingID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	found, err := handler.bookings.ParkingBooking(requestCtx, booking.ParkingBookingID(bookingID))
	if err == nil && found.UserID != userID {
		err = booking.ErrNotFound
	}
	if err != nil {
		handler.respondError(ctx, "get parking booking", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"parking_booking": newParkingBookingPayload(found)})
}

func (handler *httpHandler) handleCancelParkingBooking(ctx *gin.Context) {
	handler.parkingTransition(ctx, "cancel parking booking", func(requestCtx context.Context, bookingID booking.ParkingBookingID, userID wallet.UserID) (booking.ParkingBooking, error) {
		return handler.bookings.CancelParkingBooking(requestCtx, bookingID, booking.Customer(userID))
	})
}

func (handler *httpHandler) handleRequestCheckout(ctx *gin.Context) {
	handler.parkingTransition(ctx, "request checkout", func(requestCtx context.Context, bookingID booking.ParkingBookingID, userID wallet.UserID) (booking.ParkingBooking, error) {
		return handler.bookings.RequestCheckout(requestCtx, bookingID, userID)
	})
}

func (handler *httpHandler) handlePayCheckout(ctx *gin.Context) {
	handler.parkingTransition(ctx, "pay checkout", func(requestCtx context.Context, bookingID booking.ParkingBookingID, userID wallet.UserID) (booking.ParkingBooking, error) {
		return handler.bookings.PayCheckout(requestCtx, bookingID, userID)
	})
}

func (handler *httpHandler) handleCreateServiceOrder(ctx *gin.Context) {
	userID, ok := caller(ctx)
	if !ok {
		return
	}
	var request createServiceOrderRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected service_id and RFC 3339 booking_time"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	created, err := handler.bookings.CreateServiceOrder(requestCtx, userID, booking.ServiceID(request.ServiceID), request.BookingTime, request.Notes)
	if err != nil {
		handler.respondError(ctx, "create service order", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"service_order": newServiceOrderPayload(created)})
}

func (handler *httpHandler) handleGetServiceOrder(ctx *gin.Context) {
	userID, ok := caller(ctx)
	if !ok {
		return
	}
	orderID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	found, err := handler.bookings.ServiceOrder(requestCtx, booking.ServiceOrderID(orderID))
	if err == nil && found.UserID != userID {
		err = booking.ErrNotFound
	}
	if err != nil {
		handler.respondError(ctx, "get service order", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"service_order": newServiceOrderPayload(found)})
}

func (handler *httpHandler) handleCancelServiceOrder(ctx *gin.Context) {
	handler.serviceTransition(ctx, "cancel service order", func(requestCtx context.Context, orderID booking.ServiceOrderID, userID wallet.UserID) (booking.ServiceOrder, error) {
		return handler.bookings.CancelServiceOrder(requestCtx, orderID, booking.Customer(userID))
	})
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	userID, ok := caller(ctx)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_limit", "limit must be an integer"))
			return
		}
		limit = parsed
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balance, err := handler.wallet.Balance(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "wallet balance", err)
		return
	}
	history, err := handler.wallet.History(requestCtx, userID, limit)
	if err != nil {
		handler.respondError(ctx, "wallet history", err)
		return
	}
	transactions := make([]transactionPayload, 0, len(history))
	for _, transaction := range history {
		transactions = append(transactions, newTransactionPayload(transaction))
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": walletPayload{
		UserID:       userID.Uint64(),
		BalanceCents: balance.Int64(),
		Balance:      balance.String(),
		Transactions: transactions,
	}})
}

func (handler *httpHandler) handleInitiateTopup(ctx *gin.Context) {
	userID, ok := caller(ctx)
	if !ok {
		return
	}
	var request initiateTopupRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected amount"))
		return
	}
	amount, err := wallet.ParseAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, "initiate topup", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	created, err := handler.wallet.InitiateTopup(requestCtx, userID, amount, request.Method, request.Mobile)
	if err != nil {
		handler.respondError(ctx, "initiate topup", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"transaction": newTransactionPayload(created)})
}

func (handler *httpHandler) handleVerifyTopup(ctx *gin.Context) {
	userID, ok := caller(ctx)
	if !ok {
		return
	}
	transactionID, err := wallet.NewTransactionID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "verify topup", err)
		return
	}
	var request verifyTopupRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected code"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	existing, err := handler.wallet.Transaction(requestCtx, transactionID)
	if err == nil && existing.UserID != userID {
		err = wallet.ErrNotFound
	}
	if err != nil {
		handler.respondError(ctx, "verify topup", err)
		return
	}
	verified, err := handler.wallet.VerifyTopup(requestCtx, transactionID, request.Code)
	if err != nil {
		handler.respondError(ctx, "verify topup", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transaction": newTransactionPayload(verified)})
}

type parkingAction func(requestCtx context.Context, bookingID booking.ParkingBookingID, userID wallet.UserID) (booking.ParkingBooking, error)

type serviceAction func(requestCtx context.Context, orderID booking.ServiceOrderID, userID wallet.UserID) (booking.ServiceOrder, error)

// parkingTransition resolves the caller and the path id, runs action and renders the booking.
func (handler *httpHandler) parkingTransition(ctx *gin.Context, operation string, action parkingAction) {
	userID, ok := caller(ctx)
	if !ok {
		return
	}
	bookingID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	updated, err := action(requestCtx, booking.ParkingBookingID(bookingID), userID)
	if err != nil {
		handler.respondError(ctx, operation, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"parking_booking": newParkingBookingPayload(updated)})
}

func (handler *httpHandler) serviceTransition(ctx *gin.Context, operation string, action serviceAction) {
	userID, ok := caller(ctx)
	if !ok {
		return
	}
	orderID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	updated, err := action(requestCtx, booking.ServiceOrderID(orderID), userID)
	if err != nil {
		handler.respondError(ctx, operation, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"service_order": newServiceOrderPayload(updated)})
}
