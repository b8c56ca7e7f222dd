// Package httpapi exposes the booking engine and the wallet over HTTP for
// customers and staff. Sessions are TAuth cookies validated by sessionvalidator.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/sweep"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const claimsContextKey = "auth_claims"

// Dependencies are the domain services served by the API.
type Dependencies struct {
	Bookings *booking.Service
	Wallet   *wallet.Ledger
	Sweeper  *sweep.Sweeper
	Logger   *zap.Logger
}

// Run serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	handler, err := newHandler(cfg, deps)
	if err != nil {
		return err
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           setupRouter(cfg, handler, validator),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		handler.logger.Info("http api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			handler.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func newHandler(cfg Config, deps Dependencies) (*httpHandler, error) {
	if deps.Bookings == nil || deps.Wallet == nil || deps.Sweeper == nil {
		return nil, fmt.Errorf("httpapi: missing dependency")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpHandler{
		logger:   logger,
		bookings: deps.Bookings,
		wallet:   deps.Wallet,
		sweeper:  deps.Sweeper,
		cfg:      cfg,
	}, nil
}

func setupRouter(cfg Config, handler *httpHandler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))

	api.GET("/parkings/:id/slots", handler.handleAvailableSlots)
	api.POST("/parking-bookings", handler.handleCreateParkingBooking)
	api.GET("/parking-bookings/:id", handler.handleGetParkingBooking)
	api.POST("/parking-bookings/:id/cancel", handler.handleCancelParkingBooking)
	api.POST("/parking-bookings/:id/checkout", handler.handleRequestCheckout)
	api.POST("/parking-bookings/:id/checkout/payment", handler.handlePayCheckout)
	api.POST("/service-orders", handler.handleCreateServiceOrder)
	api.GET("/service-orders/:id", handler.handleGetServiceOrder)
	api.POST("/service-orders/:id/cancel", handler.handleCancelServiceOrder)
	api.GET("/wallet", handler.handleWallet)
	api.POST("/wallet/topups", handler.handleInitiateTopup)
	api.POST("/wallet/topups/:id/verify", handler.handleVerifyTopup)

	staff := api.Group("/staff")
	staff.Use(requireRole(cfg.StaffRole))
	staff.POST("/parking-bookings/:id/confirm", handler.handleConfirmParkingBooking)
	staff.POST("/parking-bookings/:id/activate", handler.handleActivateParkingBooking)
	staff.POST("/parking-bookings/:id/cancel", handler.handleStaffCancelParkingBooking)
	staff.POST("/parking-bookings/:id/checkout/approve", handler.handleApproveCheckout)
	staff.POST("/parking-bookings/:id/checkout/reject", handler.handleRejectCheckout)
	staff.POST("/service-orders/:id/confirm", handler.handleConfirmServiceOrder)
	staff.POST("/service-orders/:id/start", handler.handleStartServiceOrder)
	staff.POST("/service-orders/:id/complete", handler.handleCompleteServiceOrder)
	staff.POST("/service-orders/:id/cancel", handler.handleStaffCancelServiceOrder)
	staff.POST("/wallet/topups/:id/approve", handler.handleApproveTopup)
	staff.POST("/wallet/topups/:id/reject", handler.handleRejectTopup)
	staff.GET("/wallets/:user_id/reconciliation", handler.handleReconcile)
	staff.POST("/sweep", handler.handleSweep)

	return router
}

type httpHandler struct {
	logger   *zap.Logger
	bookings *booking.Service
	wallet   *wallet.Ledger
	sweeper  *sweep.Sweeper
	cfg      Config
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

// caller resolves the numeric user id of the session or writes a 401.
func caller(ctx *gin.Context) (wallet.UserID, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return wallet.UserID{}, false
	}
	userID, err := wallet.ParseUserID(claims.GetUserID())
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "session user id is not numeric"))
		return wallet.UserID{}, false
	}
	return userID, true
}

func requireRole(role string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := getClaims(ctx)
		if claims == nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		for _, granted := range claims.GetUserRoles() {
			if granted == role {
				ctx.Next()
				return
			}
		}
		ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "staff role required"))
	}
}

func pathID(ctx *gin.Context, name string) (uint64, bool) {
	parsed, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || parsed == 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_id", fmt.Sprintf("%s must be a positive integer", name)))
		return 0, false
	}
	return parsed, true
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
