package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/sweep"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningKey  = "secret-key"
	testHourlyRate  = 6000
	testWashPrice   = 1500
	testWashMinutes = 45
)

type apiFixture struct {
	server   *httptest.Server
	cfg      Config
	customer wallet.UserID
	other    wallet.UserID
	staff    wallet.UserID
	slotIDs  []booking.SlotID
}

func newAPIFixture(test *testing.T) apiFixture {
	test.Helper()
	database, err := gorm.Open(sqlite.Open(test.TempDir()+"/parkwash.db"), &gorm.Config{})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	test.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	store := gormstore.New(database)
	if err := store.Migrate(ctx); err != nil {
		test.Fatalf("migrate failed: %v", err)
	}
	customer := mustCreateUser(test, store, "customer@example.com")
	other := mustCreateUser(test, store, "other@example.com")
	staff := mustCreateUser(test, store, "staff@example.com")
	parkingID, err := store.CreateParking(ctx, "Central", testHourlyRate, []string{"A1", "A2"})
	if err != nil {
		test.Fatalf("parking seed failed: %v", err)
	}
	if _, err := store.CreateService(ctx, "Full Wash", testWashPrice, testWashMinutes); err != nil {
		test.Fatalf("service seed failed: %v", err)
	}
	slots, err := store.ListAvailableSlots(ctx, parkingID)
	if err != nil {
		test.Fatalf("list slots failed: %v", err)
	}
	slotIDs := make([]booking.SlotID, 0, len(slots))
	for _, slot := range slots {
		slotIDs = append(slotIDs, slot.ID)
	}

	now := func() time.Time { return time.Now().UTC() }
	ledger, err := wallet.NewLedger(store.Wallet(), now, wallet.WithCodeGenerator(func() (string, error) { return "424242", nil }))
	if err != nil {
		test.Fatalf("ledger init failed: %v", err)
	}
	bookings, err := booking.NewService(store.Bookings(), ledger, now)
	if err != nil {
		test.Fatalf("booking service init failed: %v", err)
	}
	sweeper, err := sweep.New(store, bookings, now)
	if err != nil {
		test.Fatalf("sweeper init failed: %v", err)
	}

	cfg := Config{
		AllowedOrigins:    []string{"http://localhost:8000"},
		SessionSigningKey: testSigningKey,
	}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("config validate failed: %v", err)
	}
	handler, err := newHandler(cfg, Dependencies{Bookings: bookings, Wallet: ledger, Sweeper: sweeper, Logger: zap.NewNop()})
	if err != nil {
		test.Fatalf("handler init failed: %v", err)
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		test.Fatalf("validator init failed: %v", err)
	}
	server := httptest.NewServer(setupRouter(cfg, handler, validator))
	test.Cleanup(server.Close)

	return apiFixture{server: server, cfg: cfg, customer: customer, other: other, staff: staff, slotIDs: slotIDs}
}

func mustCreateUser(test *testing.T, store *gormstore.Store, email string) wallet.UserID {
	test.Helper()
	userID, err := store.CreateUser(context.Background(), email, email, "+15550100")
	if err != nil {
		test.Fatalf("user seed failed: %v", err)
	}
	return userID
}

func (fixture apiFixture) cookie(test *testing.T, userID wallet.UserID, roles ...string) *http.Cookie {
	test.Helper()
	claims := &sessionvalidator.Claims{
		UserID:          userID.String(),
		UserEmail:       fmt.Sprintf("user%s@example.com", userID),
		UserDisplayName: "User " + userID.String(),
		UserRoles:       roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    fixture.cfg.SessionIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(fixture.cfg.SessionSigningKey))
	if err != nil {
		test.Fatalf("token signing failed: %v", err)
	}
	return &http.Cookie{Name: fixture.cfg.SessionCookieName, Value: signed}
}

type apiResponse struct {
	ParkingBooking parkingBookingPayload `json:"parking_booking"`
	ServiceOrder   serviceOrderPayload   `json:"service_order"`
	Transaction    transactionPayload    `json:"transaction"`
	Wallet         walletPayload         `json:"wallet"`
	Sweep          sweepPayload          `json:"sweep"`
	Error          struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (fixture apiFixture) do(test *testing.T, method string, path string, cookie *http.Cookie, payload any) (int, apiResponse) {
	test.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			test.Fatalf("marshal failed: %v", err)
		}
	}
	request, err := http.NewRequest(method, fixture.server.URL+path, &body)
	if err != nil {
		test.Fatalf("request init failed: %v", err)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		request.AddCookie(cookie)
	}
	response, err := fixture.server.Client().Do(request)
	if err != nil {
		test.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	var decoded apiResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		test.Fatalf("failed to decode response: %v", err)
	}
	return response.StatusCode, decoded
}

func (fixture apiFixture) fund(test *testing.T, amount string) {
	test.Helper()
	customerCookie := fixture.cookie(test, fixture.customer)
	status, created := fixture.do(test, http.MethodPost, "/api/wallet/topups", customerCookie, map[string]any{"amount": amount, "method": "cash", "mobile": "+15550100"})
	if status != http.StatusCreated {
		test.Fatalf("initiate topup: status %d (%s)", status, created.Error.Code)
	}
	status, verified := fixture.do(test, http.MethodPost, "/api/wallet/topups/"+created.Transaction.ID+"/verify", customerCookie, map[string]any{"code": "424242"})
	if status != http.StatusOK || verified.Transaction.Status != "verified" {
		test.Fatalf("verify topup: status %d %+v", status, verified)
	}
	status, approved := fixture.do(test, http.MethodPost, "/api/staff/wallet/topups/"+created.Transaction.ID+"/approve", fixture.cookie(test, fixture.staff, "staff"), nil)
	if status != http.StatusOK || approved.Transaction.Status != "completed" {
		test.Fatalf("approve topup: status %d %+v", status, approved)
	}
}

func TestWalletTopupOverHTTP(test *testing.T) {
	fixture := newAPIFixture(test)
	fixture.fund(test, "250.00")

	status, response := fixture.do(test, http.MethodGet, "/api/wallet", fixture.cookie(test, fixture.customer), nil)
	if status != http.StatusOK {
		test.Fatalf("wallet: status %d", status)
	}
	if response.Wallet.BalanceCents != 25000 || response.Wallet.Balance != "250.00" {
		test.Fatalf("unexpected wallet %+v", response.Wallet)
	}
	if len(response.Wallet.Transactions) != 1 || response.Wallet.Transactions[0].Type != "topup" {
		test.Fatalf("unexpected history %+v", response.Wallet.Transactions)
	}
}

func TestTopupVerificationErrors(test *testing.T) {
	fixture := newAPIFixture(test)
	customerCookie := fixture.cookie(test, fixture.customer)
	_, created := fixture.do(test, http.MethodPost, "/api/wallet/topups", customerCookie, map[string]any{"amount": "10.00"})

	status, response := fixture.do(test, http.MethodPost, "/api/wallet/topups/"+created.Transaction.ID+"/verify", customerCookie, map[string]any{"code": "000000"})
	if status != http.StatusBadRequest || response.Error.Code != "invalid_code" {
		test.Fatalf("expected invalid_code, got %d %s", status, response.Error.Code)
	}
	status, response = fixture.do(test, http.MethodPost, "/api/wallet/topups/"+created.Transaction.ID+"/verify", fixture.cookie(test, fixture.other), map[string]any{"code": "424242"})
	if status != http.StatusNotFound {
		test.Fatalf("expected 404 for a foreign topup, got %d %s", status, response.Error.Code)
	}
	status, response = fixture.do(test, http.MethodPost, "/api/staff/wallet/topups/"+created.Transaction.ID+"/approve", fixture.cookie(test, fixture.staff, "staff"), nil)
	if status != http.StatusConflict || response.Error.Code != "not_verified" {
		test.Fatalf("expected not_verified, got %d %s", status, response.Error.Code)
	}
	status, response = fixture.do(test, http.MethodPost, "/api/wallet/topups", customerCookie, map[string]any{"amount": "1.234"})
	if status != http.StatusBadRequest || response.Error.Code != "invalid_amount" {
		test.Fatalf("expected invalid_amount, got %d %s", status, response.Error.Code)
	}
	status, response = fixture.do(test, http.MethodPost, "/api/wallet/topups", customerCookie, map[string]any{"amount": "184467440737095516.17"})
	if status != http.StatusBadRequest || response.Error.Code != "invalid_amount" {
		test.Fatalf("expected invalid_amount for an out-of-range amount, got %d %s", status, response.Error.Code)
	}

	verifyPath := "/api/wallet/topups/" + created.Transaction.ID + "/verify"
	for attempt := 2; attempt < 5; attempt++ {
		if status, response := fixture.do(test, http.MethodPost, verifyPath, customerCookie, map[string]any{"code": "000000"}); status != http.StatusBadRequest || response.Error.Code != "invalid_code" {
			test.Fatalf("attempt %d: expected invalid_code, got %d %s", attempt, status, response.Error.Code)
		}
	}
	status, response = fixture.do(test, http.MethodPost, verifyPath, customerCookie, map[string]any{"code": "000000"})
	if status != http.StatusConflict || response.Error.Code != "too_many_attempts" {
		test.Fatalf("expected too_many_attempts, got %d %s", status, response.Error.Code)
	}
	status, response = fixture.do(test, http.MethodPost, verifyPath, customerCookie, map[string]any{"code": "424242"})
	if status != http.StatusConflict || response.Error.Code != "not_pending" {
		test.Fatalf("expected not_pending after lockout, got %d %s", status, response.Error.Code)
	}
}

func TestParkingLifecycleOverHTTP(test *testing.T) {
	fixture := newAPIFixture(test)
	fixture.fund(test, "500.00")
	customerCookie := fixture.cookie(test, fixture.customer)
	staffCookie := fixture.cookie(test, fixture.staff, "staff")

	status, created := fixture.do(test, http.MethodPost, "/api/parking-bookings", customerCookie, map[string]any{"slot_id": fixture.slotIDs[0], "hours": 2})
	if status != http.StatusCreated || created.ParkingBooking.Status != "pending" {
		test.Fatalf("create parking: status %d %+v", status, created)
	}
	bookingPath := fmt.Sprintf("/api/parking-bookings/%d", created.ParkingBooking.ID)
	staffPath := fmt.Sprintf("/api/staff/parking-bookings/%d", created.ParkingBooking.ID)

	if status, _ := fixture.do(test, http.MethodGet, bookingPath, fixture.cookie(test, fixture.other), nil); status != http.StatusNotFound {
		test.Fatalf("expected 404 for another customer, got %d", status)
	}
	if status, response := fixture.do(test, http.MethodPost, staffPath+"/confirm", customerCookie, nil); status != http.StatusForbidden || response.Error.Code != "forbidden" {
		test.Fatalf("expected 403 for customer on staff route, got %d", status)
	}
	for _, action := range []string{"/confirm", "/activate"} {
		if status, response := fixture.do(test, http.MethodPost, staffPath+action, staffCookie, nil); status != http.StatusOK {
			test.Fatalf("%s: status %d %s", action, status, response.Error.Code)
		}
	}
	status, requested := fixture.do(test, http.MethodPost, bookingPath+"/checkout", customerCookie, nil)
	if status != http.StatusOK || requested.ParkingBooking.Status != "checkout_requested" || requested.ParkingBooking.ExtraChargeCents != 0 {
		test.Fatalf("request checkout: status %d %+v", status, requested.ParkingBooking)
	}
	status, approved := fixture.do(test, http.MethodPost, staffPath+"/checkout/approve", staffCookie, nil)
	if status != http.StatusOK || approved.ParkingBooking.Status != "completed" || approved.ParkingBooking.TicketNumber == "" {
		test.Fatalf("approve checkout: status %d %+v", status, approved.ParkingBooking)
	}
	status, repeated := fixture.do(test, http.MethodPost, staffPath+"/checkout/approve", staffCookie, nil)
	if status != http.StatusConflict || repeated.Error.Code != "already_processed" {
		test.Fatalf("expected already_processed, got %d %s", status, repeated.Error.Code)
	}

	_, walletResponse := fixture.do(test, http.MethodGet, "/api/wallet", customerCookie, nil)
	if walletResponse.Wallet.BalanceCents != 50000-2*testHourlyRate {
		test.Fatalf("unexpected balance %d", walletResponse.Wallet.BalanceCents)
	}
}

func TestParkingPaymentFailureOverHTTP(test *testing.T) {
	fixture := newAPIFixture(test)
	status, response := fixture.do(test, http.MethodPost, "/api/parking-bookings", fixture.cookie(test, fixture.customer), map[string]any{"slot_id": fixture.slotIDs[0], "hours": 1})
	if status != http.StatusPaymentRequired || response.Error.Code != "payment_failed" {
		test.Fatalf("expected payment_failed, got %d %s", status, response.Error.Code)
	}
}

func TestServiceOrderAndSweepOverHTTP(test *testing.T) {
	fixture := newAPIFixture(test)
	fixture.fund(test, "50.00")
	customerCookie := fixture.cookie(test, fixture.customer)

	bookingTime := time.Now().UTC().Add(-time.Hour)
	status, created := fixture.do(test, http.MethodPost, "/api/service-orders", customerCookie, map[string]any{"service_id": 1, "booking_time": bookingTime.Format(time.RFC3339), "notes": "interior"})
	if status != http.StatusCreated || created.ServiceOrder.Status != "confirmed" || created.ServiceOrder.SlipNumber == "" {
		test.Fatalf("create service order: status %d %+v", status, created.ServiceOrder)
	}

	status, swept := fixture.do(test, http.MethodPost, "/api/staff/sweep", fixture.cookie(test, fixture.staff, "staff"), nil)
	if status != http.StatusOK || swept.Sweep.Started != 1 || swept.Sweep.Completed != 1 {
		test.Fatalf("sweep: status %d %+v", status, swept.Sweep)
	}

	status, fetched := fixture.do(test, http.MethodGet, fmt.Sprintf("/api/service-orders/%d", created.ServiceOrder.ID), customerCookie, nil)
	if status != http.StatusOK || fetched.ServiceOrder.Status != "completed" || fetched.ServiceOrder.InvoiceNumber == "" {
		test.Fatalf("get service order: status %d %+v", status, fetched.ServiceOrder)
	}
}

func TestMissingSessionIsRejected(test *testing.T) {
	fixture := newAPIFixture(test)
	request, err := http.NewRequest(http.MethodGet, fixture.server.URL+"/api/wallet", nil)
	if err != nil {
		test.Fatalf("request init failed: %v", err)
	}
	response, err := fixture.server.Client().Do(request)
	if err != nil {
		test.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		test.Fatalf("expected 401, got %d", response.StatusCode)
	}
}

func TestConfigValidateDefaults(test *testing.T) {
	test.Parallel()
	cfg := Config{SessionSigningKey: "key"}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate failed: %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr || cfg.StaffRole != defaultStaffRole || cfg.RequestTimeout != defaultRequestTimeout {
		test.Fatalf("defaults not applied: %+v", cfg)
	}
	if err := (&Config{}).Validate(); err == nil {
		test.Fatalf("expected error without signing key")
	}
	origins := ParseAllowedOrigins(" http://a.example , ,http://b.example")
	if len(origins) != 2 || origins[1] != "http://b.example" {
		test.Fatalf("unexpected origins %v", origins)
	}
}
