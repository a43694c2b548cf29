package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	notifdomain "github.com/autobus/autobus-backend/internal/notification_service/domain"
	"github.com/autobus/autobus-backend/internal/payment_api_service/middleware"
	"github.com/autobus/autobus-backend/internal/payment_service/app"
	"github.com/autobus/autobus-backend/internal/payment_service/domain"
)

type MockPaymentApp struct {
	mock.Mock
}

func (m *MockPaymentApp) CreatePayment(ctx context.Context, in app.CreatePaymentInput) (*domain.Payment, error) {
	args := m.Called(ctx, in)
	var p *domain.Payment
	if args.Get(0) != nil {
		p = args.Get(0).(*domain.Payment)
	}
	return p, args.Error(1)
}

func (m *MockPaymentApp) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	var p *domain.Payment
	if args.Get(0) != nil {
		p = args.Get(0).(*domain.Payment)
	}
	return p, args.Error(1)
}

func (m *MockPaymentApp) GetHistory(ctx context.Context, id string) ([]domain.PhaseAttempt, error) {
	args := m.Called(ctx, id)
	var attempts []domain.PhaseAttempt
	if args.Get(0) != nil {
		attempts = args.Get(0).([]domain.PhaseAttempt)
	}
	return attempts, args.Error(1)
}

func (m *MockPaymentApp) ListUserPayments(ctx context.Context, userID string, limit, offset int) ([]domain.Payment, error) {
	args := m.Called(ctx, userID, limit, offset)
	var payments []domain.Payment
	if args.Get(0) != nil {
		payments = args.Get(0).([]domain.Payment)
	}
	return payments, args.Error(1)
}

func (m *MockPaymentApp) Cancel(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type MockPinApp struct {
	mock.Mock
}

func (m *MockPinApp) SetPin(ctx context.Context, userID, pin string) error {
	args := m.Called(ctx, userID, pin)
	return args.Error(0)
}

type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) Create(ctx context.Context, n *notifdomain.Notification) (*notifdomain.Notification, error) {
	args := m.Called(ctx, n)
	var out *notifdomain.Notification
	if args.Get(0) != nil {
		out = args.Get(0).(*notifdomain.Notification)
	}
	return out, args.Error(1)
}

func (m *MockNotificationRepo) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]notifdomain.Notification, error) {
	args := m.Called(ctx, userID, limit, offset)
	var out []notifdomain.Notification
	if args.Get(0) != nil {
		out = args.Get(0).([]notifdomain.Notification)
	}
	return out, args.Error(1)
}

func (m *MockNotificationRepo) MarkRead(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type handlerFixture struct {
	payments *MockPaymentApp
	pins     *MockPinApp
	notifs   *MockNotificationRepo
	router   chi.Router
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	payments := new(MockPaymentApp)
	pins := new(MockPinApp)
	notifs := new(MockNotificationRepo)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewPaymentHandler(payments, pins, notifs, logger)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return &handlerFixture{payments: payments, pins: pins, notifs: notifs, router: router}
}

// asUser injects the identity the auth middleware would have put in context.
func asUser(r *http.Request, userID string) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.AuthenticatedUserContextKey, middleware.AuthenticatedUser{ID: userID})
	return r.WithContext(ctx)
}

func samplePayment(userID string) *domain.Payment {
	now := time.Now().UTC()
	return &domain.Payment{
		ID:            "pay-1",
		UserID:        userID,
		Type:          domain.TransactionTypeSendMoney,
		Amount:        decimal.NewFromFloat(25.50),
		CurrencyCode:  "GHS",
		Status:        domain.StatusPending,
		PaymentMethod: domain.PaymentMethodMobileMoney,
		SenderPhone:   "233200000001",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestCreatePaymentHandler_Success(t *testing.T) {
	f := newHandlerFixture(t)
	f.payments.On("CreatePayment", mock.Anything, mock.MatchedBy(func(in app.CreatePaymentInput) bool {
		return in.UserID == "user-1" && in.Type == domain.TransactionTypeSendMoney && in.Pin == "12345"
	})).Return(samplePayment("user-1"), nil).Once()

	body := `{"type":"send_money","amount":"25.50","sender_phone":"233200000001","receiver_phone":"233200000002","pin":"12345"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(body)), "user-1")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp CreatePaymentResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "pay-1", resp.PaymentID)
	assert.Equal(t, domain.StatusPending, resp.Status)
	f.payments.AssertExpectations(t)
}

func TestCreatePaymentHandler_ValidationFailure(t *testing.T) {
	f := newHandlerFixture(t)

	cases := map[string]string{
		"unknown type":  `{"type":"wire_transfer","amount":"10","sender_phone":"233200000001"}`,
		"short pin":     `{"type":"send_money","amount":"10","sender_phone":"233200000001","pin":"123"}`,
		"alpha pin":     `{"type":"send_money","amount":"10","sender_phone":"233200000001","pin":"12a45"}`,
		"missing phone": `{"type":"send_money","amount":"10"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := asUser(httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(body)), "user-1")
			rr := httptest.NewRecorder()
			f.router.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
	f.payments.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestCreatePaymentHandler_Unauthenticated(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"type":"send_money","amount":"10","sender_phone":"233200000001"}`
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	f.payments.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestCreatePaymentHandler_DomainErrorMapping(t *testing.T) {
	cases := []struct {
		kind domain.ErrorKind
		want int
	}{
		{domain.ErrKindPinRequired, http.StatusUnauthorized},
		{domain.ErrKindPinInvalid, http.StatusUnauthorized},
		{domain.ErrKindValidation, http.StatusBadRequest},
		{domain.ErrKindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			f := newHandlerFixture(t)
			f.payments.On("CreatePayment", mock.Anything, mock.Anything).
				Return(nil, domain.NewError(tc.kind, "nope", nil)).Once()

			body := `{"type":"send_money","amount":"10","sender_phone":"233200000001","receiver_phone":"233200000002"}`
			req := asUser(httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(body)), "user-1")
			rr := httptest.NewRecorder()
			f.router.ServeHTTP(rr, req)

			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestGetPaymentHandler_ForeignPaymentReads404(t *testing.T) {
	f := newHandlerFixture(t)
	f.payments.On("GetPayment", mock.Anything, "pay-1").Return(samplePayment("someone-else"), nil).Once()

	req := asUser(httptest.NewRequest(http.MethodGet, "/payments/pay-1", nil), "user-1")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetPaymentHandler_OwnerReadsPayment(t *testing.T) {
	f := newHandlerFixture(t)
	f.payments.On("GetPayment", mock.Anything, "pay-1").Return(samplePayment("user-1"), nil).Once()

	req := asUser(httptest.NewRequest(http.MethodGet, "/payments/pay-1", nil), "user-1")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp PaymentResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "pay-1", resp.ID)
	assert.Equal(t, "25.5", resp.Amount.String())
}

func TestCancelPaymentHandler_ReportsRefusal(t *testing.T) {
	f := newHandlerFixture(t)
	p := samplePayment("user-1")
	p.Status = domain.StatusCTMProcessing
	f.payments.On("GetPayment", mock.Anything, "pay-1").Return(p, nil).Once()
	f.payments.On("Cancel", mock.Anything, "pay-1").Return(false, nil).Once()

	req := asUser(httptest.NewRequest(http.MethodPost, "/payments/pay-1/cancel", nil), "user-1")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp CancelResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Cancelled)
}

func TestGetHistoryHandler_ReturnsAttempts(t *testing.T) {
	f := newHandlerFixture(t)
	code := "000"
	now := time.Now().UTC()
	f.payments.On("GetPayment", mock.Anything, "pay-1").Return(samplePayment("user-1"), nil).Once()
	f.payments.On("GetHistory", mock.Anything, "pay-1").Return([]domain.PhaseAttempt{
		{Phase: domain.PhaseCTM, AttemptNumber: 1, Outcome: domain.AttemptSuccess, GatewayCode: &code, StartedAt: now, CompletedAt: &now},
	}, nil).Once()

	req := asUser(httptest.NewRequest(http.MethodGet, "/payments/pay-1/history", nil), "user-1")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp []PhaseAttemptResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "CTM", resp[0].Phase)
	assert.Equal(t, "success", resp[0].Outcome)
}

func TestGetHistoryHandler_UnknownPaymentReads404(t *testing.T) {
	f := newHandlerFixture(t)
	f.payments.On("GetPayment", mock.Anything, "pay-gone").
		Return(nil, domain.NewError(domain.ErrKindNotFound, "payment not found", nil)).Once()

	req := asUser(httptest.NewRequest(http.MethodGet, "/payments/pay-gone/history", nil), "user-1")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	f.payments.AssertNotCalled(t, "GetHistory", mock.Anything, mock.Anything)
}

func TestSetPinHandler(t *testing.T) {
	t.Run("valid pin", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.pins.On("SetPin", mock.Anything, "user-1", "12345").Return(nil).Once()

		req := asUser(httptest.NewRequest(http.MethodPut, "/users/pin", bytes.NewBufferString(`{"pin":"12345"}`)), "user-1")
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		f.pins.AssertExpectations(t)
	})

	t.Run("malformed pin", func(t *testing.T) {
		f := newHandlerFixture(t)

		req := asUser(httptest.NewRequest(http.MethodPut, "/users/pin", bytes.NewBufferString(`{"pin":"12"}`)), "user-1")
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		f.pins.AssertNotCalled(t, "SetPin", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestListNotificationsHandler(t *testing.T) {
	f := newHandlerFixture(t)
	f.notifs.On("GetByUserID", mock.Anything, "user-1", 20, 0).Return([]notifdomain.Notification{
		{ID: "n-1", PaymentID: "pay-1", Status: "SUCCESS", Message: "payment completed", CreatedAt: time.Now().UTC()},
	}, nil).Once()

	req := asUser(httptest.NewRequest(http.MethodGet, "/notifications", nil), "user-1")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp []NotificationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "pay-1", resp[0].PaymentID)
}
