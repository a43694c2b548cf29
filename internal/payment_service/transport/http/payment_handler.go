package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	notifdomain "github.com/autobus/autobus-backend/internal/notification_service/domain"
	"github.com/autobus/autobus-backend/internal/payment_api_service/middleware"
	"github.com/autobus/autobus-backend/internal/payment_service/app"
	"github.com/autobus/autobus-backend/internal/payment_service/domain"
	pinapp "github.com/autobus/autobus-backend/internal/pin_service/app"
)

// PaymentApp is the application surface the handler drives.
type PaymentApp interface {
	CreatePayment(ctx context.Context, in app.CreatePaymentInput) (*domain.Payment, error)
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	GetHistory(ctx context.Context, id string) ([]domain.PhaseAttempt, error)
	ListUserPayments(ctx context.Context, userID string, limit, offset int) ([]domain.Payment, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// PinApp sets and rotates PIN credentials.
type PinApp interface {
	SetPin(ctx context.Context, userID, pin string) error
}

// PaymentHandler serves the payment REST surface.
type PaymentHandler struct {
	payments      PaymentApp
	pins          PinApp
	notifications notifdomain.NotificationRepository
	validate      *validator.Validate
	logger        *slog.Logger
}

// NewPaymentHandler builds a PaymentHandler.
func NewPaymentHandler(
	payments PaymentApp,
	pins PinApp,
	notifications notifdomain.NotificationRepository,
	logger *slog.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		payments:      payments,
		pins:          pins,
		notifications: notifications,
		validate:      validator.New(),
		logger:        logger.With("handler", "payment"),
	}
}

// RegisterRoutes mounts the handler on r. The router is expected to already
// carry the auth middleware for these routes.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments", h.CreatePayment)
	r.Get("/payments/{paymentID}", h.GetPayment)
	r.Get("/payments/{paymentID}/history", h.GetHistory)
	r.Post("/payments/{paymentID}/cancel", h.CancelPayment)
	r.Get("/payments", h.ListPayments)
	r.Put("/users/pin", h.SetPin)
	r.Get("/notifications", h.ListNotifications)
}

func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.UserIDFrom(ctx)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required", "")
		return
	}

	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	in := app.CreatePaymentInput{
		UserID:        userID,
		Type:          domain.TransactionType(req.Type),
		Amount:        req.Amount,
		CurrencyCode:  req.CurrencyCode,
		SenderPhone:   req.SenderPhone,
		ReceiverPhone: req.ReceiverPhone,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		ExtBillerRef:  req.ExtBillerRef,
		Pin:           req.Pin,
	}
	if req.Network != nil {
		nw := domain.Network(*req.Network)
		in.Network = &nw
	}

	payment, err := h.payments.CreatePayment(ctx, in)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreatePaymentResponse{
		PaymentID: payment.ID,
		Status:    payment.Status,
		CreatedAt: payment.CreatedAt,
	})
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID := chi.URLParam(r, "paymentID")

	payment, err := h.payments.GetPayment(ctx, paymentID)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}
	if !h.ownedByCaller(ctx, w, payment.UserID) {
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *PaymentHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID := chi.URLParam(r, "paymentID")

	payment, err := h.payments.GetPayment(ctx, paymentID)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}
	if !h.ownedByCaller(ctx, w, payment.UserID) {
		return
	}

	attempts, err := h.payments.GetHistory(ctx, paymentID)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	resp := make([]PhaseAttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		resp = append(resp, PhaseAttemptResponse{
			Phase:          string(a.Phase),
			AttemptNumber:  a.AttemptNumber,
			Outcome:        string(a.Outcome),
			GatewayCode:    a.GatewayCode,
			GatewayMessage: a.GatewayMessage,
			StartedAt:      a.StartedAt,
			CompletedAt:    a.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID := chi.URLParam(r, "paymentID")

	payment, err := h.payments.GetPayment(ctx, paymentID)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}
	if !h.ownedByCaller(ctx, w, payment.UserID) {
		return
	}

	cancelled, err := h.payments.Cancel(ctx, paymentID)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: cancelled})
}

func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.UserIDFrom(ctx)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required", "")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	payments, err := h.payments.ListUserPayments(ctx, userID, limit, offset)
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	resp := make([]PaymentResponse, 0, len(payments))
	for i := range payments {
		resp = append(resp, toPaymentResponse(&payments[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PaymentHandler) SetPin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.UserIDFrom(ctx)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required", "")
		return
	}

	var req SetPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	if err := h.pins.SetPin(ctx, userID, req.Pin); err != nil {
		if errors.Is(err, pinapp.ErrInvalidPinFormat) {
			writeJSONError(w, http.StatusBadRequest, "pin must be exactly 5 digits", "")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to set PIN", "user_id", userID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to set pin", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PaymentHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.UserIDFrom(ctx)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required", "")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	notifications, err := h.notifications.GetByUserID(ctx, userID, limit, offset)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list notifications", "user_id", userID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to list notifications", "")
		return
	}

	resp := make([]NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		resp = append(resp, NotificationResponse{
			ID:        n.ID,
			PaymentID: n.PaymentID,
			Status:    n.Status,
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ownedByCaller enforces that the authenticated user owns the payment. A 404
// rather than 403 keeps foreign payment ids unprobeable.
func (h *PaymentHandler) ownedByCaller(ctx context.Context, w http.ResponseWriter, ownerID string) bool {
	userID, ok := middleware.UserIDFrom(ctx)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required", "")
		return false
	}
	if userID != ownerID {
		writeJSONError(w, http.StatusNotFound, "payment not found", "")
		return false
	}
	return true
}

func (h *PaymentHandler) writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var dErr *domain.Error
	if errors.As(err, &dErr) {
		if dErr.Kind == domain.ErrKindInternal {
			h.logger.ErrorContext(ctx, "Internal error serving payment request", "error", err)
			writeJSONError(w, dErr.HTTPStatus(), "internal error", "")
			return
		}
		writeJSONError(w, dErr.HTTPStatus(), dErr.Message, "")
		return
	}
	h.logger.ErrorContext(ctx, "Unclassified error serving payment request", "error", err)
	writeJSONError(w, http.StatusInternalServerError, "internal error", "")
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, GenericErrorResponse{Error: message, Details: details})
}
