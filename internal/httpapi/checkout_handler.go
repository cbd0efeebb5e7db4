package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/fjod/go_storefront/internal/domain"
)

type CheckoutService interface {
	InitializeCheckout(ctx context.Context, userID int64) (*checkout.Summary, error)
	ProcessPayment(ctx context.Context, userID int64, shippingAddress, method string, details map[string]string) (*domain.Order, error)
}

type CheckoutHandler struct {
	svc     CheckoutService
	timeout time.Duration

	// stages tracks each user's position in the linear checkout flow.
	// Payment is only reachable from PAYMENT, so a commit request cannot
	// skip initialization.
	mu     sync.Mutex
	stages map[int64]checkout.Stage
}

func NewCheckoutHandler(svc CheckoutService, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		svc:     svc,
		timeout: timeout,
		stages:  make(map[int64]checkout.Stage),
	}
}

func (h *CheckoutHandler) stage(userID int64) checkout.Stage {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.stages[userID]; ok {
		return s
	}
	return checkout.StageAddress
}

func (h *CheckoutHandler) setStage(userID int64, s checkout.Stage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stages[userID] = s
}

type ProcessPaymentRequestDTO struct {
	ShippingAddress string            `json:"shipping_address"`
	Method          string            `json:"method"`
	Details         map[string]string `json:"details"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cur := h.stage(userID)
	if cur == checkout.StageConfirmation {
		// previous checkout completed; a fresh flow starts over
		cur = checkout.StageAddress
	}
	if cur != checkout.StagePayment && !cur.CanTransitionTo(checkout.StagePayment) {
		respondError(w, http.StatusConflict, "invalid_checkout_stage", "checkout cannot advance to payment from "+cur.String())
		return
	}

	summary, err := h.svc.InitializeCheckout(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setStage(userID, checkout.StagePayment)
	respondJSON(w, http.StatusOK, summary)
}

// POST /api/v1/checkout/payment
func (h *CheckoutHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req ProcessPaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Method == "" {
		respondError(w, http.StatusBadRequest, "missing_method", "payment method is required")
		return
	}
	if req.ShippingAddress == "" {
		respondError(w, http.StatusBadRequest, "missing_address", "shipping address is required")
		return
	}

	if !h.stage(userID).CanTransitionTo(checkout.StageConfirmation) {
		respondError(w, http.StatusConflict, "invalid_checkout_stage", "initialize checkout before payment")
		return
	}

	order, err := h.svc.ProcessPayment(ctx, userID, req.ShippingAddress, req.Method, req.Details)
	if err != nil {
		// a failed commit leaves the user at PAYMENT for another attempt
		handleServiceError(w, err)
		return
	}

	h.setStage(userID, checkout.StageConfirmation)
	respondJSON(w, http.StatusCreated, order)
}
