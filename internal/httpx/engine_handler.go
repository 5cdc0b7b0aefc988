package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/nexuscommerce/order-engine/internal/catalog"
	"github.com/nexuscommerce/order-engine/internal/checkout"
	"github.com/nexuscommerce/order-engine/internal/inventory"
	"github.com/nexuscommerce/order-engine/internal/orders"
	"github.com/nexuscommerce/order-engine/internal/payments"
	"github.com/nexuscommerce/order-engine/internal/redisx"
)

// EngineHandler is the thin HTTP adapter over the transaction engine. It
// only decodes, delegates and encodes; every business rule lives below.
type EngineHandler struct {
	Engine     *checkout.Coordinator
	Reconciler *payments.Reconciler
	Redis      *redis.Client
}

func (h *EngineHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.doCheckout)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/lines", h.getOrderLines)
	r.Get("/orders/{id}/events", h.getOrderEvents)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/orders/{id}/status", h.updateStatus)
	r.Post("/payments/{id}/result", h.recordPaymentResult)
	r.Get("/payments/{id}", h.getPayment)
	r.Post("/payments/{id}/refunds", h.requestRefund)
	r.Post("/refunds/{id}/process", h.processRefund)
	r.Get("/refunds/{id}", h.getRefund)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors onto status codes while keeping the
// specific sku/field detail the spec promises callers.
func writeError(w http.ResponseWriter, err error) {
	var (
		stockErr  *inventory.StockError
		catErr    *catalog.InconsistencyError
		transErr  *orders.InvalidTransitionError
		refundErr *payments.InvalidRefundAmountError
	)
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "insufficient_stock", "sku": stockErr.SKU,
			"requested": stockErr.Requested, "available": stockErr.Available,
		})
	case errors.As(err, &catErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "catalog_inconsistency", "sku": catErr.SKU,
		})
	case errors.As(err, &transErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "invalid_transition", "from": transErr.From, "to": transErr.To,
		})
	case errors.As(err, &refundErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "invalid_refund_amount",
			"requested": refundErr.Requested, "remaining": refundErr.Remaining,
		})
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, payments.ErrPaymentNotFound),
		errors.Is(err, payments.ErrRefundNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, payments.ErrPaymentNotRefundable),
		errors.Is(err, payments.ErrRefundNotProcessable):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

type checkoutReq struct {
	Cart        checkout.Cart `json:"cart"`
	ShippingRef string        `json:"shipping_address_ref"`
	BillingRef  string        `json:"billing_address_ref"`
	Method      string        `json:"payment_method"`
	Currency    string        `json:"currency"`
}

func (h *EngineHandler) doCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Cart.CustomerID == "" || len(req.Cart.Lines) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Engine.Checkout(ctx, req.Cart, req.ShippingRef, req.BillingRef,
		checkout.PaymentIntent{Method: req.Method, Currency: req.Currency})
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order.ID, order.Status)
	writeJSON(w, http.StatusCreated, order)
}

func (h *EngineHandler) cacheStatus(ctx context.Context, orderID string, status orders.Status) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	body, _ := json.Marshal(map[string]any{"status": status})
	_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

func (h *EngineHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Engine.Order(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, http.StatusOK, o)
}

func (h *EngineHandler) getOrderLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Engine.OrderLines(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

func (h *EngineHandler) getOrderEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Engine.OrderEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type cancelReq struct {
	Actor string `json:"actor"`
}

func (h *EngineHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req cancelReq
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Actor == "" {
		req.Actor = "api"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.Engine.CancelOrder(ctx, orderID, req.Actor); err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, orderID, orders.StatusCancelled)
	writeJSON(w, http.StatusOK, map[string]string{"order_id": orderID, "status": string(orders.StatusCancelled)})
}

type statusReq struct {
	Status orders.Status `json:"status"`
	Actor  string        `json:"actor"`
	Notes  string        `json:"notes"`
}

func (h *EngineHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if !req.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	o, err := h.Engine.UpdateOrderStatus(ctx, orderID, req.Status, req.Actor, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, http.StatusOK, o)
}

func (h *EngineHandler) recordPaymentResult(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "id")
	var res payments.Result
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	p, err := h.Reconciler.RecordResult(ctx, paymentID, res)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *EngineHandler) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Reconciler.Payment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type refundReq struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func (h *EngineHandler) requestRefund(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "id")
	var req refundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ref, err := h.Reconciler.RequestRefund(ctx, paymentID, req.Amount, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

func (h *EngineHandler) processRefund(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	ref, err := h.Reconciler.ProcessRefund(ctx, chi.URLParam(r, "id"))
	if err != nil && ref == nil {
		writeError(w, err)
		return
	}
	// A failed provider call still returns the refund record so the caller
	// can see the retryable failed state.
	writeJSON(w, http.StatusOK, ref)
}

func (h *EngineHandler) getRefund(w http.ResponseWriter, r *http.Request) {
	ref, err := h.Reconciler.Refund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}
