package orders

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/platform/httpx"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/shared"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/stock"
)

// Handler wires HTTP endpoints for the order engine.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validate  *validator.Validate
	storeName string
}

// NewHandler constructs the orders handler.
func NewHandler(logger *slog.Logger, service *Service, storeName string) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), storeName: storeName}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.list)
	r.Post("/orders", h.create)
	r.Get("/orders/{id}", h.get)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/recalculate", h.recalculate)
	r.Get("/orders/{id}/receipt", h.receipt)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	op, ok := shared.OperatorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "operator identity required")
		return
	}
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Create(r.Context(), op, req)
	if err != nil {
		h.respondErr(w, r, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListOrdersRequest{
		Status: q.Get("status"),
		Search: q.Get("search"),
	}
	if v, err := strconv.ParseInt(q.Get("customer"), 10, 64); err == nil && v > 0 {
		req.CustomerID = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		req.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		req.Offset = v
	}
	if v, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		req.From = &v
	}
	if v, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		req.To = &v
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	orders, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondErr(w, r, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"results": orders, "count": len(orders)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	op, ok := shared.OperatorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "operator identity required")
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Cancel(r.Context(), op, id)
	if err != nil {
		h.respondErr(w, r, "cancel order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := h.service.RecalculateTotals(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, "recalculate order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, "order receipt", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(RenderReceipt(order, h.storeName)))
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrProductUnavailable), errors.Is(err, stock.ErrProductNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, stock.ErrNegativeStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrEmptyOrder), errors.Is(err, ErrExcessiveDiscount), errors.Is(err, stock.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
