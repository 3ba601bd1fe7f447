package payments

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/orders"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/payments/daraja"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/platform/httpx"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/shared"
)

// Handler wires HTTP endpoints for payments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the payments handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers operator-facing payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payments/cash", h.payCash)
	r.Post("/payments/mpesa/stk-push", h.stkPush)
	r.Get("/payments/mpesa/query/{checkout_request_id}", h.queryStatus)
	r.Get("/payments/{id}", h.get)
	r.Get("/orders/{id}/payments", h.listByOrder)
}

// MountCallbackRoutes registers the unauthenticated route Safaricom
// posts results to. It must stay outside the operator middleware.
func (h *Handler) MountCallbackRoutes(r chi.Router) {
	r.Post("/payments/mpesa/callback", h.callback)
}

func (h *Handler) payCash(w http.ResponseWriter, r *http.Request) {
	op, ok := shared.OperatorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "operator identity required")
		return
	}
	var req CashPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.PayCash(r.Context(), op, req)
	if err != nil {
		h.respondErr(w, r, "cash payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) stkPush(w http.ResponseWriter, r *http.Request) {
	op, ok := shared.OperatorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "operator identity required")
		return
	}
	var req STKPushRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	payment, err := h.service.InitiateSTK(r.Context(), op, req)
	if err != nil {
		h.respondErr(w, r, "stk push", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, payment)
}

// callback always acknowledges so Safaricom stops retrying; a
// malformed or unknown payload is logged, never surfaced.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	ack := func() {
		httpx.JSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"})
	}

	var env daraja.CallbackEnvelope
	if err := httpx.DecodeJSON(r, &env); err != nil {
		h.logger.Warn("malformed mpesa callback", slog.Any("error", err))
		ack()
		return
	}
	if err := h.service.ConfirmCallback(r.Context(), env.Body.STKCallback); err != nil {
		h.logger.Error("mpesa callback", slog.Any("error", err),
			slog.String("checkout_request_id", env.Body.STKCallback.CheckoutRequestID))
	}
	ack()
}

func (h *Handler) queryStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkout_request_id")
	if id == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing checkout_request_id")
		return
	}
	resp, err := h.service.QueryStatus(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, "query status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	payment, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) listByOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	list, err := h.service.ListByOrder(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, "list payments", err)
		return
	}
	if raw := r.URL.Query().Get("method"); raw != "" {
		method, err := ParseMethod(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		filtered := list[:0]
		for _, p := range list {
			if p.Method == method {
				filtered = append(filtered, p)
			}
		}
		list = filtered
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"results": list, "count": len(list)})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, orders.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrOrderNotPayable), errors.Is(err, ErrAlreadySettled):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrPushRejected):
		httpx.Problem(w, http.StatusBadGateway, "Gateway Error", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}
