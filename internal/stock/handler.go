package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/platform/httpx"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	ledger   *Ledger
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, ledger *Ledger) *Handler {
	return &Handler{logger: logger, ledger: ledger, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjustments", h.handleAdjustment)
	r.Get("/movements", h.listMovements)
}

type adjustmentRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"required"`
	Reason    string `json:"reason" validate:"required,max=200"`
	Code      string `json:"code,omitempty" validate:"omitempty,max=100"`
	Type      string `json:"movement_type,omitempty"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var movementType MovementType
	if req.Type != "" {
		parsed, err := ParseMovementType(req.Type)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		movementType = parsed
	}

	op, _ := shared.OperatorFromContext(r.Context())
	movement, err := h.ledger.Adjust(r.Context(), AdjustmentInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Reason:    req.Reason,
		Code:      req.Code,
		Type:      movementType,
		ActorID:   op.ID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrProductNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrNegativeStock):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		case errors.Is(err, shared.ErrIdempotencyConflict):
			httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
		default:
			h.logger.Error("post adjustment", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	filter := MovementFilter{}
	if productStr := r.URL.Query().Get("product"); productStr != "" {
		id, err := strconv.ParseInt(productStr, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product filter")
			return
		}
		filter.ProductID = id
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	movements, err := h.ledger.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}
