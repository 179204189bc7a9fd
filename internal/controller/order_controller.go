package controller

import (
	"net/http"

	"github.com/felixhub/workshop/internal/domain/order"
	"github.com/felixhub/workshop/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type OrderController struct {
	orderService *service.OrderService
	logger       zerolog.Logger
}

func NewOrderController(orderService *service.OrderService, logger zerolog.Logger) *OrderController {
	return &OrderController{orderService: orderService, logger: logger}
}

func (h *OrderController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	o, err := h.orderService.CreateOrder(r.Context(), req.toService())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromOrder(o))
}

func (h *OrderController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	o, err := h.orderService.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, FromOrder(o))
}

// List returns the orders of one Telegram user, newest first.
func (h *OrderController) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", service.MaxListedOrders)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	orders, err := h.orderService.ListByTelegramID(r.Context(), r.URL.Query().Get("telegram_id"), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := make([]*OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, FromOrder(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus commits the status change. Customer and admin notifications
// follow asynchronously from the outbox; their outcome never affects the
// response.
func (h *OrderController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req UpdateStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	o, err := h.orderService.UpdateStatus(r.Context(), id, order.Status(req.Status))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, FromOrder(o))
}

func (h *OrderController) UpdateWorkStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req UpdateWorkStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	o, err := h.orderService.UpdateWorkStatus(r.Context(), id, order.WorkStatus(req.WorkStatus))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, FromOrder(o))
}
