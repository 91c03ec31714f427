package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kpetrov-dev/bookstore-api/internal/auth"
	"github.com/kpetrov-dev/bookstore-api/internal/order"
)

type PlaceOrderItemRequest struct {
	BookID   string `json:"book_id" validate:"required,uuid4"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type PlaceOrderRequest struct {
	Items []PlaceOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handlePlaceOrder)
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/{id}", h.handleGetOrderByID)
	router.Post("/orders/{id}/cancel", h.handleCancelOrder)
	router.Patch("/orders/{id}/status", h.handleUpdateOrderStatus)
}

// requireIdentity responds 401 and returns false when the request carries no
// verified identity.
func requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	ident, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Identity{}, false
	}
	return ident, true
}

func (h *OrderHandler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var requestPayload PlaceOrderRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode place order request")
		respondWithError(w, r, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if ok {
			respondWithError(w, r, http.StatusBadRequest, formatValidationErrors(validationErrors))
		} else {
			log.Error().Err(err).Msg("Unexpected error type during validation")
			respondWithError(w, r, http.StatusInternalServerError, "internal validation error")
		}
		return
	}

	items := make([]order.LineItemInput, 0, len(requestPayload.Items))
	for _, item := range requestPayload.Items {
		bookID, err := uuid.FromString(item.BookID)
		if err != nil {
			respondWithError(w, r, http.StatusBadRequest, "invalid book_id "+item.BookID)
			return
		}
		items = append(items, order.LineItemInput{BookID: bookID, Quantity: item.Quantity})
	}

	placed, err := h.service.PlaceOrder(r.Context(), ident.UserID, items)
	if err != nil {
		log.Warn().Err(err).Stringer("user_id", ident.UserID).Msg("Failed to place order")
		respondWithError(w, r, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusCreated, placed)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orders, err := h.service.GetOrdersByUserID(r.Context(), ident.UserID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", ident.UserID).Msg("Failed to list orders")
		respondWithError(w, r, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, http.StatusBadRequest, "invalid id parameter")
		return
	}

	found, err := h.service.GetOrderByID(r.Context(), orderID)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Msg("Failed to get order by id")
		respondWithError(w, r, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	if found.UserID != ident.UserID && !ident.Privileged {
		respondWithError(w, r, http.StatusForbidden, order.ErrForbidden.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, http.StatusBadRequest, "invalid id parameter")
		return
	}

	cancelled, err := h.service.CancelOrder(r.Context(), orderID, ident.UserID)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Stringer("user_id", ident.UserID).Msg("Failed to cancel order")
		respondWithError(w, r, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, cancelled)
}

func (h *OrderHandler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !ident.Privileged {
		respondWithError(w, r, http.StatusForbidden, "privileged access required")
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, http.StatusBadRequest, "invalid id parameter")
		return
	}

	var requestPayload UpdateOrderStatusRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		respondWithError(w, r, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if ok {
			respondWithError(w, r, http.StatusBadRequest, formatValidationErrors(validationErrors))
		} else {
			respondWithError(w, r, http.StatusInternalServerError, "internal validation error")
		}
		return
	}

	updated, err := h.service.UpdateOrderStatus(r.Context(), orderID, order.OrderStatus(requestPayload.Status))
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Str("new_status", requestPayload.Status).Msg("Failed to update order status")
		respondWithError(w, r, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}
