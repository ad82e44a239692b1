package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/internal/service"
	"github.com/prakyath/spree-commerse/pkg/httputil"
	"github.com/prakyath/spree-commerse/pkg/validator"
)

// LineItemService is the part of *service.LineItemService the handler uses.
type LineItemService interface {
	Create(ctx context.Context, input service.CreateLineItemInput) (*domain.LineItem, error)
	Update(ctx context.Context, id string, input service.UpdateLineItemInput) (*domain.LineItem, error)
	Destroy(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.LineItem, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.LineItem, error)
	CheckStock(ctx context.Context, item *domain.LineItem) (bool, error)
}

// LineItemHandler handles HTTP requests for line item endpoints.
type LineItemHandler struct {
	service LineItemService
	logger  *slog.Logger
}

// NewLineItemHandler creates a new line item HTTP handler.
func NewLineItemHandler(svc LineItemService, logger *slog.Logger) *LineItemHandler {
	return &LineItemHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// PriceOptionsRequest selects a currency and option values to price by.
type PriceOptionsRequest struct {
	Currency  string            `json:"currency" validate:"omitempty,iso4217"`
	Modifiers map[string]string `json:"modifiers"`
}

func (o *PriceOptionsRequest) toService() service.PriceOptions {
	if o == nil {
		return service.PriceOptions{}
	}
	return service.PriceOptions{Currency: o.Currency, Modifiers: o.Modifiers}
}

// CreateLineItemRequest is the JSON request body for adding a line item.
// Quantity is not range checked: negative values are stored as zero.
type CreateLineItemRequest struct {
	VariantID        string               `json:"variant_id" validate:"required,uuid"`
	Quantity         *int                 `json:"quantity"`
	Price            string               `json:"price" validate:"omitempty,money"`
	Currency         string               `json:"currency" validate:"omitempty,iso4217"`
	Options          *PriceOptionsRequest `json:"options" validate:"omitempty"`
	TargetShipmentID string               `json:"target_shipment_id" validate:"omitempty,uuid"`
}

// UpdateLineItemRequest is the JSON request body for changing a line item.
type UpdateLineItemRequest struct {
	Quantity         *int                 `json:"quantity"`
	Options          *PriceOptionsRequest `json:"options" validate:"omitempty"`
	TargetShipmentID string               `json:"target_shipment_id" validate:"omitempty,uuid"`
}

// --- Response DTOs ---

// LineItemResponse adds the derived amounts to a line item.
type LineItemResponse struct {
	*domain.LineItem
	Amount           decimal.Decimal `json:"amount"`
	DiscountedAmount decimal.Decimal `json:"discounted_amount"`
	FinalAmount      decimal.Decimal `json:"final_amount"`
	Name             string          `json:"name,omitempty"`
	SKU              string          `json:"sku,omitempty"`
	SufficientStock  *bool           `json:"sufficient_stock,omitempty"`
}

func newLineItemResponse(item *domain.LineItem) LineItemResponse {
	return LineItemResponse{
		LineItem:         item,
		Amount:           item.Amount(),
		DiscountedAmount: item.DiscountedAmount(),
		FinalAmount:      item.FinalAmount(),
		Name:             item.Name(),
		SKU:              item.SKU(),
	}
}

// --- Handlers ---

// Create handles POST /api/v1/orders/{orderId}/line_items
func (h *LineItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParseUUID(w, chi.URLParam(r, "orderId"))
	if !ok {
		return
	}

	var req CreateLineItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	input := service.CreateLineItemInput{
		OrderID:          orderID.String(),
		VariantID:        req.VariantID,
		Quantity:         req.Quantity,
		Currency:         req.Currency,
		Options:          req.Options.toService(),
		TargetShipmentID: req.TargetShipmentID,
	}
	if req.Price != "" {
		// Format already checked by the money validation tag.
		input.Price = decimal.NewNullDecimal(decimal.RequireFromString(req.Price))
	}

	item, err := h.service.Create(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: newLineItemResponse(item)})
}

// ListByOrder handles GET /api/v1/orders/{orderId}/line_items
func (h *LineItemHandler) ListByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParseUUID(w, chi.URLParam(r, "orderId"))
	if !ok {
		return
	}

	items, err := h.service.ListByOrder(r.Context(), orderID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	resp := make([]LineItemResponse, len(items))
	for i := range items {
		resp[i] = newLineItemResponse(&items[i])
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

// Get handles GET /api/v1/line_items/{id}
func (h *LineItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	item, err := h.service.Get(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	resp := newLineItemResponse(item)
	sufficient, err := h.service.CheckStock(r.Context(), item)
	if err != nil {
		h.logger.WarnContext(r.Context(), "stock check failed",
			slog.String("line_item_id", item.ID),
			slog.String("error", err.Error()),
		)
	} else {
		resp.SufficientStock = &sufficient
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

// Update handles PATCH /api/v1/line_items/{id}
func (h *LineItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateLineItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	item, err := h.service.Update(r.Context(), id.String(), service.UpdateLineItemInput{
		Quantity:         req.Quantity,
		Options:          req.Options.toService(),
		TargetShipmentID: req.TargetShipmentID,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newLineItemResponse(item)})
}

// Destroy handles DELETE /api/v1/line_items/{id}
func (h *LineItemHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.Destroy(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
