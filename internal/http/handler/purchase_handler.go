package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/storefront-inventory-service/internal/http/response"
	"github.com/sandeepkv93/storefront-inventory-service/internal/observability"
	"github.com/sandeepkv93/storefront-inventory-service/internal/repository"
	"github.com/sandeepkv93/storefront-inventory-service/internal/service"
)

const defaultPurchaseQuantity = 1

type PurchaseHandler struct {
	svc service.PurchaseService
}

func NewPurchaseHandler(svc service.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{svc: svc}
}

type purchaseRequest struct {
	Quantity *json.Number `json:"quantity"`
}

func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	productID, err := parsePathID(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	quantity, err := decodePurchaseQuantity(r.Body)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), map[string]string{"field": "quantity"})
		return
	}

	audit := observability.AuditInput{
		EventName:  "product.purchase",
		TargetType: "product",
		TargetID:   strconv.FormatUint(uint64(productID), 10),
		Action:     "purchase",
	}

	out, err := h.svc.Purchase(r.Context(), service.PurchaseInput{ProductID: productID, Quantity: quantity})
	if err != nil {
		audit.Outcome = "failure"
		audit.Reason = purchaseFailureReason(err)
		observability.EmitAudit(r, audit, "quantity", quantity, "error", err.Error())
		if !writeServiceError(w, r, err) {
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to process purchase", nil)
		}
		return
	}

	switch out.Status {
	case service.PurchaseNotFound:
		audit.Outcome, audit.Reason = "rejected", "not_found"
		observability.EmitAudit(r, audit, "quantity", quantity)
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
	case service.PurchaseInsufficientStock:
		audit.Outcome, audit.Reason = "rejected", "insufficient_stock"
		observability.EmitAudit(r, audit, "quantity", quantity, "available", out.Available)
		response.Error(w, r, http.StatusConflict, "INSUFFICIENT_STOCK",
			fmt.Sprintf("insufficient stock, available: %d", out.Available),
			map[string]int{"available": out.Available, "requested": quantity})
	default:
		audit.Outcome, audit.Reason = "success", "stock_decremented"
		observability.EmitAudit(r, audit, "quantity", out.QuantityPurchased, "new_stock", out.NewStock)
		response.JSON(w, r, http.StatusOK, map[string]any{
			"message":            fmt.Sprintf("purchased %d unit(s) of %s", out.QuantityPurchased, out.ProductName),
			"product_id":         out.ProductID,
			"quantity_purchased": out.QuantityPurchased,
			"new_stock":          out.NewStock,
		})
	}
}

// decodePurchaseQuantity treats an empty body or an absent quantity as one unit.
// Range checks belong to the purchase service.
func decodePurchaseQuantity(body io.Reader) (int, error) {
	var req purchaseRequest
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return defaultPurchaseQuantity, nil
		}
		return 0, errors.New("invalid payload")
	}
	if req.Quantity == nil {
		return defaultPurchaseQuantity, nil
	}
	q, err := strconv.ParseInt(req.Quantity.String(), 10, 32)
	if err != nil {
		return 0, errors.New("invalid quantity: must be a whole number")
	}
	return int(q), nil
}

func purchaseFailureReason(err error) string {
	var (
		vErr       *service.ValidationError
		storageErr *repository.StorageError
	)
	switch {
	case errors.As(err, &vErr):
		return "invalid_input"
	case errors.As(err, &storageErr) && storageErr.Ambiguous:
		return "outcome_unknown"
	case errors.As(err, &storageErr):
		return "storage_unavailable"
	}
	return "internal_error"
}
