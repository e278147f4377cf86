package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/storefront-inventory-service/internal/http/response"
	"github.com/sandeepkv93/storefront-inventory-service/internal/observability"
	"github.com/sandeepkv93/storefront-inventory-service/internal/service"
)

type ProductHandler struct {
	catalog service.CatalogService
	ingest  service.IngestionService
}

func NewProductHandler(catalog service.CatalogService, ingest service.IngestionService) *ProductHandler {
	return &ProductHandler{catalog: catalog, ingest: ingest}
}

type createProductRequest struct {
	Name     *string      `json:"name"`
	Category *string      `json:"category"`
	Price    *json.Number `json:"price"`
	Stock    *json.Number `json:"stock"`
}

func (b createProductRequest) missingField() string {
	switch {
	case b.Name == nil:
		return "name"
	case b.Category == nil:
		return "category"
	case b.Price == nil:
		return "price"
	case b.Stock == nil:
		return "stock"
	}
	return ""
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createProductRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if field := body.missingField(); field != "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "missing required field: "+field, map[string]string{"field": field})
		return
	}

	created, err := h.ingest.Create(r.Context(), service.CreateProductInput{
		Name:     *body.Name,
		Category: *body.Category,
		Price:    body.Price.String(),
		Stock:    body.Stock.String(),
	})
	if err != nil {
		if !writeServiceError(w, r, err) {
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to create product", nil)
		}
		return
	}

	observability.EmitAudit(r, observability.AuditInput{
		EventName:  "product.create",
		TargetType: "product",
		TargetID:   strconv.FormatUint(uint64(created.ID), 10),
		Action:     "create",
		Outcome:    "success",
		Reason:     "product_created",
	}, "name", created.Name, "stock", created.Stock)
	response.JSON(w, r, http.StatusCreated, map[string]any{"product": created})
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		if !writeServiceError(w, r, err) {
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list products", nil)
		}
		return
	}
	response.JSON(w, r, http.StatusOK, products)
}

func (h *ProductHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	productID, err := parsePathID(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}

	product, err := h.catalog.GetByID(r.Context(), productID)
	if err != nil {
		if !writeServiceError(w, r, err) {
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load product", nil)
		}
		return
	}
	response.JSON(w, r, http.StatusOK, product)
}
