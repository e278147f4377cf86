package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sandeepkv93/storefront-inventory-service/internal/observability"
	"github.com/sandeepkv93/storefront-inventory-service/internal/repository"
)

type PurchaseInput struct {
	ProductID uint
	Quantity  int
}

type PurchaseStatus string

const (
	PurchaseSucceeded         PurchaseStatus = "success"
	PurchaseNotFound          PurchaseStatus = "not_found"
	PurchaseInsufficientStock PurchaseStatus = "insufficient_stock"
)

// PurchaseOutcome is the business result of a purchase attempt. Infrastructure
// failures are reported as errors instead.
type PurchaseOutcome struct {
	Status            PurchaseStatus
	ProductID         uint
	ProductName       string
	QuantityPurchased int
	NewStock          int
	// Available is the stock seen under the lock when Status is insufficient_stock.
	Available int
	UpdatedAt time.Time
}

type PurchaseServiceImpl struct {
	repo   repository.ProductRepository
	tracer trace.Tracer
}

func NewPurchaseService(repo repository.ProductRepository) *PurchaseServiceImpl {
	return &PurchaseServiceImpl{repo: repo, tracer: observability.Tracer("purchase")}
}

// Purchase never retries. A StorageError is returned as is so callers can tell a
// safe retry (Retryable) from an unknown commit outcome (Ambiguous).
func (s *PurchaseServiceImpl) Purchase(ctx context.Context, input PurchaseInput) (PurchaseOutcome, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		observability.RecordProductOperation(ctx, "purchase", outcome, time.Since(start))
		observability.RecordPurchaseOutcome(ctx, outcome, input.Quantity)
	}()

	if input.ProductID == 0 {
		outcome = "bad_request"
		return PurchaseOutcome{}, invalid("product_id", "must be a positive integer")
	}
	if input.Quantity <= 0 {
		outcome = "bad_request"
		return PurchaseOutcome{}, invalid("quantity", "must be a positive integer")
	}

	ctx, span := s.tracer.Start(ctx, "product.purchase", trace.WithAttributes(
		attribute.Int64("product.id", int64(input.ProductID)),
		attribute.Int("purchase.quantity", input.Quantity),
	))
	defer span.End()

	receipt, err := s.repo.Purchase(ctx, input.ProductID, input.Quantity)
	var stockErr *repository.InsufficientStockError
	switch {
	case err == nil:
		outcome = string(PurchaseSucceeded)
		span.SetAttributes(attribute.Int("product.new_stock", receipt.NewStock))
		return PurchaseOutcome{
			Status:            PurchaseSucceeded,
			ProductID:         receipt.ProductID,
			ProductName:       receipt.ProductName,
			QuantityPurchased: receipt.QuantityPurchased,
			NewStock:          receipt.NewStock,
			UpdatedAt:         receipt.UpdatedAt,
		}, nil
	case errors.Is(err, repository.ErrProductNotFound):
		outcome = string(PurchaseNotFound)
		return PurchaseOutcome{Status: PurchaseNotFound, ProductID: input.ProductID}, nil
	case errors.As(err, &stockErr):
		outcome = string(PurchaseInsufficientStock)
		span.SetAttributes(attribute.Int("product.available", stockErr.Available))
		return PurchaseOutcome{
			Status:    PurchaseInsufficientStock,
			ProductID: input.ProductID,
			Available: stockErr.Available,
		}, nil
	case errors.Is(err, repository.ErrInvalidQuantity):
		outcome = "bad_request"
		return PurchaseOutcome{}, invalid("quantity", "must be a positive integer")
	}

	var storageErr *repository.StorageError
	if errors.As(err, &storageErr) && storageErr.Ambiguous {
		outcome = "outcome_unknown"
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "purchase failed")
	return PurchaseOutcome{}, err
}
