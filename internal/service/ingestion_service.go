package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sandeepkv93/storefront-inventory-service/internal/domain"
	"github.com/sandeepkv93/storefront-inventory-service/internal/observability"
	"github.com/sandeepkv93/storefront-inventory-service/internal/repository"
)

const (
	maxNameLength     = 255
	maxCategoryLength = 100
)

var maxPrice = decimal.NewFromInt(100_000_000)

// CreateProductInput carries raw caller values. Price and Stock stay textual so
// parsing rules live here and not in each transport.
type CreateProductInput struct {
	Name     string
	Category string
	Price    string
	Stock    string
}

type IngestionServiceImpl struct {
	repo   repository.ProductRepository
	tracer trace.Tracer
}

func NewIngestionService(repo repository.ProductRepository) *IngestionServiceImpl {
	return &IngestionServiceImpl{repo: repo, tracer: observability.Tracer("ingestion")}
}

func (s *IngestionServiceImpl) Create(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordProductOperation(ctx, "create", outcome, time.Since(start)) }()

	product, err := validateCreateInput(input)
	if err != nil {
		outcome = "bad_request"
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "product.create", trace.WithAttributes(
		attribute.String("product.category", product.Category),
		attribute.Int("product.stock", product.Stock),
	))
	defer span.End()

	if err := s.repo.Create(ctx, product); err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, repository.ErrProductConflict):
			outcome = "conflict"
		case errors.Is(err, repository.ErrProductConstraint):
			outcome = "bad_request"
		default:
			outcome = "error"
			span.SetStatus(codes.Error, "create failed")
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int64("product.id", int64(product.ID)))
	return product, nil
}

func validateCreateInput(input CreateProductInput) (*domain.Product, error) {
	name := strings.TrimSpace(input.Name)
	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameLength {
		return nil, invalid("name", "must be between 1 and 255 characters")
	}
	category := strings.TrimSpace(input.Category)
	if n := utf8.RuneCountInString(category); n == 0 || n > maxCategoryLength {
		return nil, invalid("category", "must be between 1 and 100 characters")
	}

	price, err := decimal.NewFromString(strings.TrimSpace(input.Price))
	if err != nil {
		return nil, invalid("price", "must be a decimal number")
	}
	switch {
	case !price.IsPositive():
		return nil, invalid("price", "must be greater than 0")
	case !price.Equal(price.Truncate(2)):
		return nil, invalid("price", "must have at most 2 decimal places")
	case price.GreaterThanOrEqual(maxPrice):
		return nil, invalid("price", "must be less than 100000000")
	}

	stock, err := strconv.ParseInt(strings.TrimSpace(input.Stock), 10, 32)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return nil, invalid("stock", "is too large")
		}
		return nil, invalid("stock", "must be a whole number")
	}
	if stock < 0 {
		return nil, invalid("stock", "must not be negative")
	}

	return &domain.Product{
		Name:     name,
		Category: category,
		Price:    price.Truncate(2),
		Stock:    int(stock),
	}, nil
}
