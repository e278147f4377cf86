package service

//go:generate go run go.uber.org/mock/mockgen -destination=gomock/mock_services.go -package=gomock github.com/sandeepkv93/storefront-inventory-service/internal/service CatalogService,IngestionService,PurchaseService,IdempotencyStore

import (
	"context"
	"time"

	"github.com/sandeepkv93/storefront-inventory-service/internal/domain"
)

type CatalogService interface {
	List(ctx context.Context) ([]domain.Product, error)
	GetByID(ctx context.Context, id uint) (*domain.Product, error)
}

type IngestionService interface {
	Create(ctx context.Context, input CreateProductInput) (*domain.Product, error)
}

type PurchaseService interface {
	Purchase(ctx context.Context, input PurchaseInput) (PurchaseOutcome, error)
}

// IdempotencyStore reserves request keys so a retried purchase replays the first
// response instead of running again.
type IdempotencyStore interface {
	Begin(ctx context.Context, scope, key, fingerprint string, ttl time.Duration) (IdempotencyBeginResult, error)
	Complete(ctx context.Context, scope, key, fingerprint string, response CachedHTTPResponse, ttl time.Duration) error
	// Release drops an in-progress reservation whose request provably had no
	// effect, letting the client retry with the same key.
	Release(ctx context.Context, scope, key, fingerprint string) error
}
