package loadgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type RaceConfig struct {
	BaseURL    string
	Stock      int
	Buyers     int
	Quantity   int
	HTTPClient *http.Client
}

type RaceResult struct {
	ProductID    uint
	Stock        int
	Quantity     int
	Buyers       int
	Succeeded    int64
	Insufficient int64
	RateLimited  int64
	Failed       int64
	FinalStock   int
}

// ExpectedSucceeded is the number of buyers that can be served when every
// request reaches the store.
func (r RaceResult) ExpectedSucceeded() int64 {
	if r.Quantity <= 0 {
		return 0
	}
	return int64(min(r.Buyers, r.Stock/r.Quantity))
}

// Verify checks that no stock was oversold or lost. The exact success count
// is only asserted when no request was throttled or failed in transport.
func (r RaceResult) Verify() error {
	if r.FinalStock < 0 {
		return fmt.Errorf("oversold: final stock %d", r.FinalStock)
	}
	if want := r.Stock - int(r.Succeeded)*r.Quantity; r.FinalStock != want {
		return fmt.Errorf("stock drift: final stock %d, expected %d after %d successful purchases", r.FinalStock, want, r.Succeeded)
	}
	if r.RateLimited == 0 && r.Failed == 0 && r.Succeeded != r.ExpectedSucceeded() {
		return fmt.Errorf("expected %d successful purchases, got %d", r.ExpectedSucceeded(), r.Succeeded)
	}
	return nil
}

// Race creates a fresh product and releases all buyers at once against it.
func Race(ctx context.Context, cfg RaceConfig) (RaceResult, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Stock < 0 || cfg.Buyers <= 0 || cfg.Quantity <= 0 {
		return RaceResult{}, errors.New("stock must be >= 0, buyers and quantity must be > 0")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	client := newAPIClient(cfg.BaseURL, cfg.HTTPClient)

	name := "loadgen-race-" + uuid.NewString()[:8]
	product, err := client.createProduct(ctx, name, "Loadgen", "9.99", cfg.Stock)
	if err != nil {
		return RaceResult{}, err
	}
	res := RaceResult{ProductID: product.ID, Stock: cfg.Stock, Quantity: cfg.Quantity, Buyers: cfg.Buyers}

	var succeeded, insufficient, limited, failed atomic.Int64
	var mu sync.Mutex
	var unexpected []string
	start := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	for range cfg.Buyers {
		g.Go(func() error {
			<-start
			status, env, err := client.do(gctx, http.MethodPost, purchasePath(product.ID), purchaseBody(cfg.Quantity), uuid.NewString())
			switch {
			case err != nil:
				failed.Add(1)
			case status == http.StatusOK:
				succeeded.Add(1)
			case status == http.StatusConflict && env.errorCode() == "INSUFFICIENT_STOCK":
				insufficient.Add(1)
			case status == http.StatusTooManyRequests:
				limited.Add(1)
			default:
				failed.Add(1)
				mu.Lock()
				unexpected = append(unexpected, fmt.Sprintf("%d %s", status, env.errorCode()))
				mu.Unlock()
			}
			return nil
		})
	}
	close(start)
	_ = g.Wait()

	final, err := client.getProduct(ctx, product.ID)
	if err != nil {
		return res, err
	}
	res.Succeeded = succeeded.Load()
	res.Insufficient = insufficient.Load()
	res.RateLimited = limited.Load()
	res.Failed = failed.Load()
	res.FinalStock = final.Stock
	if err := res.Verify(); err != nil {
		return res, err
	}
	if len(unexpected) > 0 {
		return res, fmt.Errorf("unexpected purchase responses: %v", unexpected)
	}
	return res, nil
}
