package loadgen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/storefront-inventory-service/internal/observability"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
	HTTPClient  *http.Client
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status5xx     int64
	Purchases     int64
}

type job struct {
	method         string
	path           string
	body           []byte
	idempotencyKey string
}

// Run drives catalog traffic at a fixed rate until cfg.Duration elapses.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	profile := strings.ToLower(strings.TrimSpace(cfg.Profile))
	if profile == "" {
		profile = "mixed"
	}
	if !knownProfile(profile) {
		return Result{}, fmt.Errorf("unknown profile: %s", cfg.Profile)
	}

	client := newAPIClient(cfg.BaseURL, cfg.HTTPClient)
	ids, err := discoverProductIDs(ctx, client)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var total, failures, s2xx, s4xx, s5xx, purchases atomic.Int64
	jobs := make(chan job, cfg.Concurrency*2)
	var wg sync.WaitGroup

	for range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				status, _, err := client.do(ctx, j.method, j.path, j.body, j.idempotencyKey)
				if err != nil {
					if ctx.Err() == nil {
						failures.Add(1)
					}
					continue
				}
				total.Add(1)
				if strings.HasSuffix(j.path, "/purchase") {
					purchases.Add(1)
				}
				class := statusClass(status)
				switch class {
				case "2xx":
					s2xx.Add(1)
				case "4xx":
					s4xx.Add(1)
				case "5xx":
					s5xx.Add(1)
				}
				observability.RecordLoadgenRequest(ctx, class, profile)
			}
		}()
	}

	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)>>1|1))
	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return Result{
				TotalRequests: total.Load(),
				Failures:      failures.Load(),
				Status2xx:     s2xx.Load(),
				Status4xx:     s4xx.Load(),
				Status5xx:     s5xx.Load(),
				Purchases:     purchases.Load(),
			}, nil
		case <-ticker.C:
			select {
			case jobs <- nextJob(profile, ids, rng):
			case <-ctx.Done():
			}
		}
	}
}

func discoverProductIDs(ctx context.Context, client *apiClient) ([]uint, error) {
	products, err := client.listProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover catalog: %w", err)
	}
	ids := make([]uint, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		// Empty catalog still produces valid 404 traffic.
		ids = append(ids, 1)
	}
	return ids, nil
}

func knownProfile(profile string) bool {
	switch profile {
	case "browse", "mixed", "purchase-heavy", "error-heavy":
		return true
	}
	return false
}

func nextJob(profile string, ids []uint, rng *rand.Rand) job {
	id := ids[rng.IntN(len(ids))]
	browse := func() job {
		if rng.IntN(3) == 0 {
			return job{method: http.MethodGet, path: "/api/v1/products"}
		}
		return job{method: http.MethodGet, path: productPath(id)}
	}
	purchase := func() job {
		return job{
			method:         http.MethodPost,
			path:           purchasePath(id),
			body:           purchaseBody(1 + rng.IntN(2)),
			idempotencyKey: uuid.NewString(),
		}
	}

	switch profile {
	case "browse":
		return browse()
	case "purchase-heavy":
		if rng.IntN(4) == 0 {
			return browse()
		}
		return purchase()
	case "error-heavy":
		switch rng.IntN(4) {
		case 0:
			return job{method: http.MethodGet, path: "/api/v1/products/not-a-number"}
		case 1:
			return job{method: http.MethodGet, path: productPath(4_000_000_000)}
		case 2:
			return job{method: http.MethodPost, path: purchasePath(id), body: purchaseBody(0)}
		default:
			return job{method: http.MethodPost, path: purchasePath(id), body: purchaseBody(1_000_000)}
		}
	default:
		if rng.IntN(5) == 0 {
			return purchase()
		}
		return browse()
	}
}

func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	}
	return "other"
}
