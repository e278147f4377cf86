package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sandeepkv93/storefront-inventory-service/internal/domain"
	"github.com/sandeepkv93/storefront-inventory-service/internal/observability"
)

type sampleProduct struct {
	name     string
	category string
	price    string
	stock    int
}

var sampleCatalog = []sampleProduct{
	{"Mechanical Keyboard", "Electronics", "89.90", 25},
	{"Wireless Mouse", "Electronics", "24.50", 60},
	{"27in Monitor", "Electronics", "219.00", 8},
	{"Espresso Machine", "Home", "349.99", 5},
	{"Cast Iron Skillet", "Home", "39.95", 40},
	{"Trail Running Shoes", "Sports", "119.00", 15},
	{"Yoga Mat", "Sports", "22.00", 70},
	{"Limited Edition Print", "Collectibles", "150.00", 1},
}

// SampleProducts returns the built-in demo catalog.
func SampleProducts() []domain.Product {
	out := make([]domain.Product, 0, len(sampleCatalog))
	for _, s := range sampleCatalog {
		out = append(out, domain.Product{
			Name:     s.name,
			Category: s.category,
			Price:    decimal.RequireFromString(s.price),
			Stock:    s.stock,
		})
	}
	return out
}

type SeedReport struct {
	CreatedProducts int  `json:"created_products"`
	ExistingSkipped int  `json:"existing_skipped"`
	Noop            bool `json:"noop"`
}

// SeedSampleCatalog inserts the demo products that are not present yet. Products
// are matched by name so existing stock levels are never overwritten.
func SeedSampleCatalog(ctx context.Context, db *gorm.DB) (*SeedReport, error) {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "seed", time.Since(start))
	}()

	report := &SeedReport{}
	for _, p := range SampleProducts() {
		res := db.WithContext(ctx).Where("name = ?", p.Name).FirstOrCreate(&p)
		if res.Error != nil {
			observability.RecordDatabaseStartupEvent(ctx, "seed", "error")
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			report.CreatedProducts++
		} else {
			report.ExistingSkipped++
		}
	}
	report.Noop = report.CreatedProducts == 0
	observability.RecordDatabaseStartupEvent(ctx, "seed", "success")
	return report, nil
}

type CatalogStats struct {
	Products   int64           `json:"products"`
	Categories int64           `json:"categories"`
	TotalStock int64           `json:"total_stock"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
	MinPrice   decimal.Decimal `json:"min_price"`
	MaxPrice   decimal.Decimal `json:"max_price"`
}

func ReadCatalogStats(ctx context.Context, db *gorm.DB) (CatalogStats, error) {
	var (
		stats           CatalogStats
		totalStock      sql.NullInt64
		avg, minP, maxP decimal.NullDecimal
	)
	row := db.WithContext(ctx).Model(&domain.Product{}).
		Select("COUNT(*), COUNT(DISTINCT category), SUM(stock), AVG(price), MIN(price), MAX(price)").
		Row()
	if err := row.Scan(&stats.Products, &stats.Categories, &totalStock, &avg, &minP, &maxP); err != nil {
		return CatalogStats{}, err
	}
	stats.TotalStock = totalStock.Int64
	stats.AvgPrice = avg.Decimal.Round(2)
	stats.MinPrice = minP.Decimal
	stats.MaxPrice = maxP.Decimal
	return stats, nil
}
