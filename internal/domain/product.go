package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Name      string          `gorm:"size:255;not null;uniqueIndex:idx_products_name" json:"name"`
	Category  string          `gorm:"size:100;not null;index" json:"category"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null;check:chk_products_price_positive,price > 0" json:"price"`
	Stock     int             `gorm:"not null;default:0;check:chk_products_stock_non_negative,stock >= 0" json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
