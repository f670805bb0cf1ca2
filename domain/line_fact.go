package domain

import (
	"time"
)

// OrderLineFact is the flattened order/line-item/product row the pipeline
// aggregates over. It is a query projection, not a table.
type OrderLineFact struct {
	OrderID    uint64    `gorm:"column:order_id"`
	CustomerID uint64    `gorm:"column:customer_id"`
	ProductID  uint64    `gorm:"column:product_id"`
	OrderedAt  time.Time `gorm:"column:ordered_at"`
	OrderTotal float64   `gorm:"column:order_total"`
	NumItems   int       `gorm:"column:num_items"`

	Quantity       int     `gorm:"column:quantity"`
	UnitPrice      float64 `gorm:"column:unit_price"`
	PricingTier    int     `gorm:"column:pricing_tier"`
	IsPromo        bool    `gorm:"column:is_promo"`
	DiscountAmount float64 `gorm:"column:discount_amount"`

	Category   string  `gorm:"column:category"`
	Brand      string  `gorm:"column:brand"`
	IsOwnBrand bool    `gorm:"column:is_own_brand"`
	BasePrice  float64 `gorm:"column:base_price"`
	Tier2Qty   int     `gorm:"column:tier2_qty"`
	Tier3Qty   int     `gorm:"column:tier3_qty"`
}

// Spend is what the customer actually paid for the line.
func (f OrderLineFact) Spend() float64 {
	return f.UnitPrice * float64(f.Quantity)
}
