package domain

import (
	"time"
)

// Product carries the tiered price list: unit price drops to Tier2Price once
// a line item reaches Tier2Qty units, and again at Tier3Qty. A zero threshold
// means the tier is not offered for that product.
type Product struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	Name       string    `gorm:"column:name;type:text"`
	Category   string    `gorm:"column:category;not null;index"`
	Brand      string    `gorm:"column:brand;type:text"`
	IsOwnBrand bool      `gorm:"column:is_own_brand;default:false"`
	BasePrice  float64   `gorm:"column:base_price;type:numeric"`
	Margin     float64   `gorm:"column:margin;type:numeric"`
	Tier2Qty   int       `gorm:"column:tier2_qty"`
	Tier2Price float64   `gorm:"column:tier2_price;type:numeric"`
	Tier3Qty   int       `gorm:"column:tier3_qty"`
	Tier3Price float64   `gorm:"column:tier3_price;type:numeric"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Product) TableName() string {
	return "products"
}

// HasTierPricing reports whether the product offers any bulk tier at all.
func (p Product) HasTierPricing() bool {
	return p.Tier2Qty > 0 || p.Tier3Qty > 0
}
