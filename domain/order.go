package domain

import (
	"time"
)

type Order struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	CustomerID  uint64    `gorm:"column:customer_id;not null;index"`
	StoreID     uint64    `gorm:"column:store_id"`
	TotalAmount float64   `gorm:"column:total_amount;type:numeric"`
	NumItems    int       `gorm:"column:num_items"`
	OrderedAt   time.Time `gorm:"column:ordered_at;not null;index"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem records what was actually paid: UnitPrice is the tier price the
// customer got, PricingTier which tier applied (1..3). Facts are immutable
// once written.
type OrderItem struct {
	ID             uint64  `gorm:"primaryKey;autoIncrement"`
	OrderID        uint64  `gorm:"column:order_id;not null;index"`
	ProductID      uint64  `gorm:"column:product_id;not null;index"`
	Quantity       int     `gorm:"column:quantity;not null"`
	UnitPrice      float64 `gorm:"column:unit_price;type:numeric"`
	PricingTier    int     `gorm:"column:pricing_tier;default:1"`
	IsPromo        bool    `gorm:"column:is_promo;default:false"`
	DiscountAmount float64 `gorm:"column:discount_amount;type:numeric"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
