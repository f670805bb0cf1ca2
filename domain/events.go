package domain

import (
	"time"
)

// Impression: an offer was shown to a customer on some channel. Append-only.
type Impression struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	CustomerID uint64    `gorm:"column:customer_id;not null;index:idx_impressions_cust_offer"`
	OfferID    uint64    `gorm:"column:offer_id;not null;index:idx_impressions_cust_offer"`
	Channel    string    `gorm:"column:channel;type:text"`
	ShownAt    time.Time `gorm:"column:shown_at;not null;index"`
}

func (Impression) TableName() string {
	return "impressions"
}

// Redemption links a customer, an offer, and the order it was used in.
// A redemption within the configured horizon after an impression is the
// positive label for ranker training.
type Redemption struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	CustomerID uint64    `gorm:"column:customer_id;not null;index:idx_redemptions_cust_offer"`
	OfferID    uint64    `gorm:"column:offer_id;not null;index:idx_redemptions_cust_offer"`
	OrderID    uint64    `gorm:"column:order_id;not null"`
	RedeemedAt time.Time `gorm:"column:redeemed_at;not null;index"`
}

func (Redemption) TableName() string {
	return "redemptions"
}
