package domain

import (
	"time"
)

// Customer segments (business types) used for eligibility scoping and
// popularity-based candidate retrieval.
const (
	SegmentBudget  = "budget"
	SegmentPremium = "premium"
	SegmentFamily  = "family"
	SegmentHoreca  = "horeca"
)

const (
	TierBronze = "bronze"
	TierSilver = "silver"
	TierGold   = "gold"
)

type Customer struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	Name        string    `gorm:"column:name;type:text"`
	Segment     string    `gorm:"column:segment;not null"`
	LoyaltyTier string    `gorm:"column:loyalty_tier;not null"`
	HomeStoreID uint64    `gorm:"column:home_store_id"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Customer) TableName() string {
	return "customers"
}
