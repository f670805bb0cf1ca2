package domain

import (
	"time"
)

// Strategy tags form a closed set with a fixed priority order; when two
// strategies propose the same offer the higher-priority tag wins.
type Strategy string

const (
	StrategyCategoryAffinity Strategy = "category_affinity"
	StrategySegmentPopular   Strategy = "segment_popular"
	StrategyRepeatPurchase   Strategy = "repeat_purchase"
	StrategyTierUpgrade      Strategy = "tier_upgrade"
	StrategyCrossSell        Strategy = "cross_sell"
	StrategyOwnBrand         Strategy = "own_brand"
	StrategyHighMargin       Strategy = "high_margin"
)

// StrategyPriority lists all strategies highest-priority first.
var StrategyPriority = []Strategy{
	StrategyCategoryAffinity,
	StrategySegmentPopular,
	StrategyRepeatPurchase,
	StrategyTierUpgrade,
	StrategyCrossSell,
	StrategyOwnBrand,
	StrategyHighMargin,
}

// CandidatePoolEntry is the unit of work handed to scoring. The strategy tag
// is kept for explainability, never used as a model feature.
type CandidatePoolEntry struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	RunDate    time.Time `gorm:"column:run_date;not null;uniqueIndex:idx_pool_run_cust_offer;index"`
	CustomerID uint64    `gorm:"column:customer_id;not null;uniqueIndex:idx_pool_run_cust_offer"`
	OfferID    uint64    `gorm:"column:offer_id;not null;uniqueIndex:idx_pool_run_cust_offer"`
	Strategy   Strategy  `gorm:"column:strategy;not null"`
}

func (CandidatePoolEntry) TableName() string {
	return "candidate_pool"
}
