package domain

import (
	"time"
)

// Recommendation is the final pipeline output: at most N per customer per
// run date, ranks contiguous from 1, scores non-increasing with rank.
type Recommendation struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	RunDate    time.Time `gorm:"column:run_date;not null;uniqueIndex:idx_recs_run_cust_offer;index"`
	CustomerID uint64    `gorm:"column:customer_id;not null;uniqueIndex:idx_recs_run_cust_offer;index:idx_recs_cust"`
	OfferID    uint64    `gorm:"column:offer_id;not null;uniqueIndex:idx_recs_run_cust_offer"`
	Score      float64   `gorm:"column:score;not null"`
	Rank       int       `gorm:"column:rank;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Recommendation) TableName() string {
	return "recommendations"
}
