package domain

import (
	"strconv"
	"strings"
	"time"
)

// Offer mechanics. Only percentage and fixed_amount have a direct price
// meaning; the rest get policy-defined discount-depth proxies in the
// feature builder.
const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed_amount"
	DiscountBOGO       = "bogo"
	DiscountVolume     = "volume_bonus"
	DiscountBundle     = "bundle"
	DiscountFreeGift   = "free_gift"
)

// Offer targets a single product within a validity window. Scope fields are
// comma-separated allow-lists; an empty scope means unrestricted.
type Offer struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	ProductID      uint64    `gorm:"column:product_id;not null;index"`
	DiscountType   string    `gorm:"column:discount_type;not null"`
	DiscountValue  float64   `gorm:"column:discount_value;type:numeric"`
	StartDate      time.Time `gorm:"column:start_date;not null"`
	EndDate        time.Time `gorm:"column:end_date;not null;index"`
	StoreScope     string    `gorm:"column:store_scope;type:text"`
	SegmentScope   string    `gorm:"column:segment_scope;type:text"`
	TierScope      string    `gorm:"column:tier_scope;type:text"`
	MaxRedemptions int       `gorm:"column:max_redemptions;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Offer) TableName() string {
	return "offers"
}

// ActiveOn reports whether the offer's validity window includes the date.
func (o Offer) ActiveOn(date time.Time) bool {
	day := date.Truncate(24 * time.Hour)
	return !o.StartDate.After(day) && !o.EndDate.Before(day)
}

// SegmentAllows reports whether the segment scope admits the given segment.
func (o Offer) SegmentAllows(segment string) bool {
	return scopeAllows(o.SegmentScope, segment)
}

// TierAllows reports whether the loyalty-tier scope admits the given tier.
func (o Offer) TierAllows(tier string) bool {
	return scopeAllows(o.TierScope, tier)
}

// EligibleFor checks the offer's store, segment, and loyalty-tier scopes
// against a customer. Empty scopes allow everyone.
func (o Offer) EligibleFor(c Customer) bool {
	if !o.SegmentAllows(c.Segment) {
		return false
	}
	if !o.TierAllows(c.LoyaltyTier) {
		return false
	}
	if o.StoreScope != "" {
		if !scopeAllows(o.StoreScope, strconv.FormatUint(c.HomeStoreID, 10)) {
			return false
		}
	}
	return true
}

func scopeAllows(scope, value string) bool {
	if scope == "" {
		return true
	}
	for _, s := range strings.Split(scope, ",") {
		if strings.TrimSpace(s) == value {
			return true
		}
	}
	return false
}
