package domain

// SegmentOfferStat aggregates impression/redemption history per
// (segment, offer). Query projection, not a table.
type SegmentOfferStat struct {
	Segment     string `gorm:"column:segment"`
	OfferID     uint64 `gorm:"column:offer_id"`
	Impressions int64  `gorm:"column:impressions"`
	Redemptions int64  `gorm:"column:redemptions"`
}
