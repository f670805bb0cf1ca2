package postgres

import (
	"context"
	"fmt"
	"time"

	"offerRank/domain"

	"gorm.io/gorm"
)

// HistoryRepository reads the immutable transactional inputs: customers,
// products, offers, orders, impressions, redemptions. Nothing here writes.
type HistoryRepository struct {
	DB *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{DB: db}
}

func (r *HistoryRepository) Customers(ctx context.Context) ([]domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var customers []domain.Customer
	if err := r.DB.WithContext(ctx).Order("id").Find(&customers).Error; err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}

	return customers, nil
}

func (r *HistoryRepository) OffersActiveOn(ctx context.Context, date time.Time) ([]domain.Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var offers []domain.Offer
	err := r.DB.WithContext(ctx).
		Where("start_date <= ? AND end_date >= ?", date, date).
		Order("id").
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query active offers: %w", err)
	}

	return offers, nil
}

func (r *HistoryRepository) OffersByID(ctx context.Context, ids []uint64) (map[uint64]domain.Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	if len(ids) == 0 {
		return map[uint64]domain.Offer{}, nil
	}

	var offers []domain.Offer
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&offers).Error; err != nil {
		return nil, fmt.Errorf("failed to query offers: %w", err)
	}

	out := make(map[uint64]domain.Offer, len(offers))
	for _, o := range offers {
		out[o.ID] = o
	}
	return out, nil
}

func (r *HistoryRepository) ProductsByID(ctx context.Context, ids []uint64) (map[uint64]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	if len(ids) == 0 {
		return map[uint64]domain.Product{}, nil
	}

	var products []domain.Product
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	out := make(map[uint64]domain.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (r *HistoryRepository) LineFacts(ctx context.Context, from, until time.Time) ([]domain.OrderLineFact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var facts []domain.OrderLineFact
	err := r.DB.WithContext(ctx).
		Table("order_items").
		Select(`orders.id AS order_id,
			orders.customer_id,
			order_items.product_id,
			orders.ordered_at,
			orders.total_amount AS order_total,
			orders.num_items,
			order_items.quantity,
			order_items.unit_price,
			order_items.pricing_tier,
			order_items.is_promo,
			order_items.discount_amount,
			products.category,
			products.brand,
			products.is_own_brand,
			products.base_price,
			products.tier2_qty,
			products.tier3_qty`).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Joins("JOIN products ON products.id = order_items.product_id").
		Where("orders.ordered_at > ? AND orders.ordered_at <= ?", from, until).
		Order("orders.id, order_items.id").
		Scan(&facts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query order line facts: %w", err)
	}

	return facts, nil
}

func (r *HistoryRepository) ImpressionCounts(ctx context.Context, before time.Time) (map[uint64]int64, error) {
	return r.offerCounts(ctx, "impressions", "shown_at", before)
}

func (r *HistoryRepository) RedemptionCounts(ctx context.Context, before time.Time) (map[uint64]int64, error) {
	return r.offerCounts(ctx, "redemptions", "redeemed_at", before)
}

func (r *HistoryRepository) offerCounts(ctx context.Context, table, timeColumn string, before time.Time) (map[uint64]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	type countRow struct {
		OfferID uint64 `gorm:"column:offer_id"`
		Total   int64  `gorm:"column:total"`
	}
	var rows []countRow
	err := r.DB.WithContext(ctx).
		Table(table).
		Select("offer_id, COUNT(*) AS total").
		Where(timeColumn+" < ?", before).
		Group("offer_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", table, err)
	}

	out := make(map[uint64]int64, len(rows))
	for _, row := range rows {
		out[row.OfferID] = row.Total
	}
	return out, nil
}

func (r *HistoryRepository) SegmentOfferStats(ctx context.Context, before time.Time) ([]domain.SegmentOfferStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var stats []domain.SegmentOfferStat
	err := r.DB.WithContext(ctx).
		Table("impressions").
		Select(`customers.segment,
			impressions.offer_id,
			COUNT(*) AS impressions,
			COUNT(redemptions.id) AS redemptions`).
		Joins("JOIN customers ON customers.id = impressions.customer_id").
		Joins(`LEFT JOIN redemptions ON redemptions.customer_id = impressions.customer_id
			AND redemptions.offer_id = impressions.offer_id
			AND redemptions.redeemed_at >= impressions.shown_at
			AND redemptions.redeemed_at < ?`, before).
		Where("impressions.shown_at < ?", before).
		Group("customers.segment, impressions.offer_id").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query segment offer stats: %w", err)
	}

	return stats, nil
}

func (r *HistoryRepository) ImpressionsBetween(ctx context.Context, from, until time.Time) ([]domain.Impression, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var impressions []domain.Impression
	err := r.DB.WithContext(ctx).
		Where("shown_at >= ? AND shown_at < ?", from, until).
		Order("id").
		Find(&impressions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query impressions: %w", err)
	}

	return impressions, nil
}

func (r *HistoryRepository) RedemptionsBetween(ctx context.Context, from, until time.Time) ([]domain.Redemption, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var redemptions []domain.Redemption
	err := r.DB.WithContext(ctx).
		Where("redeemed_at >= ? AND redeemed_at < ?", from, until).
		Order("id").
		Find(&redemptions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query redemptions: %w", err)
	}

	return redemptions, nil
}
