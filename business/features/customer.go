package features

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"offerRank/domain"
	"offerRank/pkg/logger"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// customerHistory is the per-customer slice of lookback facts.
type customerHistory struct {
	customer domain.Customer
	lines    []domain.OrderLineFact
}

// BuildCustomerFeatures computes one feature row per customer from the
// lookback window ending at refDate and transactionally replaces the
// customer_features rows for that date.
func (s *Service) BuildCustomerFeatures(ctx context.Context, refDate time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error: %w", err)
	}

	customers, err := s.historyRepo.Customers(ctx)
	if err != nil {
		return 0, fmt.Errorf("load customers: %w", err)
	}

	from := refDate.AddDate(0, 0, -s.cfg.LookbackDays)
	lines, err := s.historyRepo.LineFacts(ctx, from, refDate)
	if err != nil {
		return 0, fmt.Errorf("load line facts: %w", err)
	}

	byCustomer := make(map[uint64][]domain.OrderLineFact)
	for _, l := range lines {
		byCustomer[l.CustomerID] = append(byCustomer[l.CustomerID], l)
	}

	// Per-customer computation is independent; fan out across workers and
	// collect into a preallocated slice so writes stay a single replace.
	rows := make([]domain.CustomerFeatures, len(customers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())

	for i, cust := range customers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = computeCustomerRow(customerHistory{
				customer: cust,
				lines:    byCustomer[cust.ID],
			}, refDate)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("compute customer features: %w", err)
	}

	if err := s.featureRepo.ReplaceCustomerFeatures(ctx, refDate, rows); err != nil {
		return 0, fmt.Errorf("replace customer features: %w", err)
	}

	logger.Info("customer_features built",
		"reference_date", refDate.Format("2006-01-02"),
		"rows", len(rows),
	)
	return len(rows), nil
}

func (s *Service) workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return 1
}

// computeCustomerRow aggregates one customer's lookback history. Customers
// with no orders get sentinel values, never NULL/NaN.
func computeCustomerRow(h customerHistory, refDate time.Time) domain.CustomerFeatures {
	row := domain.CustomerFeatures{
		CustomerID:    h.customer.ID,
		ReferenceDate: refDate,
		RecencyDays:   domain.RecencySentinel,
		Segment:       h.customer.Segment,
		LoyaltyTier:   h.customer.LoyaltyTier,
		TopCategories: datatypes.JSON("[]"),
	}
	if len(h.lines) == 0 {
		return row
	}

	type orderAgg struct {
		orderedAt time.Time
		total     float64
		numItems  int
		quantity  int
	}
	orders := make(map[uint64]*orderAgg)

	var (
		totalLines   int
		promoLines   int
		depthSum     float64
		depthLines   int
		totalQty     int
		tier2Qty     int
		tier3Qty     int
		savingsSum   float64
		savingsLines int
	)
	catSpend := make(map[string]float64)

	for _, l := range h.lines {
		o, ok := orders[l.OrderID]
		if !ok {
			o = &orderAgg{orderedAt: l.OrderedAt, total: l.OrderTotal, numItems: l.NumItems}
			orders[l.OrderID] = o
		}
		o.quantity += l.Quantity

		totalLines++
		if l.IsPromo {
			promoLines++
			depthSum += l.DiscountAmount / math.Max(l.UnitPrice, 0.01)
			depthLines++
		}

		totalQty += l.Quantity
		switch l.PricingTier {
		case 2:
			tier2Qty += l.Quantity
		case 3:
			tier3Qty += l.Quantity
		}
		if l.PricingTier > 1 && l.BasePrice > 0 {
			savingsSum += (l.BasePrice - l.UnitPrice) / l.BasePrice * 100.0
			savingsLines++
		}

		catSpend[l.Category] += l.Spend()
	}

	var (
		latest     time.Time
		monetary   float64
		itemsSum   int
		qtySum     int
		totalSpend float64
	)
	for _, o := range orders {
		if o.orderedAt.After(latest) {
			latest = o.orderedAt
		}
		monetary += o.total
		itemsSum += o.numItems
		qtySum += o.quantity
	}
	n := float64(len(orders))

	row.RecencyDays = math.Max(0, refDate.Sub(latest).Hours()/24)
	row.Frequency = n
	row.Monetary = monetary
	row.PromoAffinity = float64(promoLines) / float64(totalLines)
	row.AvgBasketSize = float64(itemsSum) / n
	row.AvgBasketQty = float64(qtySum) / n
	row.AvgOrderValue = monetary / n
	if depthLines > 0 {
		row.AvgDiscountDepth = depthSum / float64(depthLines)
	}
	if totalQty > 0 {
		row.Tier2PurchaseRatio = float64(tier2Qty) / float64(totalQty)
		row.Tier3PurchaseRatio = float64(tier3Qty) / float64(totalQty)
	}
	if savingsLines > 0 {
		row.AvgTierSavingsPct = savingsSum / float64(savingsLines)
	}

	for _, spend := range catSpend {
		totalSpend += spend
	}
	row.CategoryEntropy = spendEntropy(catSpend, totalSpend)
	row.TopCategories = datatypes.JSON(topCategoriesJSON(catSpend, 3))

	return row
}

// spendEntropy is the Shannon entropy (natural log) of the spend share per
// category. Zero when everything is in one category or nothing was bought.
func spendEntropy(catSpend map[string]float64, total float64) float64 {
	if total <= 0 || len(catSpend) <= 1 {
		return 0
	}
	entropy := 0.0
	for _, spend := range catSpend {
		p := spend / total
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}
	return entropy
}

// topCategoriesJSON returns the top-k categories by spend, spend descending
// then name ascending so the result is stable.
func topCategoriesJSON(catSpend map[string]float64, k int) []byte {
	type catAmount struct {
		name  string
		spend float64
	}
	cats := make([]catAmount, 0, len(catSpend))
	for name, spend := range catSpend {
		cats = append(cats, catAmount{name: name, spend: spend})
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].spend == cats[j].spend {
			return cats[i].name < cats[j].name
		}
		return cats[i].spend > cats[j].spend
	})
	if len(cats) > k {
		cats = cats[:k]
	}
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.name)
	}
	raw, _ := json.Marshal(names)
	return raw
}

// TopCategories decodes the stored top-categories list from a feature row.
func TopCategories(row domain.CustomerFeatures) []string {
	var cats []string
	if err := json.Unmarshal(row.TopCategories, &cats); err != nil {
		return nil
	}
	return cats
}
