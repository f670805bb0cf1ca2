package ranker

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"offerRank/business/features"
	"offerRank/domain"
	"offerRank/pkg/config"
	"offerRank/pkg/logger"
)

// EventRepository reads the engagement log the labels come from.
type EventRepository interface {
	ImpressionsBetween(ctx context.Context, from, until time.Time) ([]domain.Impression, error)
	RedemptionsBetween(ctx context.Context, from, until time.Time) ([]domain.Redemption, error)
}

// FeatureSource reads built feature snapshots and derives pair features.
type FeatureSource interface {
	CustomerFeaturesAt(ctx context.Context, refDate time.Time) ([]domain.CustomerFeatures, error)
	OfferFeaturesAt(ctx context.Context, refDate time.Time) ([]domain.OfferFeatures, error)
}

type InteractionSource interface {
	InteractionFeatures(ctx context.Context, pairs []features.Pair, refDate time.Time) (map[features.Pair]domain.InteractionFeatures, error)
}

type Trainer struct {
	eventRepo    EventRepository
	featureRepo  FeatureSource
	interactions InteractionSource
	artifactRepo ArtifactRepository
	cfg          config.PipelineConfig
}

func NewTrainer(eventRepo EventRepository, featureRepo FeatureSource, interactions InteractionSource, artifactRepo ArtifactRepository, cfg config.PipelineConfig) *Trainer {
	return &Trainer{
		eventRepo:    eventRepo,
		featureRepo:  featureRepo,
		interactions: interactions,
		artifactRepo: artifactRepo,
		cfg:          cfg,
	}
}

type example struct {
	pair  features.Pair
	label float64
}

// Train labels lookback impressions, fits both model families, and persists
// the one with the better validation AUC as the new active artifact.
// Returns (nil, false, nil) when there are too few positives to train; the
// caller keeps the previous artifact in that case.
func (t *Trainer) Train(ctx context.Context, refDate time.Time) (*domain.RankerArtifact, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context error: %w", err)
	}

	examples, positives, err := t.labelImpressions(ctx, refDate)
	if err != nil {
		return nil, false, err
	}
	if positives < t.cfg.MinPositives {
		logger.Warn("not enough positives to train",
			"positives", positives,
			"required", t.cfg.MinPositives,
		)
		return nil, false, nil
	}

	examples = downsampleNegatives(examples, positives, t.cfg.NegativeSampleRatio, int64(t.cfg.Seed))

	X, y, err := t.assembleMatrix(ctx, examples, refDate)
	if err != nil {
		return nil, false, err
	}

	rng := rand.New(rand.NewSource(int64(t.cfg.Seed)))
	rng.Shuffle(len(X), func(i, j int) {
		X[i], X[j] = X[j], X[i]
		y[i], y[j] = y[j], y[i]
	})
	cut := len(X) * 8 / 10
	if cut < 1 {
		cut = 1
	}
	trainX, trainY := X[:cut], y[:cut]
	valX, valY := X[cut:], y[cut:]

	logistic := trainLogistic(trainX, trainY, int64(t.cfg.Seed))
	gbdt := trainGBDT(trainX, trainY)

	logisticAUC := validationAUC(logistic, valX, valY)
	gbdtAUC := validationAUC(gbdt, valX, valY)

	name, model, auc := modelNameLogistic, predictor(logistic), logisticAUC
	if gbdtAUC >= logisticAUC {
		name, model, auc = modelNameGBDT, gbdt, gbdtAUC
	}

	artifact, err := newArtifact(name, model, auc, refDate, features.Columns)
	if err != nil {
		return nil, false, err
	}
	if err := t.artifactRepo.SaveActive(ctx, artifact); err != nil {
		return nil, false, fmt.Errorf("save artifact: %w", err)
	}

	logger.Info("ranker trained",
		"model", name,
		"validation_auc", auc,
		"examples", len(X),
		"positives", positives,
	)
	return artifact, true, nil
}

// labelImpressions marks an impression positive when the same customer
// redeemed the same offer inside the redemption window after it was shown.
// The result is deduplicated per (customer, offer, label).
func (t *Trainer) labelImpressions(ctx context.Context, refDate time.Time) ([]example, int, error) {
	from := refDate.AddDate(0, 0, -t.cfg.LookbackDays)

	impressions, err := t.eventRepo.ImpressionsBetween(ctx, from, refDate)
	if err != nil {
		return nil, 0, fmt.Errorf("load impressions: %w", err)
	}
	redemptions, err := t.eventRepo.RedemptionsBetween(ctx, from, refDate)
	if err != nil {
		return nil, 0, fmt.Errorf("load redemptions: %w", err)
	}

	redeemedAt := make(map[features.Pair][]time.Time)
	for _, r := range redemptions {
		p := features.Pair{CustomerID: r.CustomerID, OfferID: r.OfferID}
		redeemedAt[p] = append(redeemedAt[p], r.RedeemedAt)
	}

	window := time.Duration(t.cfg.RedemptionWindow) * 24 * time.Hour
	type key struct {
		pair  features.Pair
		label float64
	}
	seen := make(map[key]struct{})
	var examples []example
	positives := 0

	for _, imp := range impressions {
		p := features.Pair{CustomerID: imp.CustomerID, OfferID: imp.OfferID}
		label := 0.0
		for _, at := range redeemedAt[p] {
			d := at.Sub(imp.ShownAt)
			if d >= 0 && d <= window {
				label = 1
				break
			}
		}
		k := key{pair: p, label: label}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		examples = append(examples, example{pair: p, label: label})
		if label == 1 {
			positives++
		}
	}

	// map iteration upstream must not leak into example order
	sort.Slice(examples, func(i, j int) bool {
		a, b := examples[i], examples[j]
		if a.pair.CustomerID != b.pair.CustomerID {
			return a.pair.CustomerID < b.pair.CustomerID
		}
		if a.pair.OfferID != b.pair.OfferID {
			return a.pair.OfferID < b.pair.OfferID
		}
		return a.label < b.label
	})
	return examples, positives, nil
}

// downsampleNegatives keeps at most ratio negatives per positive, chosen by
// a seeded shuffle. Positives are never resampled.
func downsampleNegatives(examples []example, positives, ratio int, seed int64) []example {
	if ratio <= 0 {
		return examples
	}
	var pos, neg []example
	for _, ex := range examples {
		if ex.label == 1 {
			pos = append(pos, ex)
		} else {
			neg = append(neg, ex)
		}
	}
	keep := positives * ratio
	if len(neg) > keep {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(neg), func(i, j int) { neg[i], neg[j] = neg[j], neg[i] })
		neg = neg[:keep]
	}
	return append(pos, neg...)
}

func (t *Trainer) assembleMatrix(ctx context.Context, examples []example, refDate time.Time) ([][]float64, []float64, error) {
	custRows, err := t.featureRepo.CustomerFeaturesAt(ctx, refDate)
	if err != nil {
		return nil, nil, fmt.Errorf("load customer features: %w", err)
	}
	offerRows, err := t.featureRepo.OfferFeaturesAt(ctx, refDate)
	if err != nil {
		return nil, nil, fmt.Errorf("load offer features: %w", err)
	}

	custByID := make(map[uint64]domain.CustomerFeatures, len(custRows))
	for _, r := range custRows {
		custByID[r.CustomerID] = r
	}
	offerByID := make(map[uint64]domain.OfferFeatures, len(offerRows))
	for _, r := range offerRows {
		offerByID[r.OfferID] = r
	}

	pairs := make([]features.Pair, 0, len(examples))
	for _, ex := range examples {
		pairs = append(pairs, ex.pair)
	}
	inter, err := t.interactions.InteractionFeatures(ctx, pairs, refDate)
	if err != nil {
		return nil, nil, fmt.Errorf("build interaction features: %w", err)
	}

	X := make([][]float64, len(examples))
	y := make([]float64, len(examples))
	for i, ex := range examples {
		// impressions for churned customers or expired offers fall back to
		// zero-valued rows; training tolerates what scoring treats as fatal
		X[i] = features.Vector(features.Columns, custByID[ex.pair.CustomerID], offerByID[ex.pair.OfferID], inter[ex.pair])
		y[i] = ex.label
	}
	return X, y, nil
}

func validationAUC(model predictor, X [][]float64, y []float64) float64 {
	if len(X) == 0 {
		return 0.5
	}
	scores := make([]float64, len(X))
	for i, x := range X {
		scores[i] = model.Predict(x)
	}
	return rocAUC(scores, y)
}
