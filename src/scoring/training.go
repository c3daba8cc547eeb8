package scoring

import (
	"context"
	"fmt"
	"sort"

	"credit-observer/src/analysis/core"
	"credit-observer/src/features"
	"credit-observer/src/logger"
	"credit-observer/src/models"
)

// ProxyLabel is the rule-based creditworthiness target used in place of
// ground-truth ratings. It is deterministic in the vector.
func ProxyLabel(fv models.MFeatureVector) float64 {
	get := func(name string, def float64) float64 {
		if v, ok := fv.Value(name); ok {
			return v
		}
		return def
	}

	label := 0.6
	if get(features.DebtToEquity, 0) > 1.0 {
		label -= 0.1
	}
	if get(features.CurrentRatio, 1) < 1.0 {
		label -= 0.1
	}
	if get(features.ROE, 0) > 0.15 {
		label += 0.1
	}
	if get(features.PriceChange30D, 0) < -0.2 {
		label -= 0.1
	}
	if get(features.Volatility30D, 0) > 0.05 {
		label -= 0.05
	}
	switch s := get(features.NewsSentiment, 50); {
	case s < 40:
		label -= 0.1
	case s > 60:
		label += 0.05
	}
	return core.Clamp(label, 0.1, 0.9)
}

// -----------------------------------------------------------------------------

type FeatureBuilder interface {
	BuildFeatures(ctx context.Context, symbol string, asOf int64) (models.MFeatureVector, error)
}

type TrainingStore interface {
	ListIssuers(ctx context.Context) ([]models.MIssuer, error)
	GetScoreHistory(ctx context.Context, symbol string, since int64, limit int) ([]models.MCreditScore, error)
}

// BuildTrainingSet labels feature vectors for every issuer at asOf and at
// each past scoring time, up to historyLimit per issuer. An issuer whose
// features cannot be built is skipped.
func BuildTrainingSet(ctx context.Context, store TrainingStore, builder FeatureBuilder, asOf int64, historyLimit int, log *logger.Logger) (models.MTrainingSet, error) {
	if log == nil {
		log = logger.NewLogger(nil, "TrainingSet")
	}
	issuers, err := store.ListIssuers(ctx)
	if err != nil {
		return models.MTrainingSet{}, fmt.Errorf("list issuers: %w", err)
	}

	set := models.MTrainingSet{FeatureNames: append([]string(nil), features.FeatureNames...)}
	for _, is := range issuers {
		points := map[int64]bool{asOf: true}
		history, err := store.GetScoreHistory(ctx, is.Symbol, 0, historyLimit)
		if err != nil {
			log.Warning("No score history for %s: %v", is.Symbol, err)
		}
		for _, h := range history {
			if h.Timestamp <= asOf {
				points[h.Timestamp] = true
			}
		}
		ordered := make([]int64, 0, len(points))
		for ts := range points {
			ordered = append(ordered, ts)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

		for _, ts := range ordered {
			if err := ctx.Err(); err != nil {
				return set, err
			}
			fv, err := builder.BuildFeatures(ctx, is.Symbol, ts)
			if err != nil {
				log.Warning("Skipping %s @%d: %v", is.Symbol, ts, err)
				continue
			}
			set.Samples = append(set.Samples, models.MTrainingSample{
				Symbol:   is.Symbol,
				AsOf:     ts,
				Features: fv.Values,
				Label:    ProxyLabel(fv),
			})
		}
	}
	log.Info("Built training set: %d samples from %d issuers", len(set.Samples), len(issuers))
	return set, nil
}
