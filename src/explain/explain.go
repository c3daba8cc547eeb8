package explain

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"credit-observer/src/logger"
	"credit-observer/src/models"
	"credit-observer/src/scoring"
)

const (
	defaultTopK      = 5
	defaultTolerance = 1e-3
	summaryFeatures  = 3
	// attributions smaller than this are not worth a sentence
	negligiblePoints = 0.05
)

// Explanation is the additive decomposition of one score.
type Explanation struct {
	ModelVersion string
	Baseline     float64
	Attributions []models.MFeatureAttribution
	Summary      string
}

// Explainer attributes scores to features.
type Explainer struct {
	Logger    *logger.Logger
	TopK      int
	Tolerance float64
}

func NewExplainer(cfg *models.MConfig, log *logger.Logger) *Explainer {
	if log == nil {
		log = logger.NewLogger(cfg, "Explainer")
	}
	x := &Explainer{Logger: log, TopK: defaultTopK, Tolerance: defaultTolerance}
	if cfg != nil {
		if cfg.Explain.TopK > 0 {
			x.TopK = cfg.Explain.TopK
		}
		if cfg.Explain.Tolerance > 0 {
			x.Tolerance = cfg.Explain.Tolerance
		}
	}
	return x
}

// -----------------------------------------------------------------------------

// Explain decomposes score into a baseline plus one attribution per feature.
// model is the version the score was computed with; nil means the neutral
// fallback, which has no drivers. events are the news in the scoring window.
func (x *Explainer) Explain(model scoring.Model, fv models.MFeatureVector, score float64, events []models.MNewsEvent) (Explanation, error) {
	var (
		baseline float64
		phi      []float64
		version  = scoring.NeutralVersion
	)

	switch m := model.(type) {
	case *scoring.Forest:
		version = m.Version()
		baseline = scoring.RawToScore(m.ExpectedValue())
		raw := ForestSHAP(m, fv.Values)
		phi = make([]float64, len(raw))
		for i, v := range raw {
			phi[i] = v * models.ScoreSpan
		}
	case *scoring.Heuristic:
		version = m.Version()
		baseline = scoring.RawToScore(m.Base)
		_, contrib, err := m.Decompose(fv)
		if err != nil {
			return Explanation{}, err
		}
		phi = make([]float64, len(contrib))
		for i, v := range contrib {
			phi[i] = v * models.ScoreSpan
		}
	case nil:
		baseline = score
		phi = make([]float64, len(fv.Names))
	default:
		return Explanation{}, fmt.Errorf("no explainer for model %s", model.Version())
	}

	sum := 0.0
	for _, v := range phi {
		sum += v
	}
	if gap := math.Abs(baseline + sum - score); gap > x.Tolerance*score {
		return Explanation{}, fmt.Errorf("attributions for %s do not add up: baseline %.4f + %.4f != %.4f (gap %.6f)",
			fv.Symbol, baseline, sum, score, gap)
	}

	attrs := make([]models.MFeatureAttribution, len(fv.Names))
	for i, name := range fv.Names {
		attrs[i] = models.MFeatureAttribution{
			Symbol:           fv.Symbol,
			Timestamp:        fv.AsOf,
			FeatureName:      name,
			ImportanceValue:  math.Abs(phi[i]),
			AttributionValue: phi[i],
			FeatureValue:     fv.Values[i],
			ModelVersion:     version,
		}
	}
	sort.SliceStable(attrs, func(i, j int) bool {
		if attrs[i].ImportanceValue != attrs[j].ImportanceValue {
			return attrs[i].ImportanceValue > attrs[j].ImportanceValue
		}
		return attrs[i].FeatureName < attrs[j].FeatureName
	})
	for i := range attrs {
		attrs[i].Rank = i + 1
	}

	return Explanation{
		ModelVersion: version,
		Baseline:     baseline,
		Attributions: attrs,
		Summary:      summarize(score, baseline, attrs, events, model == nil),
	}, nil
}

// Top returns the attributions ranked within the top K.
func (x *Explainer) Top(attrs []models.MFeatureAttribution) []models.MFeatureAttribution {
	var out []models.MFeatureAttribution
	for _, a := range attrs {
		if a.Rank <= x.TopK {
			out = append(out, a)
		}
	}
	return out
}

// -----------------------------------------------------------------------------

func displayName(feature string) string {
	return strings.ReplaceAll(feature, "_", " ")
}

func summarize(score, baseline float64, attrs []models.MFeatureAttribution, events []models.MNewsEvent, neutral bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score %.0f against a baseline of %.0f.", score, baseline)

	if neutral {
		b.WriteString(" No model was available, so the score is held at the neutral midpoint.")
	} else {
		var parts []string
		for _, a := range attrs {
			if len(parts) == summaryFeatures || a.ImportanceValue < negligiblePoints {
				break
			}
			dir := "raised"
			if a.AttributionValue < 0 {
				dir = "lowered"
			}
			parts = append(parts, fmt.Sprintf("%s (%.3g) %s it by %.1f points", displayName(a.FeatureName), a.FeatureValue, dir, a.ImportanceValue))
		}
		if len(parts) == 0 {
			b.WriteString(" No feature moved the score away from the baseline.")
		} else {
			b.WriteString(" Main drivers: " + strings.Join(parts, "; ") + ".")
		}
	}

	if ev, ok := mostImpactful(events); ok {
		fmt.Fprintf(&b, " Most impactful recent event: %q (%s, impact %.0f, sentiment %.0f).",
			ev.Headline, strings.ReplaceAll(ev.EventType, "_", " "), ev.Impact, ev.Sentiment)
	}
	return b.String()
}

// mostImpactful picks the highest-impact event, preferring the newest on ties.
func mostImpactful(events []models.MNewsEvent) (models.MNewsEvent, bool) {
	if len(events) == 0 {
		return models.MNewsEvent{}, false
	}
	best := events[0]
	for _, ev := range events[1:] {
		if ev.Impact > best.Impact || (ev.Impact == best.Impact && ev.Timestamp > best.Timestamp) {
			best = ev
		}
	}
	return best, true
}
