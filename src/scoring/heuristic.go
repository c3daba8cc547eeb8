package scoring

import (
	"fmt"
	"math"

	"credit-observer/src/analysis/core"
	"credit-observer/src/features"
	"credit-observer/src/helpers"
	"credit-observer/src/models"
)

const (
	HeuristicVersion = "heuristic-v1"
	heuristicBase    = 0.6
)

// HeuristicTerm is one linear term: Weight * (clip(x) - Ref).
type HeuristicTerm struct {
	Feature string
	Weight  float64
	Lo, Hi  float64
	Ref     float64
}

func (t HeuristicTerm) clip(v float64) float64 {
	if t.Lo == t.Hi {
		return v
	}
	return core.Clamp(v, t.Lo, t.Hi)
}

// Heuristic is the rule-based cold-start model. At the neutral reference
// point it returns Base.
type Heuristic struct {
	Base  float64
	Terms []HeuristicTerm
}

// Weights and clip ranges; equal Lo/Hi means unclipped.
var heuristicTerms = []HeuristicTerm{
	{Feature: features.DebtToEquity, Weight: -0.08, Lo: 0, Hi: 5},
	{Feature: features.CurrentRatio, Weight: 0.05, Lo: 0, Hi: 4},
	{Feature: features.PERatio, Weight: -0.002, Lo: 0, Hi: 100},
	{Feature: features.ROE, Weight: 0.4, Lo: -1, Hi: 1},
	{Feature: features.RevenueGrowth, Weight: 0.2, Lo: -1, Hi: 1},
	{Feature: features.ProfitMargin, Weight: 0.3, Lo: -1, Hi: 1},
	{Feature: features.GrossMargin, Weight: 0.1, Lo: 0, Hi: 1},
	{Feature: features.LogMarketCap, Weight: 0.02, Lo: 15, Hi: 30},
	{Feature: features.Beta, Weight: -0.03, Lo: 0, Hi: 3},
	{Feature: features.DividendYield, Weight: 0.5, Lo: 0, Hi: 0.2},
	{Feature: features.MomentumShort, Weight: 0.2, Lo: -0.2, Hi: 0.2},
	{Feature: features.PriceChange1D, Weight: 0.2, Lo: -0.2, Hi: 0.2},
	{Feature: features.PriceChange7D, Weight: 0.15, Lo: -0.5, Hi: 0.5},
	{Feature: features.PriceChange30D, Weight: 0.15, Lo: -1, Hi: 1},
	{Feature: features.Volatility30D, Weight: -1.0, Lo: 0, Hi: 0.2},
	{Feature: features.VolumeRatio, Weight: -0.01, Lo: 0, Hi: 10},
	{Feature: features.RSI, Weight: 0.001},
	{Feature: features.MovingAvgRatio, Weight: 0.1, Lo: 0.5, Hi: 1.5},
	{Feature: features.NewsSentiment, Weight: 0.003},
	{Feature: features.NewsImpact, Weight: -0.0005},
	{Feature: features.NegativeEventPressure, Weight: -0.05, Lo: 0, Hi: 5},
	{Feature: features.NewsVolume, Weight: 0},
	{Feature: features.RegulatoryEvents, Weight: -0.005},
	{Feature: features.LegalEvents, Weight: -0.03},
}

// NewHeuristic anchors every term at the neutral default of its feature.
func NewHeuristic(neutral func(name string) float64) *Heuristic {
	h := &Heuristic{Base: heuristicBase, Terms: make([]HeuristicTerm, len(heuristicTerms))}
	for i, t := range heuristicTerms {
		t.Ref = t.clip(neutral(t.Feature))
		h.Terms[i] = t
	}
	return h
}

func (h *Heuristic) Version() string { return HeuristicVersion }

func (h *Heuristic) FeatureNames() []string {
	out := make([]string, len(h.Terms))
	for i, t := range h.Terms {
		out[i] = t.Feature
	}
	return out
}

// Decompose returns raw in [0,1] and each feature's additive share of
// raw - Base, indexed like fv.Names. When raw is clamped the shares are
// scaled so they still sum to raw - Base.
func (h *Heuristic) Decompose(fv models.MFeatureVector) (raw float64, contrib []float64, err error) {
	pos := make(map[string]int, len(fv.Names))
	for i, n := range fv.Names {
		pos[n] = i
	}

	contrib = make([]float64, len(fv.Names))
	sum := 0.0
	for _, t := range h.Terms {
		i, ok := pos[t.Feature]
		if !ok {
			return 0, nil, helpers.NewModelUnavailableError(fmt.Sprintf("heuristic input %s missing", t.Feature), nil)
		}
		v := fv.Values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, nil, helpers.NewModelUnavailableError(fmt.Sprintf("heuristic input %s is not finite", t.Feature), nil)
		}
		c := t.Weight * (t.clip(v) - t.Ref)
		contrib[i] += c
		sum += c
	}

	raw = core.Clamp(h.Base+sum, 0, 1)
	if delta := raw - h.Base; sum != 0 && delta != sum {
		scale := delta / sum
		for i := range contrib {
			contrib[i] *= scale
		}
	}
	return raw, contrib, nil
}
