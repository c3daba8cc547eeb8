package core

import (
	"math"
	"testing"

	"credit-observer/src/models"

	"github.com/stretchr/testify/assert"
)

func TestRSI(t *testing.T) {
	_, ok := CalculateRSI([]float64{1, 2, 3}, 14)
	assert.False(t, ok)

	up := make([]float64, 16)
	for i := range up {
		up[i] = float64(100 + i)
	}
	rsi, ok := CalculateRSI(up, 14)
	assert.True(t, ok)
	assert.Equal(t, 100.0, rsi)

	flat := make([]float64, 16)
	for i := range flat {
		flat[i] = 10
	}
	rsi, _ = CalculateRSI(flat, 14)
	assert.Equal(t, 50.0, rsi)

	// equal gains and losses
	rsi, _ = CalculateRSI([]float64{10, 11, 10, 11, 10}, 4)
	assert.InDelta(t, 50.0, rsi, 1e-9)
}

func TestMovingAverageRatio(t *testing.T) {
	r, ok := CalculateMovingAverageRatio([]float64{1, 2, 3, 4}, 4)
	assert.True(t, ok)
	assert.InDelta(t, 4/2.5, r, 1e-12)

	_, ok = CalculateMovingAverageRatio([]float64{1, 2}, 4)
	assert.False(t, ok)
}

func TestDecayWeight(t *testing.T) {
	half := 72 * 3600.0
	assert.InDelta(t, 1.0, DecayWeight(0, half), 1e-12)
	assert.InDelta(t, 0.5, DecayWeight(half, half), 1e-12)
	assert.InDelta(t, 0.25, DecayWeight(2*half, half), 1e-12)
	assert.InDelta(t, 1.0, DecayWeight(-10, half), 1e-12)
}

func TestMeanStdAndFit(t *testing.T) {
	mean, std := CalculateMeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 5.0, mean)
	assert.Equal(t, 2.0, std)

	target := []float64{0.2, 0.4, 0.6}
	assert.Equal(t, 1.0, RSquared(target, target))
	assert.Equal(t, 0.0, MeanSquaredError(target, target))
	assert.InDelta(t, 2.0/3.0, AccuracyWithin([]float64{0.25, 0.4, 0.9}, target, 0.1), 1e-12)
}

func TestSearchSorted(t *testing.T) {
	arr := []int64{10, 20, 20, 30}
	assert.Equal(t, 1, SearchSorted(arr, 20, "left"))
	assert.Equal(t, 3, SearchSorted(arr, 20, "right"))
	assert.Equal(t, 0, SearchSorted(arr, 5, "left"))
	assert.Equal(t, 4, SearchSorted(arr, 35, "right"))
}

func TestTextScoring(t *testing.T) {
	assert.Equal(t, models.NeutralSentiment, ScoreSentiment("Company holds annual meeting"))
	assert.Greater(t, ScoreSentiment("Apple beats estimates with record growth"), 50.0)
	assert.Less(t, ScoreSentiment("Regulator opens fraud investigation"), 50.0)
	assert.Less(t, ScoreSentiment("Results not strong"), 50.0)

	s := ScoreSentiment("Bankruptcy filing")
	imp := ScoreImpact("Bankruptcy filing after lawsuit", s)
	assert.LessOrEqual(t, imp, 100.0)
	assert.Greater(t, imp, 70.0)
	assert.Equal(t, models.NeutralImpact, ScoreImpact("Quiet day", 50))

	assert.Equal(t, models.EventFinancial, ClassifyEvent("Q3 earnings released"))
	assert.Equal(t, models.EventCorporateAction, ClassifyEvent("Merger talks advance"))
	assert.Equal(t, models.EventLegal, ClassifyEvent("Lawsuit filed"))
	assert.Equal(t, models.EventManagement, ClassifyEvent("New CEO appointed"))
	assert.Equal(t, models.EventGeneral, ClassifyEvent("Product launch"))
	assert.False(t, math.IsNaN(ScoreSentiment("")))
}
