package core

import (
	"math"
	"sort"
)

// -----------------------------------------------------------------------------

// CalculateMeanStd computes mean and population standard deviation.
func CalculateMeanStd(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, v := range data {
		sum += v
	}
	mean := sum / float64(len(data))

	if len(data) == 1 {
		return mean, 0
	}

	varianceSum := 0.0
	for _, v := range data {
		varianceSum += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(varianceSum / float64(len(data)))
}

// -----------------------------------------------------------------------------

// DecayWeight is exp(-ln2 * age / halfLife). Future-dated ages count as 0.
func DecayWeight(ageSeconds, halfLifeSeconds float64) float64 {
	if ageSeconds < 0 {
		ageSeconds = 0
	}
	if halfLifeSeconds <= 0 {
		return 0
	}
	return math.Exp(-math.Ln2 * ageSeconds / halfLifeSeconds)
}

// -----------------------------------------------------------------------------

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// -----------------------------------------------------------------------------

// MeanSquaredError between predictions and targets of equal length.
func MeanSquaredError(pred, target []float64) float64 {
	if len(pred) == 0 || len(pred) != len(target) {
		return 0
	}
	s := 0.0
	for i := range pred {
		d := pred[i] - target[i]
		s += d * d
	}
	return s / float64(len(pred))
}

// RSquared is the coefficient of determination. A constant target yields 0.
func RSquared(pred, target []float64) float64 {
	if len(pred) == 0 || len(pred) != len(target) {
		return 0
	}
	mean, std := CalculateMeanStd(target)
	if std == 0 {
		return 0
	}
	ssRes, ssTot := 0.0, 0.0
	for i := range pred {
		ssRes += (target[i] - pred[i]) * (target[i] - pred[i])
		ssTot += (target[i] - mean) * (target[i] - mean)
	}
	return 1 - ssRes/ssTot
}

// AccuracyWithin is the share of predictions within tol of their target.
func AccuracyWithin(pred, target []float64, tol float64) float64 {
	if len(pred) == 0 || len(pred) != len(target) {
		return 0
	}
	hit := 0
	for i := range pred {
		if math.Abs(pred[i]-target[i]) <= tol {
			hit++
		}
	}
	return float64(hit) / float64(len(pred))
}

// -----------------------------------------------------------------------------

// SearchSorted finds the insertion index of value in ascending arr. side
// "left" returns the first index with arr[i] >= value, "right" the first
// with arr[i] > value.
func SearchSorted(arr []int64, value int64, side string) int {
	if side == "left" {
		return sort.Search(len(arr), func(i int) bool {
			return arr[i] >= value
		})
	}
	return sort.Search(len(arr), func(i int) bool {
		return arr[i] > value
	})
}
