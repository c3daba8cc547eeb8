package models

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// MFeatureVector is the point-in-time input to scoring. Names and Values are
// index-aligned and ordered; Imputed marks values filled with a neutral default.
type MFeatureVector struct {
	Symbol  string    `json:"symbol"`
	AsOf    int64     `json:"as_of"`
	Names   []string  `json:"names"`
	Values  []float64 `json:"values"`
	Imputed []bool    `json:"imputed"`
}

// Value returns the named feature and whether it exists.
func (f MFeatureVector) Value(name string) (float64, bool) {
	for i, n := range f.Names {
		if n == name {
			return f.Values[i], true
		}
	}
	return 0, false
}

// ImputedFraction is the share of features that were filled with defaults.
func (f MFeatureVector) ImputedFraction() float64 {
	if len(f.Imputed) == 0 {
		return 0
	}
	n := 0
	for _, imp := range f.Imputed {
		if imp {
			n++
		}
	}
	return float64(n) / float64(len(f.Imputed))
}

// Fingerprint hashes the composition of the vector so an audit can confirm
// a recomputed vector matches the one that was scored.
func (f MFeatureVector) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(f.Symbol))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(f.AsOf))
	h.Write(buf[:])
	for i, n := range f.Names {
		h.Write([]byte(n))
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f.Values[i]))
		h.Write(buf[:])
		if f.Imputed[i] {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// -----------------------------------------------------------------------------

// MTrainingSample is one (features, label) pair. Label is on the raw [0,1] scale.
type MTrainingSample struct {
	Symbol   string    `json:"symbol"`
	AsOf     int64     `json:"as_of"`
	Features []float64 `json:"features"`
	Label    float64   `json:"label"`
}

// MTrainingSet holds samples sharing one feature layout.
type MTrainingSet struct {
	FeatureNames []string          `json:"feature_names"`
	Samples      []MTrainingSample `json:"samples"`
}
