package models

// Score scale at the boundary.
const (
	MinScore     = 300.0
	MaxScore     = 850.0
	ScoreSpan    = MaxScore - MinScore
	NeutralScore = MinScore + ScoreSpan/2
)

// MCreditScore is immutable once written. Key: (Timestamp, Symbol).
type MCreditScore struct {
	Symbol       string  `json:"symbol"`
	Timestamp    int64   `json:"timestamp"`
	Score        float64 `json:"score"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"model_version"`
}

// MFeatureAttribution is one feature's share of a score.
type MFeatureAttribution struct {
	Symbol           string  `json:"symbol"`
	Timestamp        int64   `json:"timestamp"`
	FeatureName      string  `json:"feature_name"`
	ImportanceValue  float64 `json:"importance_value"`
	AttributionValue float64 `json:"attribution_value"`
	FeatureValue     float64 `json:"feature_value"`
	ModelVersion     string  `json:"model_version"`
	Rank             int     `json:"rank"`
}

// MExplanation is the stored summary that accompanies an attribution set.
type MExplanation struct {
	Symbol       string  `json:"symbol"`
	Timestamp    int64   `json:"timestamp"`
	ModelVersion string  `json:"model_version"`
	Baseline     float64 `json:"baseline"`
	Summary      string  `json:"summary"`
}

// MScoreRecord is everything the pipeline commits for one scoring event.
type MScoreRecord struct {
	Score        MCreditScore          `json:"score"`
	Attributions []MFeatureAttribution `json:"attributions"`
	Explanation  MExplanation          `json:"explanation"`
}

// MScoreExplanation is the read-side view returned by the query service.
type MScoreExplanation struct {
	Symbol       string                `json:"symbol"`
	Timestamp    int64                 `json:"timestamp"`
	Score        float64               `json:"score"`
	Confidence   float64               `json:"confidence"`
	ModelVersion string                `json:"model_version"`
	Baseline     float64               `json:"baseline"`
	Attributions []MFeatureAttribution `json:"attributions"`
	Summary      string                `json:"summary"`
	RecentEvents []MNewsEvent          `json:"recent_events"`
}

// MModelPerformance records holdout metrics for a trained model version.
type MModelPerformance struct {
	ModelVersion      string  `json:"model_version"`
	Timestamp         int64   `json:"timestamp"`
	MSE               float64 `json:"mse"`
	R2                float64 `json:"r2"`
	Accuracy          float64 `json:"accuracy"`
	TrainingSamples   int     `json:"training_samples"`
	ValidationSamples int     `json:"validation_samples"`
}
