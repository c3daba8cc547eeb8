package models

// Alert severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// MAlert is derived from two consecutive scores. Key: (Symbol, Timestamp).
type MAlert struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	Timestamp     int64   `json:"timestamp"`
	PreviousScore float64 `json:"previous_score"`
	NewScore      float64 `json:"new_score"`
	ScoreChange   float64 `json:"score_change"`
	Confidence    float64 `json:"confidence"`
	Severity      string  `json:"severity"`
	BandCrossed   bool    `json:"band_crossed"`
	CreatedAt     int64   `json:"created_at"`
}

// MSubscribeCommand is sent by websocket clients to narrow the alert stream.
// An empty symbol list subscribes to every issuer.
type MSubscribeCommand struct {
	Command string   `json:"command"`
	Symbols []string `json:"symbols"`
}
