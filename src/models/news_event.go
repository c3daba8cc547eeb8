package models

import (
	"fmt"
	"strings"
)

// Neutral values for events that arrive without a score.
const (
	NeutralSentiment = 50.0
	NeutralImpact    = 30.0
)

// Event types produced by the news and filings connectors.
const (
	EventFinancial       = "financial"
	EventCorporateAction = "corporate_action"
	EventLegal           = "legal"
	EventManagement      = "management"
	EventRegulatory      = "regulatory"
	EventGeneral         = "general"
)

// MNewsEvent is an append-only unstructured event attached to an issuer.
type MNewsEvent struct {
	Symbol    string  `json:"symbol" validate:"required,ticker"`
	Timestamp int64   `json:"timestamp" validate:"gt=0"`
	Headline  string  `json:"headline" validate:"required,max=1024"`
	Body      string  `json:"body"`
	Source    string  `json:"source" validate:"required"`
	Sentiment float64 `json:"sentiment_score" validate:"gte=0,lte=100"`
	Impact    float64 `json:"impact_score" validate:"gte=0,lte=100"`
	EventType string  `json:"event_type" validate:"oneof=financial corporate_action legal management regulatory general"`
}

// Key identifies a re-delivered copy of the same event.
func (n MNewsEvent) Key() string {
	return keyOf(n.Symbol, n.Timestamp) + "|" + strings.ToLower(strings.TrimSpace(n.Headline))
}

// -----------------------------------------------------------------------------

func keyOf(symbol string, ts int64) string {
	return fmt.Sprintf("%s|%d", symbol, ts)
}
