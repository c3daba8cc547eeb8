package models

// MMarketObservation is one OHLCV bar. Key: (Timestamp, Symbol).
type MMarketObservation struct {
	Symbol    string  `json:"symbol" validate:"required,ticker"`
	Timestamp int64   `json:"timestamp" validate:"gt=0"`
	Open      float64 `json:"open" validate:"gt=0"`
	High      float64 `json:"high" validate:"gt=0,gtefield=Low"`
	Low       float64 `json:"low" validate:"gt=0"`
	Close     float64 `json:"close" validate:"gt=0"`
	Volume    float64 `json:"volume" validate:"gte=0"`
	Source    string  `json:"source"`
}

// Key returns the uniqueness key used for in-batch deduplication.
func (m MMarketObservation) Key() string {
	return keyOf(m.Symbol, m.Timestamp)
}

// -----------------------------------------------------------------------------

// MFinancialMetric is one fundamental datapoint. Key: (Timestamp, Symbol, MetricName).
type MFinancialMetric struct {
	Symbol     string  `json:"symbol" validate:"required,ticker"`
	Timestamp  int64   `json:"timestamp" validate:"gt=0"`
	MetricName string  `json:"metric_name" validate:"required,max=64"`
	Value      float64 `json:"value" validate:"finite"`
	Source     string  `json:"source" validate:"required"`
}

func (m MFinancialMetric) Key() string {
	return keyOf(m.Symbol, m.Timestamp) + "|" + m.MetricName
}
