package models

// MRecordBatch is what a connector returns for one fetch: the fixed record
// variants, tagged with the source that produced them.
type MRecordBatch struct {
	Source  string               `json:"source"`
	Issuers []MIssuer            `json:"issuers,omitempty"`
	Market  []MMarketObservation `json:"market,omitempty"`
	Metrics []MFinancialMetric   `json:"metrics,omitempty"`
	News    []MNewsEvent         `json:"news,omitempty"`
}

// Len is the total number of records in the batch.
func (b MRecordBatch) Len() int {
	return len(b.Issuers) + len(b.Market) + len(b.Metrics) + len(b.News)
}

// MCycleResult reports the outcome of one ingestion cycle.
type MCycleResult struct {
	Source    string `json:"source"`
	Committed int    `json:"committed"`
	Rejected  int    `json:"rejected"`
	Attempts  int    `json:"attempts"`
	Skipped   bool   `json:"skipped"`
}
