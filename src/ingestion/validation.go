package ingestion

import (
	"math"
	"strings"

	"credit-observer/src/models"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator with the record tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("ticker", isValidTicker)
	v.RegisterValidation("finite", isFinite)
	return v
}

// isValidTicker accepts exchange-suffixed tickers such as BRK-B or 7203.T.
func isValidTicker(fl validator.FieldLevel) bool {
	ticker := fl.Field().String()
	if len(ticker) < 1 || len(ticker) > 12 {
		return false
	}
	for _, ch := range ticker {
		if !((ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '.' || ch == '-') {
			return false
		}
	}
	return true
}

func isFinite(fl validator.FieldLevel) bool {
	f := fl.Field().Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// -----------------------------------------------------------------------------

// normalizer validates and deduplicates one fetched batch.
type normalizer struct {
	validate *validator.Validate
	onReject func(kind string, err error)
}

// filterValid drops records failing schema validation.
func filterValid[T any](n *normalizer, kind string, items []T) ([]T, int) {
	out := items[:0:0]
	rejected := 0
	for _, it := range items {
		if err := n.validate.Struct(it); err != nil {
			rejected++
			if n.onReject != nil {
				n.onReject(kind, err)
			}
			continue
		}
		out = append(out, it)
	}
	return out, rejected
}

// dedupe keeps one record per key. A later record replaces an earlier one in
// place; each replaced record counts as rejected.
func dedupe[T any](items []T, key func(T) string) ([]T, int) {
	pos := make(map[string]int, len(items))
	out := make([]T, 0, len(items))
	rejected := 0
	for _, it := range items {
		k := key(it)
		if i, ok := pos[k]; ok {
			out[i] = it
			rejected++
			continue
		}
		pos[k] = len(out)
		out = append(out, it)
	}
	return out, rejected
}

// Normalize returns the batch with invalid and superseded records removed,
// and the number removed.
func (n *normalizer) Normalize(b models.MRecordBatch) (models.MRecordBatch, int) {
	out := models.MRecordBatch{Source: b.Source}
	total := 0
	count := func(r int) { total += r }

	issuers := make([]models.MIssuer, len(b.Issuers))
	for i, is := range b.Issuers {
		is.Symbol = strings.ToUpper(strings.TrimSpace(is.Symbol))
		issuers[i] = is
	}
	var r int
	out.Issuers, r = filterValid(n, "issuer", issuers)
	count(r)
	out.Issuers, r = dedupe(out.Issuers, func(is models.MIssuer) string { return is.Symbol })
	count(r)

	out.Market, r = filterValid(n, "market", b.Market)
	count(r)
	out.Market, r = dedupe(out.Market, models.MMarketObservation.Key)
	count(r)

	out.Metrics, r = filterValid(n, "metric", b.Metrics)
	count(r)
	out.Metrics, r = dedupe(out.Metrics, models.MFinancialMetric.Key)
	count(r)

	out.News, r = filterValid(n, "news", b.News)
	count(r)
	out.News, r = dedupe(out.News, models.MNewsEvent.Key)
	count(r)

	return out, total
}
