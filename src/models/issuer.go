package models

// MIssuer is a tracked company. Symbol is the stable identity.
type MIssuer struct {
	Symbol    string  `json:"symbol" validate:"required,ticker"`
	Name      string  `json:"name"`
	Sector    string  `json:"sector"`
	Industry  string  `json:"industry"`
	MarketCap float64 `json:"market_cap" validate:"gte=0"`
	CIK       int     `json:"cik,omitempty"`
	UpdatedAt int64   `json:"updated_at"`
}
