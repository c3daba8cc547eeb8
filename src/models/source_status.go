package models

// Source health states.
const (
	SourceActive   = "active"
	SourceDegraded = "degraded"
	SourceFailed   = "failed"
)

// MSourceStatus is the one health row kept per connector.
type MSourceStatus struct {
	SourceName string `json:"source_name"`
	LastUpdate int64  `json:"last_update"`
	Status     string `json:"status"`
	ErrorCount int    `json:"error_count"`
	LastError  string `json:"last_error"`
}
