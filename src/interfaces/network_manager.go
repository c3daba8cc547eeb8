package interfaces

import "context"

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for rate-limited HTTP requests to
// external sources.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// Get performs a GET request on behalf of source, waiting on the source's
	// rate limiter first. Returns the response body or a typed source error.
	Get(ctx context.Context, source, url string, params map[string]string, headers map[string]string) ([]byte, error)

	// -----------------------------------------------------------------------------

	// SetRateLimit installs a token bucket for source.
	SetRateLimit(source string, requestsPerSecond float64, burst int)
}
