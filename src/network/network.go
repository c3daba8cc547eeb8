package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"credit-observer/src/helpers"
	"credit-observer/src/logger"
	"credit-observer/src/metrics"
	"credit-observer/src/models"

	"golang.org/x/time/rate"
)

const maxBodyBytes = 16 << 20

type NetworkManager struct {
	Config *models.MConfig
	Client *http.Client
	Logger *logger.Logger

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// -----------------------------------------------------------------------------

func NewNetworkManager(cfg *models.MConfig, log *logger.Logger) *NetworkManager {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Network.RequestTimeout > 0 {
		timeout = time.Duration(cfg.Network.RequestTimeout) * time.Second
	}
	nm := &NetworkManager{
		Config:   cfg,
		Logger:   log,
		limiters: make(map[string]*rate.Limiter),
		Client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	return nm
}

// -----------------------------------------------------------------------------

// SetRateLimit installs a token bucket for source. A non-positive rate
// removes the limit.
func (nm *NetworkManager) SetRateLimit(source string, requestsPerSecond float64, burst int) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	if requestsPerSecond <= 0 {
		delete(nm.limiters, source)
		return
	}
	if burst <= 0 {
		burst = 1
	}
	nm.limiters[source] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

func (nm *NetworkManager) limiter(source string) *rate.Limiter {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.limiters[source]
}

// -----------------------------------------------------------------------------

// Get performs a single rate-limited GET. It does not retry: transient
// failures come back as RateLimitedError or SourceUnavailableError so the
// caller's retry policy decides.
func (nm *NetworkManager) Get(ctx context.Context, source, urlStr string, params map[string]string, headers map[string]string) ([]byte, error) {
	reqURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", urlStr, err)
	}
	q := reqURL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	reqURL.RawQuery = q.Encode()

	if lim := nm.limiter(source); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, helpers.NewSourceUnavailableError(source, 0, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}
	if nm.Config != nil && nm.Config.Network.UserAgent != "" {
		req.Header.Set("User-Agent", nm.Config.Network.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := nm.Client.Do(req)
	if err != nil {
		metrics.SourceRequests.WithLabelValues(source, "error").Inc()
		return nil, helpers.NewSourceUnavailableError(source, 0, err)
	}
	defer resp.Body.Close()
	metrics.SourceRequests.WithLabelValues(source, statusClass(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		if nm.Logger != nil {
			nm.Logger.Info("Request to %s rate limited, retry after %v", source, retryAfter)
		}
		return nil, helpers.NewRateLimitedError(source, retryAfter)
	case resp.StatusCode >= 500:
		return nil, helpers.NewSourceUnavailableError(source, resp.StatusCode, fmt.Errorf("bad status: %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("source %s: bad status: %d", source, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, helpers.NewSourceUnavailableError(source, resp.StatusCode, err)
	}
	return body, nil
}

// -----------------------------------------------------------------------------

// ParseRetryAfter accepts either delta-seconds or an HTTP date.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
