package helpers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"credit-observer/src/logger"
	"credit-observer/src/models"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type CreditObserverError struct {
	Message string
	Cause   error
}

func (e *CreditObserverError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CreditObserverError) Unwrap() error {
	return e.Cause
}

// Distinct error kinds for errors.As
type ConfigurationError struct{ CreditObserverError }
type DatabaseError struct{ CreditObserverError }
type ModelUnavailableError struct{ CreditObserverError }

// DuplicateKeyError is reported when a write collides with an existing key.
// Callers treat it as an update, never as a failure.
type DuplicateKeyError struct {
	CreditObserverError
	Key string
}

type ValidationError struct {
	CreditObserverError
	Field string
}

type SourceUnavailableError struct {
	CreditObserverError
	Source     string
	StatusCode int
}

type RateLimitedError struct {
	CreditObserverError
	Source     string
	RetryAfter time.Duration
}

// PartialFetchError reports the symbols of a multi-symbol fetch that still
// failed after their retries. The records of the other symbols are valid.
type PartialFetchError struct {
	CreditObserverError
	Failed []string
}

// RetriesExhaustedError marks a transient failure that already used its
// retry budget further down; RetryWithBackoff does not retry it again.
type RetriesExhaustedError struct {
	CreditObserverError
	Attempts int
}

// ErrNotFound is returned by the read surface for unknown issuers or issuers
// without any stored data.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------

func NewSourceUnavailableError(source string, status int, cause error) *SourceUnavailableError {
	return &SourceUnavailableError{
		CreditObserverError: CreditObserverError{Message: fmt.Sprintf("source %s unavailable", source), Cause: cause},
		Source:              source,
		StatusCode:          status,
	}
}

func NewRateLimitedError(source string, retryAfter time.Duration) *RateLimitedError {
	return &RateLimitedError{
		CreditObserverError: CreditObserverError{Message: fmt.Sprintf("source %s rate limited (retry after %v)", source, retryAfter)},
		Source:              source,
		RetryAfter:          retryAfter,
	}
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{
		CreditObserverError: CreditObserverError{Message: fmt.Sprintf("invalid %s: %s", field, msg)},
		Field:               field,
	}
}

func NewModelUnavailableError(msg string, cause error) *ModelUnavailableError {
	return &ModelUnavailableError{CreditObserverError{Message: msg, Cause: cause}}
}

func NewDatabaseError(op string, cause error) *DatabaseError {
	return &DatabaseError{CreditObserverError{Message: fmt.Sprintf("database %s failed", op), Cause: cause}}
}

func NewConfigurationError(msg string, cause error) *ConfigurationError {
	return &ConfigurationError{CreditObserverError{Message: msg, Cause: cause}}
}

func NewPartialFetchError(failed []string, cause error) *PartialFetchError {
	return &PartialFetchError{
		CreditObserverError: CreditObserverError{Message: fmt.Sprintf("%d symbol(s) failed %v", len(failed), failed), Cause: cause},
		Failed:              failed,
	}
}

func NewRetriesExhaustedError(attempts int, cause error) *RetriesExhaustedError {
	return &RetriesExhaustedError{
		CreditObserverError: CreditObserverError{Message: fmt.Sprintf("gave up after %d attempt(s)", attempts), Cause: cause},
		Attempts:            attempts,
	}
}

// IsTransient reports whether err is, or wraps, a rate limit or an
// unavailable source.
func IsTransient(err error) bool {
	var rl *RateLimitedError
	var su *SourceUnavailableError
	return errors.As(err, &rl) || errors.As(err, &su)
}

// IsRetryable reports whether err is a transient source failure worth
// retrying here.
func IsRetryable(err error) bool {
	var ex *RetriesExhaustedError
	var pf *PartialFetchError
	if errors.As(err, &ex) || errors.As(err, &pf) {
		return false
	}
	return IsTransient(err)
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryPolicy bounds RetryWithBackoff. Delays grow by a factor of 2 from
// BaseDelay up to MaxDelay; a provider Retry-After hint raises the delay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *logger.Logger
}

// NewRetryPolicy reads the ingestion retry settings as configured; zero
// MaxAttempts means a single attempt.
func NewRetryPolicy(ing models.MIngestionConfig, log *logger.Logger) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: ing.MaxAttempts,
		BaseDelay:   time.Duration(ing.BaseDelayMillis) * time.Millisecond,
		MaxDelay:    time.Duration(ing.MaxDelayMillis) * time.Millisecond,
		Logger:      log,
	}
}

// RetryWithBackoff runs fn until it succeeds, returns a non-retryable error,
// exhausts MaxAttempts or ctx is done. It returns the number of attempts made.
func RetryWithBackoff(ctx context.Context, operation string, policy RetryPolicy, fn func(ctx context.Context) error) (int, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt, fmt.Errorf("%s abandoned: %w", operation, lastErr)
			}
			return attempt, err
		}

		err := fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == policy.MaxAttempts-1 {
			return attempt + 1, err
		}

		delay := BackoffDelay(policy, attempt)
		var rl *RateLimitedError
		if errors.As(err, &rl) && rl.RetryAfter > delay {
			delay = rl.RetryAfter
		}
		if policy.Logger != nil {
			policy.Logger.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, policy.MaxAttempts, operation, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, fmt.Errorf("%s abandoned: %w", operation, lastErr)
		case <-timer.C:
		}
	}

	return policy.MaxAttempts, lastErr
}

// BackoffDelay is BaseDelay·2^attempt capped at MaxDelay.
func BackoffDelay(policy RetryPolicy, attempt int) time.Duration {
	delay := policy.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if policy.MaxDelay > 0 && delay >= policy.MaxDelay {
			return policy.MaxDelay
		}
	}
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		return policy.MaxDelay
	}
	return delay
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

// ErrorHandler logs contained failures (one record, one cycle, one issuer run)
// and keeps a running count for health reporting.
type ErrorHandler struct {
	Logger     *logger.Logger
	errorCount atomic.Int64
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	if log == nil {
		log = logger.NewLogger(nil, "ErrorHandler")
	}
	return &ErrorHandler{Logger: log}
}

// -----------------------------------------------------------------------------

func (e *ErrorHandler) ErrorCount() int64 {
	return e.errorCount.Load()
}

func (e *ErrorHandler) ResetErrorCount() {
	e.errorCount.Store(0)
}

// -----------------------------------------------------------------------------

// Handle logs err with its kind and returns true when there was one.
func (e *ErrorHandler) Handle(err error, context string) bool {
	if err == nil {
		return false
	}
	e.errorCount.Add(1)

	var (
		ve *ValidationError
		rl *RateLimitedError
		su *SourceUnavailableError
		mu *ModelUnavailableError
		db *DatabaseError
	)
	switch {
	case errors.As(err, &ve):
		e.Logger.Warning("Validation error in %s: %v", context, err)
	case errors.As(err, &rl):
		e.Logger.Warning("Rate limited in %s: %v", context, err)
	case errors.As(err, &su):
		e.Logger.Error("Source unavailable in %s: %v", context, err)
	case errors.As(err, &mu):
		e.Logger.Error("Model unavailable in %s: %v", context, err)
	case errors.As(err, &db):
		e.Logger.Error("Database error in %s: %v", context, err)
	default:
		e.Logger.Error("Error in %s: %v", context, err)
	}
	return true
}
