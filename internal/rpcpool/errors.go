// internal/rpcpool/errors.go
package rpcpool

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoEndpointAvailable occurs when every endpoint is rate limited,
	// cooling down or unhealthy.
	ErrNoEndpointAvailable = errors.New("no RPC endpoint available")

	// ErrRateLimit occurs when an endpoint rejects a request with 429.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrTimeout occurs when a request exceeds its deadline.
	ErrTimeout = errors.New("request timeout")

	// ErrConnectionFailed occurs when an endpoint cannot be reached.
	ErrConnectionFailed = errors.New("connection failed")
)

// Error carries the endpoint and method context of a failed RPC call.
type Error struct {
	Err     error
	NodeURL string
	Method  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.NodeURL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps an RPC failure with endpoint context.
func NewError(err error, nodeURL, method string) error {
	return &Error{Err: err, NodeURL: nodeURL, Method: method}
}

// IsRateLimitError reports whether the error is an HTTP 429 / rate limit
// rejection from the endpoint.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimit) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "rate limit")
}

var retryAfterRe = regexp.MustCompile(`retry[- ]after[:\s]+(\d+)`)

// RetryAfterHint extracts a server-provided retry delay from a rate limit
// error, if present.
func RetryAfterHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	m := retryAfterRe.FindStringSubmatch(strings.ToLower(err.Error()))
	if len(m) != 2 {
		return 0, false
	}
	secs, convErr := strconv.Atoi(m[1])
	if convErr != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// IsRetryableError reports whether the operation may be retried, possibly
// on another endpoint.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		switch {
		case errors.Is(rpcErr.Err, ErrTimeout),
			errors.Is(rpcErr.Err, ErrRateLimit),
			errors.Is(rpcErr.Err, ErrConnectionFailed):
			return true
		}
	}

	if IsRateLimitError(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// IsCriticalError reports whether the error indicates the request itself is
// invalid and retrying cannot help.
func IsCriticalError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "invalid request") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "forbidden")
}
