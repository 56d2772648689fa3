package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/angelmondragon/stockledger/pkg/config"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

const (
	PolicyDatabase        = "database"
	PolicyCache           = "cache"
	PolicyExternalService = "external_service"
)

var networkMessages = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"i/o timeout",
	"timeout",
	"timed out",
	"no such host",
	"network is unreachable",
}

var serializationMessages = []string{
	"could not serialize access",
	"deadlock detected",
	"database is locked",
	"database table is locked",
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// ForDatabase retries connection loss, timeouts and serialization conflicts.
func ForDatabase() Policy {
	return Policy{
		Name:           PolicyDatabase,
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		MaxDelay:       10 * time.Second,
		BackoffFactor:  2,
		RetryCondition: IsDatabaseRetryable,
	}
}

// ForCache fails fast; the read path can always fall back to the database.
func ForCache() Policy {
	return Policy{
		Name:           PolicyCache,
		MaxAttempts:    2,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		BackoffFactor:  2,
		RetryCondition: IsCacheRetryable,
	}
}

// ForExternalService retries 5xx, 408 and 429 responses plus network errors.
func ForExternalService() Policy {
	return Policy{
		Name:           PolicyExternalService,
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       10 * time.Second,
		BackoffFactor:  1.5,
		RetryCondition: IsExternalServiceRetryable,
	}
}

// IsDatabaseRetryable reports transient storage faults.
func IsDatabaseRetryable(err error) bool {
	if retryable, decided := typedDecision(err, pkgerrors.CodeTransient); decided {
		return retryable
	}
	if IsNetworkError(err) {
		return true
	}
	return containsAny(err, serializationMessages)
}

// IsCacheRetryable reports network-class cache failures.
func IsCacheRetryable(err error) bool {
	if retryable, decided := typedDecision(err, pkgerrors.CodeTransient); decided {
		return retryable
	}
	return IsNetworkError(err)
}

// IsExternalServiceRetryable reports retryable outbound call failures.
func IsExternalServiceRetryable(err error) bool {
	if retryable, decided := typedDecision(err, pkgerrors.CodeTransient, pkgerrors.CodeDependency); decided {
		return retryable
	}
	var coder StatusCoder
	if errors.As(err, &coder) {
		status := coder.StatusCode()
		return status >= http.StatusInternalServerError ||
			status == http.StatusRequestTimeout ||
			status == http.StatusTooManyRequests
	}
	return IsNetworkError(err)
}

// IsNetworkError reports connection resets/refusals, timeouts and truncated reads.
func IsNetworkError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return containsAny(err, networkMessages)
}

// typedDecision settles retryability for typed errors: the listed codes are
// retryable, every other typed code is not.
func typedDecision(err error, retryable ...pkgerrors.Code) (bool, bool) {
	if err == nil {
		return false, true
	}
	if errors.Is(err, context.Canceled) {
		return false, true
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return false, false
	}
	for _, code := range retryable {
		if typed.Code() == code {
			return true, true
		}
	}
	return false, true
}

func containsAny(err error, needles []string) bool {
	msg := strings.ToLower(err.Error())
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// WithOverrides applies non-zero timing overrides from configuration.
func (p Policy) WithOverrides(cfg config.RetryConfig) Policy {
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		p.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		p.MaxDelay = cfg.MaxDelay
	}
	if cfg.BackoffFactor > 0 {
		p.BackoffFactor = cfg.BackoffFactor
	}
	return p
}
