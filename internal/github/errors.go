package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
)

var (
	// ErrRateLimitExceeded is returned when the GitHub API rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("github rate limit exceeded")

	// ErrUnauthorized is returned when authentication fails.
	ErrUnauthorized = errors.New("github authentication failed")

	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("github resource not found")

	// ErrForbidden is returned when access is forbidden.
	ErrForbidden = errors.New("github access forbidden")

	// ErrServerError is returned when GitHub returns a server error.
	ErrServerError = errors.New("github server error")

	// ErrBadRequest is returned when the request is malformed.
	ErrBadRequest = errors.New("github bad request")
)

// APIError wraps GitHub API errors with request context.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
	Method     string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("github api error: %s (status: %d, method: %s, url: %s): %v",
			e.Message, e.StatusCode, e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("github api error: %s (status: %d, method: %s, url: %s)",
		e.Message, e.StatusCode, e.Method, e.URL)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// WrapError converts a GitHub API error into a structured APIError.
func WrapError(err error, method, url string) error {
	if err == nil {
		return nil
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{
			StatusCode: ghErr.Response.StatusCode,
			Message:    ghErr.Message,
			URL:        url,
			Method:     method,
			Err:        err,
		}
		if mapped := mapErrorType(ghErr.Response.StatusCode, ghErr.Response.Header); mapped != nil {
			apiErr.Err = mapped
		}
		return apiErr
	}

	// Non-JSON responses (nginx error pages and the like) only leave a status
	// line in the message.
	statusCode := extractStatusCodeFromError(err)

	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    err.Error(),
		URL:        url,
		Method:     method,
		Err:        err,
	}
	if statusCode > 0 {
		if mapped := mapErrorType(statusCode, nil); mapped != nil {
			apiErr.Err = mapped
		}
	}
	return apiErr
}

func mapErrorType(statusCode int, header http.Header) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		if header != nil && header.Get("X-RateLimit-Remaining") == "0" {
			return ErrRateLimitExceeded
		}
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusTooManyRequests:
		return ErrRateLimitExceeded
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return ErrServerError
	default:
		return nil
	}
}

func extractStatusCodeFromError(err error) int {
	if err == nil {
		return 0
	}

	errMsg := err.Error()
	statusPatterns := map[string]int{
		"500 Internal Server Error": http.StatusInternalServerError,
		"502 Bad Gateway":           http.StatusBadGateway,
		"503 Service Unavailable":   http.StatusServiceUnavailable,
		"504 Gateway Timeout":       http.StatusGatewayTimeout,
		"429 Too Many Requests":     http.StatusTooManyRequests,
		"403 Forbidden":             http.StatusForbidden,
		"401 Unauthorized":          http.StatusUnauthorized,
		"404 Not Found":             http.StatusNotFound,
		"400 Bad Request":           http.StatusBadRequest,
	}
	for pattern, code := range statusPatterns {
		if strings.Contains(errMsg, pattern) {
			return code
		}
	}
	return 0
}

// IsRateLimitError checks if an error is a primary rate limit error.
func IsRateLimitError(err error) bool {
	var rle *github.RateLimitError
	return errors.Is(err, ErrRateLimitExceeded) || errors.As(err, &rle)
}

// IsSecondaryRateLimitError checks for GitHub's abuse/secondary rate limits.
func IsSecondaryRateLimitError(err error) bool {
	var abuse *github.AbuseRateLimitError
	return errors.As(err, &abuse)
}

// IsRateLimitBlockedError checks for go-github's client-side rate limit block,
// which is raised before the request is sent.
func IsRateLimitBlockedError(err error) bool {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "rate limit has already been reached")
}

// ParseRateLimitResetTime extracts the reset time from a rate limit error when
// the error carries one.
func ParseRateLimitResetTime(err error) (time.Time, bool) {
	var rle *github.RateLimitError
	if errors.As(err, &rle) && !rle.Rate.Reset.IsZero() {
		return rle.Rate.Reset.Time, true
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) && abuse.RetryAfter != nil {
		return time.Now().Add(*abuse.RetryAfter), true
	}
	return time.Time{}, false
}

// IsRetryableError checks if an error is worth retrying.
func IsRetryableError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}
	return IsRateLimitError(err) || IsSecondaryRateLimitError(err)
}

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// IsNotFoundError checks if an error is a not found error. Raw go-github
// errors that have not passed through WrapError are recognized too.
func IsNotFoundError(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}
