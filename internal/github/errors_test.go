package github

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ghErrorResponse(status int, header http.Header) *github.ErrorResponse {
	return &github.ErrorResponse{
		Response: &http.Response{StatusCode: status, Header: header},
		Message:  http.StatusText(status),
	}
}

func TestWrapError(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, WrapError(nil, "Op", "https://api.github.com"))
	})

	t.Run("maps 404 to ErrNotFound", func(t *testing.T) {
		err := WrapError(ghErrorResponse(404, nil), "GetRepository", "https://api.github.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("maps 401 to ErrUnauthorized", func(t *testing.T) {
		err := WrapError(ghErrorResponse(401, nil), "Op", "")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("403 with exhausted rate header is rate limit", func(t *testing.T) {
		header := http.Header{}
		header.Set("X-RateLimit-Remaining", "0")
		err := WrapError(ghErrorResponse(403, header), "Op", "")
		assert.ErrorIs(t, err, ErrRateLimitExceeded)
	})

	t.Run("403 without header is forbidden", func(t *testing.T) {
		err := WrapError(ghErrorResponse(403, nil), "Op", "")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("extracts status from html error pages", func(t *testing.T) {
		err := WrapError(fmt.Errorf("unexpected response: 502 Bad Gateway"), "Op", "")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.ErrorIs(t, err, ErrServerError)
	})
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(WrapError(ghErrorResponse(503, nil), "Op", "")))
	assert.True(t, IsRetryableError(WrapError(ghErrorResponse(429, nil), "Op", "")))
	assert.False(t, IsRetryableError(WrapError(ghErrorResponse(404, nil), "Op", "")))
	assert.False(t, IsRetryableError(WrapError(ghErrorResponse(401, nil), "Op", "")))
	assert.False(t, IsRetryableError(errors.New("plain error")))
}

func TestParseRateLimitResetTime(t *testing.T) {
	reset := time.Now().Add(2 * time.Minute).Truncate(time.Second)
	rle := &github.RateLimitError{
		Rate: github.Rate{Reset: github.Timestamp{Time: reset}},
	}
	got, ok := ParseRateLimitResetTime(rle)
	require.True(t, ok)
	assert.Equal(t, reset, got)

	retryAfter := 30 * time.Second
	abuse := &github.AbuseRateLimitError{RetryAfter: &retryAfter}
	_, ok = ParseRateLimitResetTime(abuse)
	assert.True(t, ok)

	_, ok = ParseRateLimitResetTime(errors.New("nope"))
	assert.False(t, ok)
}

func TestSecondaryRateLimitDetection(t *testing.T) {
	assert.True(t, IsSecondaryRateLimitError(&github.AbuseRateLimitError{}))
	assert.False(t, IsSecondaryRateLimitError(errors.New("other")))
	assert.True(t, IsRateLimitBlockedError(&github.RateLimitError{}))
}
