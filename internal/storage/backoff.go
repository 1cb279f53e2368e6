// backoff.go: the retry delay policy as pure functions of (attempt, error)
package storage

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// retryAfterPattern matches "retry after N" where N is a number, e.g.
// "Too Many Requests: retry after 16".
var retryAfterPattern = regexp.MustCompile(`(?i)retry after\s+(\d+(?:\.\d+)?)`)

// parseRetryAfter extracts the server-directed delay in seconds from an error
// message. The second return value is false when the message carries none.
func parseRetryAfter(errMsg string) (float64, bool) {
	if errMsg == "" {
		return 0, false
	}
	match := retryAfterPattern.FindStringSubmatch(errMsg)
	if match == nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return seconds, true
}

// isRateLimited reports whether an error message signals remote throttling.
func isRateLimited(errMsg string) bool {
	return strings.Contains(errMsg, "Too Many Requests") ||
		strings.Contains(strings.ToLower(errMsg), "retry after")
}

// isWebpageMediaEmpty reports the unembeddable-media condition.
func isWebpageMediaEmpty(errMsg string) bool {
	return strings.Contains(errMsg, webpageMediaEmptyMarker)
}

// retryDelay computes the sleep before the next attempt. Rate-limit errors
// that name a delay use the server-directed value; everything else escalates
// linearly with the attempt number (zero-based).
func retryDelay(attempt int, errMsg string) time.Duration {
	if isRateLimited(errMsg) {
		if seconds, ok := parseRetryAfter(errMsg); ok {
			return time.Duration(seconds * float64(time.Second))
		}
	}
	return RetryDelay * time.Duration(attempt+1)
}
