package mastodon

import (
	"fmt"
	"net/http"
)

// RequestError is returned when a REST request fails. It never affects the
// streaming connections.
type RequestError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%s)", describeStatus(e.StatusCode), e.Endpoint)
	}
	return fmt.Sprintf("Mastodon API request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same request later may succeed.
func (e *RequestError) Temporary() bool {
	switch e.StatusCode {
	case 0, http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusInternalServerError:
		return true
	}
	return false
}

func describeStatus(statusCode int) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "Mastodon API authentication failed - please run 'tootmix auth' again"
	case http.StatusForbidden:
		return "Mastodon API access denied - check the token scopes"
	case http.StatusNotFound:
		return "Mastodon API endpoint not found - the instance may not support it"
	case http.StatusTooManyRequests:
		return "Mastodon API rate limit exceeded - please try again later"
	case http.StatusServiceUnavailable:
		return "Mastodon API temporarily unavailable - please try again in a few minutes"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return "Mastodon API server error - please try again later"
	default:
		return fmt.Sprintf("Mastodon API error (status %d) - please try again", statusCode)
	}
}
