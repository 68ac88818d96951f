package backend

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MingChen0919/elastic-search/internal/domain"
)

// HTTPStatusError represents a non-2xx response from an engine HTTP call.
// It preserves the status code and body so engine errors such as
// resource_already_exists_exception reach the caller unchanged.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.URL == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	if e.Body == "" {
		return fmt.Sprintf("http %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("http %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Unwrap maps gateway and availability statuses to ErrEngineUnavailable and
// 404 to ErrNotFound.
func (e *HTTPStatusError) Unwrap() error {
	if e == nil {
		return nil
	}
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return domain.ErrEngineUnavailable
	case http.StatusNotFound:
		return domain.ErrNotFound
	}
	return nil
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPStatusError
	if asHTTPStatusError(err, &he) {
		return he.StatusCode
	}
	return 0
}

func asHTTPStatusError(err error, target **HTTPStatusError) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPStatusError
	if !errors.As(err, &httpErr) {
		return false
	}
	*target = httpErr
	return true
}
