package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

var (
	// ErrUnknownCatalog is returned for a catalog name with no profile.
	ErrUnknownCatalog = errors.New("unknown catalog")

	// ErrDecode is returned when a catalog response cannot be decoded.
	ErrDecode = errors.New("invalid catalog response")

	// ErrInvalidQuery is returned when a query builds an invalid search request.
	ErrInvalidQuery = errors.New("invalid catalog query")

	// ErrPaging is returned when next links repeat a request already sent or
	// exceed the page limit.
	ErrPaging = errors.New("catalog paging did not terminate")
)

// StatusError is returned when the catalog answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog returned status %d: %s", e.StatusCode, e.Body)
}

// IsTransient reports whether a catalog error may go away on its own:
// transport failures, timeouts, 408, 429 and 5xx responses. Decode errors,
// other 4xx responses and cancellation are permanent.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrDecode) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusRequestTimeout ||
			se.StatusCode == http.StatusTooManyRequests ||
			se.StatusCode >= 500
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
