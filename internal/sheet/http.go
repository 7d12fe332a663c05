package sheet

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPSource fetches the sheet from a published CSV export URL.
//
// The request is time-bounded: a snapshot that cannot be retrieved within
// the timeout fails fast as a network error rather than stalling the sync.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a source for the given CSV export URL.
// A timeout of 0 defaults to 60 seconds.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// FetchRows implements Source.
func (s *HTTPSource) FetchRows(ctx context.Context) ([]Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return parseCSV(resp.Body)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &FetchError{Kind: FetchAuth, Err: fmt.Errorf("bad HTTP response: %s", resp.Status)}
	case http.StatusTooManyRequests:
		return nil, &FetchError{Kind: FetchRateLimit, Err: fmt.Errorf("bad HTTP response: %s", resp.Status)}
	default:
		return nil, &FetchError{Kind: FetchNetwork, Err: fmt.Errorf("bad HTTP response: %s", resp.Status)}
	}
}
