package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ohub/outage-aggregator/internal/models"
)

var (
	// ErrFetchFailure reports a network or HTTP error from the
	// upstream utility. The provider's cycle is skipped; nothing is
	// appended.
	ErrFetchFailure = errors.New("fetch failure")

	// ErrSchemaMismatch reports a raw payload that does not match the
	// adapter's declared shape. Adapters fail the whole cycle rather
	// than partially parsing.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// Result is the outcome of normalizing one raw payload.
type Result struct {
	Records []models.CanonicalOutageRecord
	Skipped int // records dropped because their geometry could not be decoded
}

// Adapter translates one utility's native payload into canonical
// records. Fetch is the network boundary; Normalize is pure over the
// raw bytes. Implementations are stateless and safe for concurrent
// cycles across providers.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context) ([]byte, error)
	Normalize(raw []byte, fetchedAt time.Time) (Result, error)
}

// fetchStatusError carries the HTTP status of a rejected fetch so
// callers can distinguish absent resources from real failures. It
// unwraps to ErrFetchFailure.
type fetchStatusError struct {
	Code   int
	Status string
}

func (e *fetchStatusError) Error() string {
	return fmt.Sprintf("fetch failure: unexpected status code: %d - status: %s", e.Code, e.Status)
}

func (e *fetchStatusError) Unwrap() error { return ErrFetchFailure }

const fetchTimeout = 15 * time.Second

// Browser-ish headers; several utility endpoints reject default
// Go user agents.
var defaultHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Accept":     "application/json, text/javascript, */*; q=0.01",
}

func fetchURL(ctx context.Context, method, url string, body io.Reader, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrFetchFailure, err)
	}
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: fetchTimeout,
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: doing request: %v", ErrFetchFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &fetchStatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading resp.Body: %v", ErrFetchFailure, err)
	}
	return data, nil
}
