// Package sourcefeed is a client for the external paginated HTTP ticket
// source. It honours 429 + Retry-After and retries 5xx/network errors with
// bounded exponential backoff.
package sourcefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// FetchTimeout is the per-request timeout for a single page fetch.
const FetchTimeout = 15 * time.Second

// maxFetchAttempts bounds the attempts (first try included) for one page
// on 5xx/network errors.
const maxFetchAttempts = 3

// RawTicket is the shape of one ticket as delivered by the upstream source.
type RawTicket struct {
	ExternalID string `json:"external_id"`
	CustomerID string `json:"customer_id"`
	Source     string `json:"source"`
	Subject    string `json:"subject"`
	Message    string `json:"message"`
	Status     string `json:"status"`
	UpdatedAt  string `json:"updated_at"`
}

// Page is one page of the paginated ticket feed.
type Page struct {
	Tickets    []RawTicket `json:"tickets"`
	PageNum    int         `json:"page"`
	TotalPages int         `json:"total_pages"`
}

// RetryableError marks a fetch failure as transient (timeout, connection
// error, or 5xx) so fetchTransient retries it, while any other failure
// ends the fetch at once.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Client fetches pages of tickets from the external source.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a source feed client with the spec's 15s fetch timeout.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: FetchTimeout},
	}
}

// FetchPage fetches page number p. A 429 is honoured indefinitely (sleep
// Retry-After, retry the same page) and never counts against the
// transient-failure budget; 5xx/network errors get up to 3 attempts in all,
// with exponential backoff between them, before giving up.
func (c *Client) FetchPage(ctx context.Context, tenantID string, p int) (Page, error) {
	for {
		page, retryAfter, err := c.fetchTransient(ctx, tenantID, p)
		if retryAfter > 0 {
			select {
			case <-time.After(retryAfter):
				continue
			case <-ctx.Done():
				return Page{}, ctx.Err()
			}
		}
		return page, err
	}
}

// fetchTransient makes up to maxFetchAttempts attempts on 5xx/network
// errors, with exponential backoff between them. A 429 short-circuits out with retryAfter set,
// leaving the indefinite-retry decision to the caller.
func (c *Client) fetchTransient(ctx context.Context, tenantID string, p int) (Page, time.Duration, error) {
	var lastRetryAfter time.Duration

	op := func() (Page, error) {
		page, retryAfter, err := c.fetchOnce(ctx, tenantID, p)
		if retryAfter > 0 {
			lastRetryAfter = retryAfter
			return Page{}, backoff.Permanent(errRateLimited)
		}
		if err != nil {
			if isRetryable(err) {
				return Page{}, err
			}
			return Page{}, backoff.Permanent(err)
		}
		return page, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 8 * time.Second

	page, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(maxFetchAttempts))
	if errors.Is(err, errRateLimited) {
		return Page{}, lastRetryAfter, nil
	}
	return page, 0, err
}

var errRateLimited = fmt.Errorf("source feed: rate limited")

func isRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// fetchOnce performs a single HTTP round trip. retryAfter is non-zero only
// on a 429 response.
func (c *Client) fetchOnce(ctx context.Context, tenantID string, p int) (Page, time.Duration, error) {
	url := fmt.Sprintf("%s/tickets?tenant_id=%s&page=%d", c.baseURL, tenantID, p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, 0, fmt.Errorf("building source feed request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page{}, 0, &RetryableError{Err: fmt.Errorf("calling source feed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Page{}, retryAfterDuration(resp.Header.Get("Retry-After")), nil
	}

	if resp.StatusCode >= 500 {
		return Page{}, 0, &RetryableError{Err: fmt.Errorf("source feed returned HTTP %d", resp.StatusCode)}
	}

	if resp.StatusCode != http.StatusOK {
		return Page{}, 0, fmt.Errorf("source feed returned HTTP %d", resp.StatusCode)
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return Page{}, 0, fmt.Errorf("decoding source feed response: %w", err)
	}
	return page, 0, nil
}

func retryAfterDuration(header string) time.Duration {
	if header == "" {
		return time.Second
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return time.Second
	}
	return time.Duration(secs) * time.Second
}
