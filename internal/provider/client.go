package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/unidrive/unidrive/internal/item"
)

// Backoff constants for callers that choose to retry ErrTransient or
// ErrRateLimited. Adapters themselves never retry (the taxonomy marks
// what is safe to retry; the decision belongs to the caller).
const (
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "unidrive/0.1"
)

// Backoff computes the suggested wait before retry attempt n (0-based):
// capped exponential with ±25% jitter.
func Backoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// Client is the HTTP client shared by the provider adapters. It handles
// request construction, bearer authentication, response classification
// into the failure taxonomy, and strict JSON decoding.
type Client struct {
	service    item.Service
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a provider HTTP client. A nil httpClient falls back
// to http.DefaultClient; callers serving real traffic should pass one
// with a bounded timeout.
func NewClient(service item.Service, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		service:    service,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Do executes one HTTP request with the given bearer token. Non-2xx
// responses and network failures are returned as *CallError; the caller
// is responsible for closing the response body on success.
func (c *Client) Do(
	ctx context.Context, account, method, url, bearer string, body io.Reader,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("provider: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("provider: request canceled: %w", ctx.Err())
		}

		return nil, &CallError{
			Service: c.service,
			Account: account,
			Message: err.Error(),
			Err:     ErrTransient,
		}
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("service", string(c.service)),
			slog.String("method", method),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	callErr := &CallError{
		Service:    c.service,
		Account:    account,
		StatusCode: resp.StatusCode,
		Message:    string(errBody),
		RetryAfter: retryAfter(resp),
		Err:        classifyStatus(resp.StatusCode),
	}

	c.logger.Warn("request failed",
		slog.String("service", string(c.service)),
		slog.String("method", method),
		slog.Int("status", resp.StatusCode),
	)

	return nil, callErr
}

// maxErrorBodyBytes caps how much of an error response body is kept for
// the CallError message.
const maxErrorBodyBytes = 4096

// GetJSON performs a GET and decodes the response into out. Decode
// failures are classified as ErrMalformed.
func (c *Client) GetJSON(ctx context.Context, account, url, bearer string, out any) error {
	resp, err := c.Do(ctx, account, http.MethodGet, url, bearer, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Malformed(c.service, account, fmt.Errorf("decoding response: %w", err))
	}

	return nil
}

// PostJSON performs a POST with a JSON body and decodes the response into
// out. Decode failures are classified as ErrMalformed.
func (c *Client) PostJSON(ctx context.Context, account, url, bearer string, body io.Reader, out any) error {
	resp, err := c.Do(ctx, account, http.MethodPost, url, bearer, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Malformed(c.service, account, fmt.Errorf("decoding response: %w", err))
	}

	return nil
}

// retryAfter parses a Retry-After header into a duration. Zero when the
// header is absent or unparseable.
func retryAfter(resp *http.Response) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return 0
}
