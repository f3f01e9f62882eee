package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meltforce/intervals/internal/ingest"
	"github.com/meltforce/intervals/internal/models"
)

// Client talks to the Intervals server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a new HTTP client for the Intervals server. apiKey is
// only needed for uploads.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: time.Second,
	}
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s request failed (status %d): %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// ListRoutines retrieves the routine summaries from the server.
func (c *Client) ListRoutines(ctx context.Context) ([]models.RoutineSummary, error) {
	var summaries []models.RoutineSummary
	if err := c.getJSON(ctx, "/api/v1/routines", &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// GetRoutine retrieves a single routine with its phases.
func (c *Client) GetRoutine(ctx context.Context, id uuid.UUID) (*models.RoutineRow, error) {
	var row models.RoutineRow
	if err := c.getJSON(ctx, "/api/v1/routines/"+id.String(), &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// ImportFile POSTs a routine definition file to the server's import endpoint.
// Retries up to 3 times with exponential backoff on transport errors, 5xx
// responses and 429s; a 429's Retry-After is honoured up to maxRetryAfter.
// Any other 4xx means the file itself was rejected and is not retried.
func (c *Client) ImportFile(ctx context.Context, data []byte) (*ingest.Result, error) {
	var lastErr error
	var wait time.Duration
	for attempt := range 3 {
		if attempt > 0 {
			if wait == 0 {
				wait = c.backoff << uint(attempt-1)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait = 0
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.serverURL+"/api/v1/routines/import", bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/yaml")
		req.Header.Set("X-API-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			var result ingest.Result
			if err := json.Unmarshal(body, &result); err != nil {
				return nil, fmt.Errorf("decoding import result: %w", err)
			}
			return &result, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			wait = retryAfter(resp.Header.Get("Retry-After"))
		case resp.StatusCode < http.StatusInternalServerError:
			return nil, fmt.Errorf("import rejected (status %d): %s", resp.StatusCode, body)
		}
		lastErr = fmt.Errorf("import failed (status %d): %s", resp.StatusCode, body)
	}

	return nil, fmt.Errorf("after 3 attempts: %w", lastErr)
}

// maxRetryAfter caps how long a single Retry-After may stall an upload.
const maxRetryAfter = time.Minute

// retryAfter parses a Retry-After header given in seconds. Zero means the
// caller's own backoff applies.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}
