package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meltforce/intervals/internal/models"
	"github.com/meltforce/intervals/internal/storage"
)

// HTTPClient implements DataSource by calling the Intervals REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale). Session
// ownership is decided by the server from the caller's identity, so the
// owner arguments are ignored.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("httpclient: %s: %w", path, storage.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	return body, nil
}

func (c *HTTPClient) ListRoutineSummaries(ctx context.Context) ([]models.RoutineSummary, error) {
	body, err := c.get(ctx, "/api/v1/routines", nil)
	if err != nil {
		return nil, err
	}

	var summaries []models.RoutineSummary
	if err := json.Unmarshal(body, &summaries); err != nil {
		return nil, fmt.Errorf("httpclient: decode routines: %w", err)
	}
	return summaries, nil
}

func (c *HTTPClient) GetRoutine(ctx context.Context, id uuid.UUID) (*models.RoutineRow, error) {
	body, err := c.get(ctx, "/api/v1/routines/"+id.String(), nil)
	if err != nil {
		return nil, err
	}

	var row models.RoutineRow
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, fmt.Errorf("httpclient: decode routine: %w", err)
	}
	return &row, nil
}

// GetRoutineByName resolves the name through the routine listing, then
// fetches the full routine.
func (c *HTTPClient) GetRoutineByName(ctx context.Context, name string) (*models.RoutineRow, error) {
	summaries, err := c.ListRoutineSummaries(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range summaries {
		if s.Name == name {
			return c.GetRoutine(ctx, s.ID)
		}
	}
	return nil, fmt.Errorf("routine %q: %w", name, storage.ErrNotFound)
}

func (c *HTTPClient) GetTimerSession(ctx context.Context, id uuid.UUID) (*models.TimerSessionRow, error) {
	body, err := c.get(ctx, "/api/v1/sessions/"+id.String(), nil)
	if err != nil {
		return nil, err
	}

	var session models.TimerSessionRow
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("httpclient: decode session: %w", err)
	}
	return &session, nil
}

func (c *HTTPClient) ListTimerSessions(ctx context.Context, _ string, limit int) ([]models.TimerSessionRow, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.get(ctx, "/api/v1/sessions", params)
	if err != nil {
		return nil, err
	}

	var sessions []models.TimerSessionRow
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, fmt.Errorf("httpclient: decode sessions: %w", err)
	}
	return sessions, nil
}

func (c *HTTPClient) GetCatalogStats(ctx context.Context, _ string) (*storage.CatalogStats, error) {
	body, err := c.get(ctx, "/api/v1/stats", nil)
	if err != nil {
		return nil, err
	}

	var stats storage.CatalogStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("httpclient: decode stats: %w", err)
	}
	return &stats, nil
}
