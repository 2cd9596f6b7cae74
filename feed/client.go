package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go-pulsemap/types"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL   = "https://api.politiet.no/politiloggen/v1"
	defaultUserAgent = "PulseMap/1.0 (incident map)"
	defaultPageSize  = 100
	defaultMaxPages  = 10
)

// errNotFound marks a 404 on the single-incident endpoint.
var errNotFound = errors.New("incident not found")

type ClientConfig struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	PageSize   int
	MaxPages   int
	HTTPClient *http.Client
}

// Client talks to the live incident feed.
type Client struct {
	baseURL   string
	userAgent string
	pageSize  int
	maxPages  int
	http      *http.Client
	logger    *zap.Logger
}

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		pageSize:  cfg.PageSize,
		maxPages:  cfg.MaxPages,
		http:      httpClient,
		logger:    logger.Named("feed"),
	}
}

// FetchIncidents returns every incident in the window, walking pages until one adds nothing new.
// Records that cannot be normalized are skipped and logged.
func (c *Client) FetchIncidents(ctx context.Context, district string, from, to time.Time) ([]types.RawIncident, error) {
	params := url.Values{}
	if district != "" {
		params.Set("politidistrikt", district)
	}
	if !from.IsZero() {
		params.Set("fra", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		params.Set("til", to.UTC().Format(time.RFC3339))
	}
	params.Set("antall", strconv.Itoa(c.pageSize))

	seen := make(map[string]struct{})
	var incidents []types.RawIncident

	for page := 1; page <= c.maxPages; page++ {
		params.Set("side", strconv.Itoa(page))
		body, err := c.get(ctx, "/hendelser", params)
		if err != nil {
			return nil, err
		}

		records, ok, err := decodeList(body)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("unexpected feed response shape")
		}

		added := 0
		for _, rec := range records {
			inc, err := normalize(rec)
			if err != nil {
				c.logger.Warn("Skipping malformed feed record", zap.Error(err))
				continue
			}
			if _, dup := seen[inc.ID]; dup {
				continue
			}
			seen[inc.ID] = struct{}{}
			incidents = append(incidents, inc)
			added++
		}

		if added == 0 || len(records) < c.pageSize {
			break
		}
	}

	c.logger.Debug("Fetched incidents",
		zap.String("district", district),
		zap.Int("count", len(incidents)))
	return incidents, nil
}

// FetchIncidentByID returns nil without error when the feed has no such incident.
func (c *Client) FetchIncidentByID(ctx context.Context, id string) (*types.RawIncident, error) {
	body, err := c.get(ctx, "/hendelser/"+url.PathEscape(id), nil)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec rawRecord
	records, ok, err := decodeList(body)
	switch {
	case err == nil && ok && len(records) > 0:
		rec = records[0]
	case err == nil && ok:
		return nil, nil
	default:
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("decode incident %s: %w", id, err)
		}
	}

	inc, err := normalize(rec)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// HealthCheck reports whether the feed answers a minimal listing request.
func (c *Client) HealthCheck(ctx context.Context) bool {
	params := url.Values{}
	params.Set("antall", "1")
	if _, err := c.get(ctx, "/hendelser", params); err != nil {
		c.logger.Warn("Feed health check failed", zap.Error(err))
		return false
	}
	return true
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed non-OK response: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed response: %w", err)
	}
	return body, nil
}
