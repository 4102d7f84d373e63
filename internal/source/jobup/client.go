package jobup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"jobharvest/internal/domain"
	"jobharvest/internal/mapping"
)

const (
	SourceID       = "jobup"
	DefaultBaseURL = "https://www.jobup.ch/api/v1/public"
	DefaultRows    = 20
)

// DefaultCategoryIDs are the IT categories searched by default.
var DefaultCategoryIDs = []int{702, 703, 704, 705, 706, 707, 708, 709, 710, 711, 712, 713, 714, 715}

// ErrMalformedPayload is returned when an OK response does not carry valid JSON.
var ErrMalformedPayload = errors.New("jobup: malformed payload")

// Config holds jobup client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	UserAgent   string
	CategoryIDs []int
}

// Client talks to the public jobup API. It issues exactly one request per
// call; pacing and retries belong to the caller.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	categoryIDs []int
	logger      *slog.Logger
}

// New creates a new jobup client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if len(cfg.CategoryIDs) == 0 {
		cfg.CategoryIDs = DefaultCategoryIDs
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "JobHarvest/1.0"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		categoryIDs: cfg.CategoryIDs,
		logger:      logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (c *Client) ID() string {
	return SourceID
}

// Fetch issues one GET and returns the parsed body when the status is
// classified OK. Any other status is returned as a *StatusError.
func (c *Client) Fetch(ctx context.Context, rawURL string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if outcome := Classify(resp.StatusCode); outcome != OutcomeOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return gjson.Result{}, &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Outcome: outcome}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrMalformedPayload, rawURL)
	}

	return gjson.ParseBytes(body), nil
}

// SearchURL builds the search URL for a page (starting at 1) restricted to
// the configured categories.
func (c *Client) SearchURL(page, rows int) string {
	values := url.Values{}
	for i, id := range c.categoryIDs {
		values.Set(fmt.Sprintf("category-ids[%d]", i), strconv.Itoa(id))
	}
	values.Set("page", strconv.Itoa(page))
	values.Set("rows", strconv.Itoa(rows))
	return c.baseURL + "/search?" + values.Encode()
}

// SearchPage returns the job IDs of a search page, newest first.
func (c *Client) SearchPage(ctx context.Context, page, rows int) ([]string, error) {
	result, err := c.Fetch(ctx, c.SearchURL(page, rows))
	if err != nil {
		return nil, fmt.Errorf("fetch search page %d: %w", page, err)
	}

	documents := result.Get("documents")
	if !documents.IsArray() {
		return nil, fmt.Errorf("%w: search page %d has no documents", ErrMalformedPayload, page)
	}

	var ids []string
	for _, doc := range documents.Array() {
		id := doc.Get("job_id").String()
		if id == "" {
			c.logger.Warn("search document without job_id", "page", page)
			continue
		}
		ids = append(ids, id)
	}

	c.logger.Debug("fetched search page", "page", page, "jobs", len(ids))

	return ids, nil
}

// LatestJobID returns the ID of the most recently posted job.
func (c *Client) LatestJobID(ctx context.Context) (string, error) {
	ids, err := c.SearchPage(ctx, 1, 1)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: search returned no jobs", ErrMalformedPayload)
	}
	return ids[0], nil
}

// FetchJob fetches and maps the full detail of a job.
func (c *Client) FetchJob(ctx context.Context, jobID string) (*domain.Job, error) {
	result, err := c.Fetch(ctx, c.baseURL+"/search/job/"+url.PathEscape(jobID))
	if err != nil {
		return nil, fmt.Errorf("fetch job %s: %w", jobID, err)
	}

	job, err := mapping.Materialize[domain.Job](result)
	if err != nil {
		return nil, fmt.Errorf("map job %s: %w", jobID, err)
	}
	// nested objects may carry their own job_id; the requested one is the key
	job.JobID = jobID
	return job, nil
}

// FetchCompany fetches and maps a company together with its addresses.
func (c *Client) FetchCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	result, err := c.Fetch(ctx, c.baseURL+"/company/"+url.PathEscape(companyID))
	if err != nil {
		return nil, fmt.Errorf("fetch company %s: %w", companyID, err)
	}

	company, err := mapping.Materialize[domain.Company](result)
	if err != nil {
		return nil, fmt.Errorf("map company %s: %w", companyID, err)
	}
	// flattened sub-objects such as industry carry an id of their own
	company.ID = companyID
	return company, nil
}
