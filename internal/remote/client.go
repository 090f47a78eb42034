package remote

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
	"github.com/listenupapp/shelfcache/internal/ratelimit"
)

const (
	defaultTimeout = 15 * time.Second
	defaultRPS     = 20.0
	defaultBurst   = 10

	// RequestIDHeader carries an idempotency key on commits.
	RequestIDHeader = "X-Request-ID"

	// Limiter keys, one bucket per backend operation.
	opFetchShelf = "fetch_shelf"
	opFetchPage  = "fetch_page"
	opCommit     = "commit"
	opPublish    = "publish"
)

// Errors returned for transport-level failures.
var (
	ErrRateLimited = errors.New("origin rate limited the request")
	ErrServer      = errors.New("origin server error")
)

// ClientConfig configures the HTTP backend client.
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// Client talks to an origin that serves the /origin/v1 routes.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
}

var (
	_ Backend   = (*Client)(nil)
	_ Publisher = (*Client)(nil)
)

// envelope mirrors the origin's response wrapper.
type envelope[T any] struct {
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Success bool   `json:"success"`
}

// NewClient creates a rate-limited origin client.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimit.New(cfg.RateLimit, cfg.Burst),
		logger:  logger,
	}, nil
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// FetchShelf retrieves one shelf.
func (c *Client) FetchShelf(ctx context.Context, id string) (*domain.Shelf, error) {
	body, err := c.do(ctx, opFetchShelf, http.MethodGet, "/origin/v1/shelves/"+url.PathEscape(id), nil, nil, "")
	if err != nil {
		return nil, err
	}
	var env envelope[*domain.Shelf]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode shelf %s: %w", id, err)
	}
	if env.Data == nil {
		return nil, domainerrors.NotFoundf("shelf %s not found", id)
	}
	return env.Data, nil
}

// FetchPage retrieves one page of a paginated query.
func (c *Client) FetchPage(ctx context.Context, kind domain.QueryKind, key, cursor string, limit int) (*domain.Page, error) {
	query := url.Values{}
	query.Set("key", key)
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.do(ctx, opFetchPage, http.MethodGet, "/origin/v1/pages/"+url.PathEscape(string(kind)), query, nil, "")
	if err != nil {
		return nil, err
	}
	var env envelope[*domain.Page]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode page %s:%s: %w", kind, key, err)
	}
	if env.Data == nil {
		return &domain.Page{Exhausted: true}, nil
	}
	return env.Data, nil
}

// CommitReorder persists a new item order. Every attempt carries a fresh request ID.
func (c *Client) CommitReorder(ctx context.Context, shelfID string, order []int) error {
	payload, err := json.Marshal(CommitRequest{Order: order})
	if err != nil {
		return fmt.Errorf("encode commit: %w", err)
	}
	requestID := uuid.NewString()
	_, err = c.do(ctx, opCommit, http.MethodPut, "/origin/v1/shelves/"+url.PathEscape(shelfID)+"/order", nil, payload, requestID)
	if err != nil {
		return err
	}
	c.logger.Debug("reorder committed on origin", "shelf_id", shelfID, "request_id", requestID)
	return nil
}

// PutShelf creates or replaces a shelf on the origin.
func (c *Client) PutShelf(ctx context.Context, shelf *domain.Shelf) error {
	payload, err := json.Marshal(shelf)
	if err != nil {
		return fmt.Errorf("encode shelf: %w", err)
	}
	_, err = c.do(ctx, opPublish, http.MethodPut, "/origin/v1/shelves/"+url.PathEscape(shelf.ID), nil, payload, uuid.NewString())
	return err
}

// AppendItems adds items to a shelf on the origin and returns the stored shelf.
func (c *Client) AppendItems(ctx context.Context, shelfID string, items []domain.Item) (*domain.Shelf, error) {
	payload, err := json.Marshal(AppendRequest{Items: items})
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	body, err := c.do(ctx, opPublish, http.MethodPost, "/origin/v1/shelves/"+url.PathEscape(shelfID)+"/items", nil, payload, uuid.NewString())
	if err != nil {
		return nil, err
	}
	var env envelope[*domain.Shelf]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode shelf %s: %w", shelfID, err)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("origin returned no shelf for %s", shelfID)
	}
	return env.Data, nil
}

// do executes a request with rate limiting and maps error statuses.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload []byte, requestID string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, op); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	target := c.base.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}

	c.logger.Debug("origin request", "op", op, "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, domainerrors.NotFound(errorMessage(body, "not found"))
	case resp.StatusCode == http.StatusBadRequest:
		return nil, domainerrors.Validation(errorMessage(body, "bad request"))
	case resp.StatusCode == http.StatusConflict:
		return nil, domainerrors.Conflictf("%s", errorMessage(body, "conflict"))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrServer, resp.StatusCode, errorMessage(body, ""))
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

func errorMessage(body []byte, fallback string) string {
	var env envelope[any]
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		return env.Error
	}
	return fallback
}
