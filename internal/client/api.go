package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hirewave/notify/internal/model"
)

// APIError represents an error response from the notification API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notify api error %d: %s", e.StatusCode, e.Message)
}

// API provides access to the notification history and read-state endpoints.
// It satisfies the feed's Fetcher contract.
type API struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// APIOption configures an API client.
type APIOption func(*API)

// NewAPI creates a REST client for the given base URL and bearer token.
func NewAPI(baseURL, token string, opts ...APIOption) *API {
	a := &API{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) APIOption {
	return func(a *API) {
		a.httpClient.Timeout = d
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) APIOption {
	return func(a *API) {
		a.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) APIOption {
	return func(a *API) {
		a.logger = logger
	}
}

// FetchPage retrieves one history page. A nil cursor fetches from the top.
func (a *API) FetchPage(ctx context.Context, cursor *string, limit int) (*model.FeedPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if cursor != nil {
		query.Set("cursor", *cursor)
	}

	var page model.FeedPage
	if err := a.do(ctx, http.MethodGet, "/api/v1/notifications", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// MarkRead marks the given ids read and returns the authoritative unread count.
func (a *API) MarkRead(ctx context.Context, ids []string) (int, error) {
	var resp model.MarkReadResponse
	req := model.MarkReadRequest{IDs: ids}
	if err := a.do(ctx, http.MethodPost, "/api/v1/notifications/read", nil, req, &resp); err != nil {
		return 0, err
	}
	return resp.UnreadCount, nil
}

// MarkAllRead marks everything read and returns the authoritative unread count.
func (a *API) MarkAllRead(ctx context.Context) (int, error) {
	var resp model.MarkReadResponse
	req := model.MarkReadRequest{All: true}
	if err := a.do(ctx, http.MethodPost, "/api/v1/notifications/read", nil, req, &resp); err != nil {
		return 0, err
	}
	return resp.UnreadCount, nil
}

// do performs one request and decodes the JSON response.
func (a *API) do(ctx context.Context, method, path string, query url.Values, payload, result any) error {
	fullURL := a.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       data,
		}
	}

	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
