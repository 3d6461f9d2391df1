package hostapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/five82/unreadbell/internal/snapshot"
)

// UnreadFetcher fetches raw unread state from the host application.
type UnreadFetcher interface {
	FetchUnread(ctx context.Context) (*UnreadResponse, error)
}

var (
	_ UnreadFetcher   = (*Client)(nil)
	_ snapshot.Source = (*Client)(nil)
)

// Client talks to a host application's local unread API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	token     string
	userAgent string
}

const (
	defaultBaseURL   = "127.0.0.1:8080"
	defaultUserAgent = "unreadbell/0.1"
	requestTimeout   = 2 * time.Second
	unreadPath       = "/api/unread"
)

// NewClient builds a Client for baseURL. A bare host:port is treated as http.
// token, when set, is sent as a bearer credential.
func NewClient(baseURL, token string) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		token:     strings.TrimSpace(token),
		userAgent: defaultUserAgent,
	}, nil
}

// FetchUnread retrieves the host's current unread lists.
func (c *Client) FetchUnread(ctx context.Context) (*UnreadResponse, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload UnreadResponse
	if err := c.do(ctx, http.MethodGet, unreadPath, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Capture implements snapshot.Source. Every failure is reported as
// snapshot.ErrSourceUnavailable.
func (c *Client) Capture(ctx context.Context) (snapshot.Snapshot, error) {
	resp, err := c.FetchUnread(ctx)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("%w: %v", snapshot.ErrSourceUnavailable, err)
	}
	return resp.ToSnapshot(), nil
}

func (c *Client) do(ctx context.Context, method, path string, dest any) error {
	rel := &url.URL{Path: path}
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("api %s returned status %d", rel.String(), resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse source url %q: %w", raw, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
