package mastodon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultPageLimit is the page size used when a caller passes limit <= 0.
const DefaultPageLimit = 40

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is a Mastodon REST API client bound to one instance and token.
type Client struct {
	accessToken string
	baseURL     string
	httpClient  HTTPClient
	logger      zerolog.Logger
}

// NewClient creates a client for host authenticated with accessToken.
// An empty token issues anonymous requests.
func NewClient(host, accessToken string, opts ...ClientOption) *Client {
	c := &Client{
		accessToken: accessToken,
		baseURL:     BaseURL(host),
		httpClient:  &http.Client{},
		logger:      zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Home fetches the authenticated user's home timeline newer than since.
func (c *Client) Home(ctx context.Context, since *ID, limit int) ([]Status, error) {
	return c.statuses(ctx, "/api/v1/timelines/home", pageQuery(since, limit))
}

// Local fetches the instance's local public timeline newer than since.
func (c *Client) Local(ctx context.Context, since *ID, limit int) ([]Status, error) {
	q := pageQuery(since, limit)
	q.Set("local", "true")
	return c.statuses(ctx, "/api/v1/timelines/public", q)
}

// AccountStatuses fetches statuses posted by accountID. With pinned set only
// pinned statuses are requested; servers older than 1.6 ignore the flag and
// answer with ordinary statuses.
func (c *Client) AccountStatuses(ctx context.Context, accountID ID, pinned bool, limit int) ([]Status, error) {
	q := pageQuery(nil, limit)
	if pinned {
		q.Set("pinned", "true")
	}
	path := fmt.Sprintf("/api/v1/accounts/%s/statuses", url.PathEscape(string(accountID)))
	return c.statuses(ctx, path, q)
}

// CurrentUser returns the account the token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*Account, error) {
	var account Account
	if err := c.get(ctx, "/api/v1/accounts/verify_credentials", nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Instance returns metadata about the connected server.
func (c *Client) Instance(ctx context.Context) (*Instance, error) {
	var instance Instance
	if err := c.get(ctx, "/api/v1/instance", nil, &instance); err != nil {
		return nil, err
	}
	return &instance, nil
}

func (c *Client) statuses(ctx context.Context, path string, q url.Values) ([]Status, error) {
	statuses := []Status{}
	if err := c.get(ctx, path, q, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

func pageQuery(since *ID, limit int) url.Values {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if since != nil && *since != "" {
		q.Set("since_id", string(*since))
	}
	return q
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	body, err := c.doRequest(ctx, path, endpoint)
	if err != nil {
		return err
	}

	if err := sonic.Unmarshal(body, out); err != nil {
		return &RequestError{Endpoint: path, Err: errors.Wrap(err, "failed to parse response")}
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, path, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &RequestError{Endpoint: path, Err: errors.Wrap(err, "failed to create request")}
	}

	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("component", "mastodon").Str("endpoint", path).Msg("request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Endpoint: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Endpoint: path, Err: errors.Wrap(err, "failed to read response")}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Str("component", "mastodon").Str("endpoint", path).Int("status", resp.StatusCode).Msg("request failed")
		return nil, &RequestError{Endpoint: path, StatusCode: resp.StatusCode}
	}

	return body, nil
}
