package loadshedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
)

const (
	defaultHTTPTimeout    = 5 * time.Second
	responseBodyReadLimit = 1024
	tokenHeader           = "Token"
	maxStage              = 8
)

var errBaseURLRequired = errors.New("load-shedding base url is required")

// Client calls the load-shedding status API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the status client for baseURL.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	client := &Client{
		baseURL:    trimmed,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// FetchStage returns the current stage for area. Client errors are
// validation errors; everything else is a dependency error and may be
// retried.
func (c *Client) FetchStage(ctx context.Context, area string) (int, error) {
	if c == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "load-shedding client not configured")
	}
	endpoint := fmt.Sprintf("%s/stage?area=%s", c.baseURL, url.QueryEscape(area))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build stage request")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute stage request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		code := pkgerrors.CodeDependency
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			code = pkgerrors.CodeValidation
		}
		return 0, pkgerrors.Wrap(code, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "stage request failed")
	}

	var body struct {
		Stage *int `json:"stage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode stage response")
	}
	if body.Stage == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "stage missing from response")
	}
	return clampStage(*body.Stage), nil
}

func clampStage(stage int) int {
	switch {
	case stage < 0:
		return 0
	case stage > maxStage:
		return maxStage
	default:
		return stage
	}
}
