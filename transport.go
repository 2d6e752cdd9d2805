package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-print"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 1 << 20

// APIClient talks to the portal backend. It owns the base URL and the
// request timeout; the HTTP transport itself is a black box Doer.
type APIClient struct {
	baseURL string
	doer    Doer
	timeout time.Duration
	logger  Logger
	debug   bool
}

// APIClientOption customizes an APIClient.
type APIClientOption func(*APIClient)

// WithDoer overrides the HTTP transport.
func WithDoer(d Doer) APIClientOption {
	return func(c *APIClient) {
		if d != nil {
			c.doer = d
		}
	}
}

// WithTimeout sets the per request timeout. Zero disables it.
func WithTimeout(d time.Duration) APIClientOption {
	return func(c *APIClient) {
		c.timeout = d
	}
}

// WithAPILogger sets the logger.
func WithAPILogger(l Logger) APIClientOption {
	return func(c *APIClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDebug dumps decoded payloads through the logger.
func WithDebug(debug bool) APIClientOption {
	return func(c *APIClient) {
		c.debug = debug
	}
}

// NewAPIClient creates a client for the given base URL, e.g.
// "https://portal.example.com/api".
func NewAPIClient(baseURL string, opts ...APIClientOption) *APIClient {
	c := &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    http.DefaultClient,
		timeout: DefaultTimeout,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// NewAPIClientFromConfig creates a client from Config.
func NewAPIClientFromConfig(cfg Config, opts ...APIClientOption) *APIClient {
	base := []APIClientOption{
		WithTimeout(cfg.Timeout),
		WithDebug(cfg.Debug),
	}
	return NewAPIClient(cfg.BaseURL, append(base, opts...)...)
}

// BaseURL returns the configured base URL.
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// apiResponse is a fully read response.
type apiResponse struct {
	Status int
	Body   []byte
}

func (r *apiResponse) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// decode unmarshals the body into out. An empty or malformed body is an error.
func (r *apiResponse) decode(out any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return io.ErrUnexpectedEOF
	}
	return json.Unmarshal(r.Body, out)
}

// message extracts the backend provided "message" field, if any.
func (r *apiResponse) message() string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(r.Body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

type requestOptions struct {
	bearer string
	query  url.Values
	body   any
}

// do issues a request and reads the whole body. Transport level failures
// are returned as ErrTransient; HTTP status handling is left to callers.
func (c *APIClient) do(ctx context.Context, method, path string, opts requestOptions) (*apiResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + path
	if len(opts.query) > 0 {
		endpoint += "?" + opts.query.Encode()
	}

	var body io.Reader
	if opts.body != nil {
		raw, err := json.Marshal(opts.body)
		if err != nil {
			return nil, newError(ErrProtocol, err, map[string]any{"path": path})
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, newError(ErrConfig, err, map[string]any{"path": path})
	}
	req.Header.Set("Accept", "application/json")
	if opts.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+opts.bearer)
	}

	res, err := c.doer.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "method", method, "path", path, "error", err)
		return nil, newError(ErrTransient, err, map[string]any{"path": path})
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, newError(ErrTransient, err, map[string]any{
			"path":   path,
			"status": res.StatusCode,
		})
	}

	if c.debug {
		c.logger.Debug(fmt.Sprintf("%s %s -> %d", method, path, res.StatusCode),
			"body", print.MaybePrettyJSON(json.RawMessage(raw)),
		)
	}

	return &apiResponse{Status: res.StatusCode, Body: raw}, nil
}
