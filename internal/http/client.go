// Package http is the request executor the data store talks to. It owns
// authentication, retries and error-body decoding.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fivetwenty-io/iam/internal/constants"
	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/hashicorp/go-retryablehttp"
)

// Static errors for err113 compliance.
var (
	ErrNilRequest = errors.New("request is nil")
)

// Authenticator signs outbound requests.
type Authenticator interface {
	Authenticate(req *http.Request) error
}

// APIKeyAuthenticator sends the API key pair as HTTP Basic credentials.
type APIKeyAuthenticator struct {
	ID     string
	Secret string
}

// NewAPIKeyAuthenticator creates an authenticator for an API key pair.
func NewAPIKeyAuthenticator(id, secret string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{ID: id, Secret: secret}
}

// Authenticate implements Authenticator.
func (a *APIKeyAuthenticator) Authenticate(req *http.Request) error {
	if a.ID == "" || a.Secret == "" {
		return iam.ErrAPIKeyRequired
	}

	req.SetBasicAuth(a.ID, a.Secret)

	return nil
}

// Request is one call to the service. Path may be relative to the base URL
// or an absolute href.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Headers map[string]string
}

// Response is the raw outcome of a call.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client executes requests with retries.
type Client struct {
	baseURL      string
	auth         Authenticator
	client       *retryablehttp.Client
	logger       iam.Logger
	debug        bool
	userAgent    string
	interceptors *iam.InterceptorChain
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger iam.Logger) Option {
	return func(c *Client) {
		c.logger = iam.LoggerOrNoOp(logger)
	}
}

// WithDebug logs every request and response.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRetryConfig tunes retries of 429 and 5xx responses.
func WithRetryConfig(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.client.RetryMax = retryMax
		c.client.RetryWaitMin = waitMin
		c.client.RetryWaitMax = waitMax
	}
}

// WithTimeout bounds a single attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.HTTPClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client.HTTPClient = client
	}
}

// WithInterceptors runs chain around every call.
func WithInterceptors(chain *iam.InterceptorChain) Option {
	return func(c *Client) {
		c.interceptors = chain
	}
}

// NewClient creates a client rooted at baseURL. auth may be nil.
func NewClient(baseURL string, auth Authenticator, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = constants.DefaultRetryMax
	retryClient.RetryWaitMin = constants.DefaultRetryWaitMin
	retryClient.RetryWaitMax = constants.DefaultRetryWaitMax
	retryClient.HTTPClient.Timeout = constants.DefaultHTTPTimeout
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		auth:         auth,
		client:       retryClient,
		logger:       iam.NoOpLogger{},
		userAgent:    constants.DefaultUserAgent,
		interceptors: iam.NewInterceptorChain(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Resolve turns a path or href into an absolute URL.
func (c *Client) Resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}

	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

// Do executes req. A non-2xx response is returned together with an
// *iam.APIError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	err := ctx.Err()
	if err != nil {
		return nil, fmt.Errorf("request cancelled: %w", err)
	}

	intercepted, err := c.intercepted(req)
	if err != nil {
		return nil, err
	}

	err = c.interceptors.ExecuteRequestInterceptors(ctx, intercepted)
	if err != nil {
		return nil, err
	}

	httpReq, err := c.build(ctx, intercepted)
	if err != nil {
		return nil, err
	}

	if c.debug {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method": intercepted.Method,
			"url":    intercepted.URL,
		})
	}

	start := time.Now()

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		_ = c.interceptors.ExecuteResponseInterceptors(ctx, intercepted, &iam.Response{Error: err})

		return nil, fmt.Errorf("executing %s %s: %w", intercepted.Method, intercepted.URL, err)
	}

	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
	}

	if c.debug {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"status":   resp.StatusCode,
			"duration": time.Since(start).String(),
			"bytes":    len(body),
		})
	}

	var apiErr error
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr = iam.ParseAPIError(resp.StatusCode, body)
	}

	err = c.interceptors.ExecuteResponseInterceptors(ctx, intercepted, &iam.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
		Error:      apiErr,
	})
	if err != nil {
		return resp, err
	}

	return resp, apiErr
}

func (c *Client) intercepted(req *Request) (*iam.Request, error) {
	target, err := url.Parse(c.Resolve(req.Path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", iam.ErrInvalidBaseURL, err)
	}

	if len(req.Query) > 0 {
		query := target.Query()
		for key, values := range req.Query {
			for _, value := range values {
				query.Add(key, value)
			}
		}

		target.RawQuery = query.Encode()
	}

	headers := make(http.Header)
	headers.Set("Accept", "application/json")
	headers.Set("User-Agent", c.userAgent)

	for key, value := range req.Headers {
		headers.Set(key, value)
	}

	var body []byte

	if req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}

		headers.Set("Content-Type", "application/json")
	}

	return &iam.Request{
		Method:   req.Method,
		URL:      target.String(),
		Headers:  headers,
		Body:     body,
		Metadata: map[string]interface{}{},
	}, nil
}

func (c *Client) build(ctx context.Context, req *iam.Request) (*retryablehttp.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header = req.Headers.Clone()

	if c.auth != nil {
		err = c.auth.Authenticate(httpReq.Request)
		if err != nil {
			return nil, fmt.Errorf("authenticating request: %w", err)
		}
	}

	return httpReq, nil
}

// Get issues a GET.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}
