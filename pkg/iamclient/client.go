package iamclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fivetwenty-io/iam/internal/constants"
	"github.com/fivetwenty-io/iam/internal/datastore"
	iamhttp "github.com/fivetwenty-io/iam/internal/http"
	"github.com/fivetwenty-io/iam/internal/identitymap"
	"github.com/fivetwenty-io/iam/pkg/cache"
	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/fivetwenty-io/iam/pkg/query"
	"github.com/fivetwenty-io/iam/pkg/resource"
)

// Static errors for err113 compliance.
var (
	ErrTokenRequired = errors.New("verification token is required")
	ErrWrongKind     = errors.New("resource has a different kind")
)

// Client is a configured IAM service client. It is safe for concurrent use.
type Client struct {
	http         *iamhttp.Client
	store        *datastore.DataStore
	instrumented *cache.InstrumentedProvider
	metrics      *iam.MetricsCollector
	logger       iam.Logger
}

// New creates a client. config is copied; zero fields take defaults.
func New(ctx context.Context, config *iam.Config) (*Client, error) {
	if config == nil {
		return nil, iam.ErrConfigRequired
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}

	cfg := *config
	cfg.ApplyDefaults()

	baseURL, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	cfg.BaseURL = baseURL

	if cfg.APIKeyID == "" || cfg.APIKeySecret == "" {
		return nil, iam.ErrAPIKeyRequired
	}

	metrics := iam.NewMetricsCollector()
	httpClient := iamhttp.NewClient(cfg.BaseURL,
		iamhttp.NewAPIKeyAuthenticator(cfg.APIKeyID, cfg.APIKeySecret),
		createHTTPClientOptions(&cfg, metrics)...)

	provider, err := cache.NewProvider(cfg.Cache, cache.WithSerializer(cfg.Serializer), cache.WithLogger(cfg.Logger))
	if err != nil {
		return nil, fmt.Errorf("creating cache provider: %w", err)
	}

	client := &Client{
		http:    httpClient,
		metrics: metrics,
		logger:  cfg.Logger,
	}

	if cfg.MetricsRegisterer != nil {
		client.instrumented, err = cache.Instrument(provider, cfg.MetricsRegisterer)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("instrumenting cache: %w", err), provider.Close())
		}

		provider = client.instrumented
	}

	identity := identitymap.New[*resource.Data](cfg.IdentityMapExpiration, cfg.IdentityMapSize)

	client.store = datastore.New(httpClient, provider, identity,
		datastore.WithLogger(cfg.Logger),
		datastore.WithSerializer(cfg.Serializer),
	)

	client.logger.Debug("Client created", map[string]interface{}{
		"base_url": cfg.BaseURL,
		"cache":    string(cfg.Cache.Type),
	})

	return client, nil
}

// NewWithAPIKey creates a client for baseURL authenticated by an API key pair.
func NewWithAPIKey(ctx context.Context, baseURL, id, secret string) (*Client, error) {
	return New(ctx, &iam.Config{
		BaseURL:      baseURL,
		APIKeyID:     id,
		APIKeySecret: secret,
	})
}

func normalizeBaseURL(raw string) (string, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if baseURL == "" {
		return "", iam.ErrBaseURLRequired
	}

	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q", iam.ErrInvalidBaseURL, raw)
	}

	return baseURL, nil
}

func createHTTPClientOptions(cfg *iam.Config, metrics *iam.MetricsCollector) []iamhttp.Option {
	chain := iam.NewInterceptorChain()
	chain.AddRequestInterceptor(iam.RequestIDInterceptor())

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}

		chain.AddRequestInterceptor(iam.RateLimitInterceptor(iam.NewRateLimiter(cfg.RateLimit, burst)))
	}

	chain.AddRequestInterceptor(iam.MetricsRequestInterceptor(metrics))
	chain.AddResponseInterceptor(iam.MetricsResponseInterceptor(metrics))

	if cfg.Debug {
		chain.AddRequestInterceptor(iam.LoggingInterceptor(cfg.Logger))
		chain.AddResponseInterceptor(iam.LoggingResponseInterceptor(cfg.Logger))
	}

	return []iamhttp.Option{
		iamhttp.WithLogger(cfg.Logger),
		iamhttp.WithDebug(cfg.Debug),
		iamhttp.WithUserAgent(cfg.UserAgent),
		iamhttp.WithTimeout(cfg.Timeout),
		iamhttp.WithRetryConfig(cfg.RetryMax, cfg.RetryWaitMin, cfg.RetryWaitMax),
		iamhttp.WithInterceptors(chain),
	}
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	return c.http.BaseURL()
}

// Href resolves a path relative to the API root.
func (c *Client) Href(path string) string {
	return c.store.Href(path)
}

// CurrentTenant returns the tenant that owns the API key. Tenants stay in
// the identity map for the lifetime of the client.
func (c *Client) CurrentTenant(ctx context.Context) (*resource.Tenant, error) {
	return get[*resource.Tenant](ctx, c, resource.KindTenant, constants.CurrentTenantPath)
}

// GetAccount returns the account at href.
func (c *Client) GetAccount(ctx context.Context, href string) (*resource.Account, error) {
	return get[*resource.Account](ctx, c, resource.KindAccount, href)
}

// GetApplication returns the application at href.
func (c *Client) GetApplication(ctx context.Context, href string) (*resource.Application, error) {
	return get[*resource.Application](ctx, c, resource.KindApplication, href)
}

// GetDirectory returns the directory at href.
func (c *Client) GetDirectory(ctx context.Context, href string) (*resource.Directory, error) {
	return get[*resource.Directory](ctx, c, resource.KindDirectory, href)
}

// GetGroup returns the group at href.
func (c *Client) GetGroup(ctx context.Context, href string) (*resource.Group, error) {
	return get[*resource.Group](ctx, c, resource.KindGroup, href)
}

// GetOrganization returns the organization at href.
func (c *Client) GetOrganization(ctx context.Context, href string) (*resource.Organization, error) {
	return get[*resource.Organization](ctx, c, resource.KindOrganization, href)
}

// GetCustomData returns the custom data of the resource at parentHref.
func (c *Client) GetCustomData(ctx context.Context, parentHref string) (*resource.CustomData, error) {
	return get[*resource.CustomData](ctx, c, resource.KindCustomData, customDataHref(c.Href(parentHref)))
}

// GetResource returns the resource of kind at href. Polymorphic kinds such
// as factors resolve to their concrete type.
func (c *Client) GetResource(ctx context.Context, kind resource.Kind, href string) (resource.Resource, error) {
	return c.store.GetResource(ctx, kind, href)
}

func get[T resource.Resource](ctx context.Context, c *Client, kind resource.Kind, href string) (T, error) {
	var zero T

	res, err := c.store.GetResource(ctx, kind, href)
	if err != nil {
		return zero, err
	}

	typed, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %s, not %s", ErrWrongKind, res.Href(), res.Kind(), kind)
	}

	return typed, nil
}

// Instantiate creates a new, unsaved resource of kind.
func (c *Client) Instantiate(kind resource.Kind) (resource.Resource, error) {
	return c.store.Instantiate(kind)
}

// Create posts res to the collection at parentHref. options carries creation
// flags such as registrationWorkflowEnabled.
func (c *Client) Create(ctx context.Context, parentHref string, res resource.Resource, options url.Values) (resource.Resource, error) {
	return c.store.Create(ctx, parentHref, res, options)
}

// Save posts the pending changes of res.
func (c *Client) Save(ctx context.Context, res resource.Resource) error {
	return c.store.Save(ctx, res)
}

// Delete removes res remotely and from the cache.
func (c *Client) Delete(ctx context.Context, res resource.Resource) error {
	return c.store.Delete(ctx, res)
}

// DeleteCustomDataKey removes one key from the custom data of the resource
// at parentHref.
func (c *Client) DeleteCustomDataKey(ctx context.Context, parentHref, key string) error {
	return c.store.DeleteProperty(ctx, c.Href(parentHref), key)
}

// VerifyEmailToken consumes an email verification token and returns the
// verified account, read fresh from the service.
func (c *Client) VerifyEmailToken(ctx context.Context, token string) (*resource.Account, error) {
	if token == "" {
		return nil, ErrTokenRequired
	}

	result, err := c.store.Execute(ctx, &datastore.Request{
		Action: datastore.ActionCreate,
		Kind:   resource.KindEmailVerificationToken,
		URI:    constants.EmailVerificationTokensPath + "/" + url.PathEscape(token),
	})
	if err != nil {
		return nil, fmt.Errorf("verifying email token: %w", err)
	}

	href := ""
	if result != nil {
		href = resource.HrefOf(result.Body)
	}

	if href == "" {
		return nil, fmt.Errorf("verifying email token: %w", resource.ErrMissingHref)
	}

	return c.GetAccount(ctx, href)
}

// Accounts queries the account collection at href.
func (c *Client) Accounts(href string) *query.Query[*resource.Account] {
	return Query[*resource.Account](c, resource.KindAccountCollection, href)
}

// Applications queries the application collection at href.
func (c *Client) Applications(href string) *query.Query[*resource.Application] {
	return Query[*resource.Application](c, resource.KindApplicationCollection, href)
}

// Directories queries the directory collection at href.
func (c *Client) Directories(href string) *query.Query[*resource.Directory] {
	return Query[*resource.Directory](c, resource.KindDirectoryCollection, href)
}

// Groups queries the group collection at href.
func (c *Client) Groups(href string) *query.Query[*resource.Group] {
	return Query[*resource.Group](c, resource.KindGroupCollection, href)
}

// Organizations queries the organization collection at href.
func (c *Client) Organizations(href string) *query.Query[*resource.Organization] {
	return Query[*resource.Organization](c, resource.KindOrganizationCollection, href)
}

// Query queries any collection kind at href.
func Query[T resource.Resource](c *Client, kind resource.Kind, href string) *query.Query[T] {
	return query.New[T](c.store, kind, href)
}

// CacheStats returns aggregate cache counters. ok is false unless a metrics
// registerer was configured.
func (c *Client) CacheStats() (stats cache.Stats, ok bool) {
	if c.instrumented == nil {
		return cache.Stats{}, false
	}

	return c.instrumented.TotalStats(), true
}

// EndpointMetrics returns request counters for one "METHOD URL" endpoint.
func (c *Client) EndpointMetrics(endpoint string) (iam.Metrics, bool) {
	return c.metrics.GetMetrics(endpoint)
}

// Close releases the cache backend and the identity map.
func (c *Client) Close() error {
	return c.store.Close()
}

func customDataHref(href string) string {
	if strings.HasSuffix(href, "/"+resource.CustomDataProperty) {
		return href
	}

	return resource.CustomDataHref(href)
}
