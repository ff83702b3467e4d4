package iam

import (
	"time"

	"github.com/fivetwenty-io/iam/internal/constants"
	"github.com/prometheus/client_golang/prometheus"
)

// Config represents client configuration for building an iamclient.Client.
//
// # Credentials
//
// Requests are signed with the API key pair (APIKeyID, APIKeySecret) using
// HTTP Basic authentication. Both values are required.
//
// # Timeouts and retries
//
// Per-request deadlines should be controlled via the context passed to client
// methods. Timeout bounds a single HTTP attempt; RetryMax/RetryWaitMin/
// RetryWaitMax tune the retry policy for 429 and 5xx responses.
//
// # Caching
//
// Cache selects the region cache backend. A nil Cache uses DefaultCacheConfig
// (in-memory). Set Cache.Type to CacheTypeNone to disable caching entirely;
// the identity map stays active regardless.
type Config struct {
	// BaseURL: API root, e.g. "https://api.stormpath.com/v1". iamclient.New
	// trims a trailing slash and adds "https://" if no scheme is present.
	BaseURL string

	// APIKeyID and APIKeySecret identify the caller.
	APIKeyID     string
	APIKeySecret string

	// Timeout for a single HTTP attempt.
	Timeout time.Duration
	// RetryMax: maximum retries after the first attempt.
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the backoff between attempts.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit float64
	// RateBurst is the limiter burst size; defaults to 1.
	RateBurst int

	// Debug: enables verbose HTTP request/response logging when a Logger is provided.
	Debug bool
	// Logger: optional structured logger used by every layer.
	Logger Logger
	// UserAgent: overrides the default User-Agent header.
	UserAgent string

	// Cache configures the region cache.
	Cache *CacheConfig

	// IdentityMapExpiration is the sliding lifetime of unpinned identity-map entries.
	IdentityMapExpiration time.Duration
	// IdentityMapSize bounds the number of unpinned identity-map entries.
	// Zero means unbounded. With a bound, evicting a record that callers still
	// hold lets the next read of that id build a second, separate record.
	IdentityMapSize int

	// Serializer encodes cache entries. Defaults to JSONSerializer.
	Serializer Serializer

	// MetricsRegisterer, when set, receives the cache's prometheus collectors.
	MetricsRegisterer prometheus.Registerer
}

// DefaultConfig returns a configuration with every optional field populated.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:               constants.DefaultBaseURL,
		Timeout:               constants.DefaultHTTPTimeout,
		RetryMax:              constants.DefaultRetryMax,
		RetryWaitMin:          constants.DefaultRetryWaitMin,
		RetryWaitMax:          constants.DefaultRetryWaitMax,
		UserAgent:             constants.DefaultUserAgent,
		Cache:                 DefaultCacheConfig(),
		IdentityMapExpiration: constants.DefaultIdentityMapExpiration,
		IdentityMapSize:       constants.DefaultIdentityMapSize,
	}
}

// ApplyDefaults fills zero-valued optional fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.BaseURL == "" {
		c.BaseURL = defaults.BaseURL
	}

	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}

	if c.RetryMax == 0 {
		c.RetryMax = defaults.RetryMax
	}

	if c.RetryWaitMin == 0 {
		c.RetryWaitMin = defaults.RetryWaitMin
	}

	if c.RetryWaitMax == 0 {
		c.RetryWaitMax = defaults.RetryWaitMax
	}

	if c.UserAgent == "" {
		c.UserAgent = defaults.UserAgent
	}

	if c.Cache == nil {
		c.Cache = defaults.Cache
	}

	if c.IdentityMapExpiration == 0 {
		c.IdentityMapExpiration = defaults.IdentityMapExpiration
	}

	if c.Serializer == nil {
		c.Serializer = NewJSONSerializer()
	}

	c.Logger = LoggerOrNoOp(c.Logger)
}

// CacheType represents the type of cache backend.
type CacheType string

const (
	// CacheTypeMemory represents in-memory cache.
	CacheTypeMemory CacheType = "memory"

	// CacheTypeRedis represents a Redis-backed cache.
	CacheTypeRedis CacheType = "redis"

	// CacheTypeNATS represents NATS KV cache.
	CacheTypeNATS CacheType = "nats"

	// CacheTypeTiered puts a memory cache in front of Redis or NATS.
	CacheTypeTiered CacheType = "tiered"

	// CacheTypeNone represents no caching.
	CacheTypeNone CacheType = "none"
)

// CacheConfig configures cache backend.
type CacheConfig struct {
	// Type is the cache backend type
	Type CacheType

	// DefaultTTL and DefaultTTI apply to regions without an explicit policy.
	// Zero disables the corresponding expiration.
	DefaultTTL time.Duration
	DefaultTTI time.Duration

	// Regions overrides the policy for individual regions, keyed by region name.
	Regions map[string]RegionConfig

	// Memory cache configuration
	Memory *MemoryCacheConfig

	// Redis cache configuration
	Redis *RedisCacheConfig

	// NATS KV cache configuration
	NATS *NATSKVConfig

	// Remote selects the second tier for CacheTypeTiered (redis or nats).
	Remote CacheType
}

// RegionConfig is the expiration policy of one region.
type RegionConfig struct {
	TTL time.Duration
	TTI time.Duration
}

// MemoryCacheConfig configures memory cache.
type MemoryCacheConfig struct {
	// MaxSize is the maximum number of items per region
	MaxSize int
}

// RedisCacheConfig configures the Redis backend.
type RedisCacheConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// NATSKVConfig configures the JetStream key-value backend.
type NATSKVConfig struct {
	// URL of the NATS server, e.g. "nats://127.0.0.1:4222".
	URL string
	// BucketPrefix namespaces the per-region buckets.
	BucketPrefix string
	// Replicas for each bucket; defaults to 1.
	Replicas int
}

// DefaultCacheConfig returns default cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Type:       CacheTypeMemory,
		DefaultTTL: constants.DefaultTimeToLive,
		DefaultTTI: constants.DefaultTimeToIdle,
		Memory: &MemoryCacheConfig{
			MaxSize: constants.DefaultCacheSize,
		},
	}
}

// Policy returns the expiration policy for a region.
func (c *CacheConfig) Policy(region string) RegionConfig {
	if policy, ok := c.Regions[region]; ok {
		return policy
	}

	return RegionConfig{TTL: c.DefaultTTL, TTI: c.DefaultTTI}
}
