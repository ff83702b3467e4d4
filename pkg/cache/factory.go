package cache

import (
	"fmt"
	"time"

	"github.com/fivetwenty-io/iam/pkg/iam"
)

// NewProvider creates a cache provider from configuration.
func NewProvider(config *iam.CacheConfig, opts ...Option) (Provider, error) {
	if config == nil {
		config = iam.DefaultCacheConfig()
	}

	switch config.Type {
	case iam.CacheTypeMemory, "":
		return NewMemoryProvider(config, opts...), nil

	case iam.CacheTypeRedis:
		return NewRedisProvider(config, opts...)

	case iam.CacheTypeNATS:
		return NewNATSProvider(config, opts...)

	case iam.CacheTypeTiered:
		return newTieredProvider(config, opts...)

	case iam.CacheTypeNone:
		return NewNullProvider(), nil

	default:
		return nil, fmt.Errorf("%w: %s", iam.ErrUnsupportedCache, config.Type)
	}
}

func newTieredProvider(config *iam.CacheConfig, opts ...Option) (Provider, error) {
	remoteType := config.Remote
	if remoteType == "" {
		remoteType = iam.CacheTypeRedis
		if config.Redis == nil && config.NATS != nil {
			remoteType = iam.CacheTypeNATS
		}
	}

	var (
		remote Provider
		err    error
	)

	switch remoteType {
	case iam.CacheTypeRedis:
		remote, err = NewRedisProvider(config, opts...)
	case iam.CacheTypeNATS:
		remote, err = NewNATSProvider(config, opts...)
	default:
		return nil, fmt.Errorf("%w: tiered remote %s", iam.ErrUnsupportedCache, remoteType)
	}

	if err != nil {
		return nil, err
	}

	return NewChainProvider(NewMemoryProvider(config, opts...), remote), nil
}

// Builder helps build cache configurations.
type Builder struct {
	config *iam.CacheConfig
	opts   []Option
}

// NewBuilder creates a new cache builder.
func NewBuilder() *Builder {
	return &Builder{config: iam.DefaultCacheConfig()}
}

// WithType sets the cache type.
func (b *Builder) WithType(cacheType iam.CacheType) *Builder {
	b.config.Type = cacheType

	return b
}

// WithDefaults sets the ttl and tti used by regions without their own policy.
func (b *Builder) WithDefaults(ttl, tti time.Duration) *Builder {
	b.config.DefaultTTL = ttl
	b.config.DefaultTTI = tti

	return b
}

// WithRegion sets the policy of one region.
func (b *Builder) WithRegion(name string, ttl, tti time.Duration) *Builder {
	if b.config.Regions == nil {
		b.config.Regions = make(map[string]iam.RegionConfig)
	}

	b.config.Regions[name] = iam.RegionConfig{TTL: ttl, TTI: tti}

	return b
}

// WithMemoryConfig sets memory cache configuration.
func (b *Builder) WithMemoryConfig(maxSize int) *Builder {
	b.config.Memory = &iam.MemoryCacheConfig{MaxSize: maxSize}

	return b
}

// WithRedisConfig sets Redis cache configuration.
func (b *Builder) WithRedisConfig(config *iam.RedisCacheConfig) *Builder {
	b.config.Redis = config

	return b
}

// WithNATSConfig sets NATS cache configuration.
func (b *Builder) WithNATSConfig(config *iam.NATSKVConfig) *Builder {
	b.config.NATS = config

	return b
}

// WithOptions appends provider options.
func (b *Builder) WithOptions(opts ...Option) *Builder {
	b.opts = append(b.opts, opts...)

	return b
}

// Config returns the configuration built so far.
func (b *Builder) Config() *iam.CacheConfig {
	return b.config
}

// Build creates the provider from the configuration.
func (b *Builder) Build() (Provider, error) {
	return NewProvider(b.config, b.opts...)
}
