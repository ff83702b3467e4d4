package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fivetwenty-io/iam/internal/constants"
	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/redis/go-redis/v9"
)

// RedisProvider stores every region in one Redis database, keys namespaced
// by region name.
type RedisProvider struct {
	client     redis.UniversalClient
	config     *iam.CacheConfig
	opts       *options
	ownsClient bool

	mu      sync.Mutex
	regions map[string]*redisRegion
}

// NewRedisProvider connects to the server described by config.Redis.
func NewRedisProvider(config *iam.CacheConfig, opts ...Option) (*RedisProvider, error) {
	if config == nil || config.Redis == nil {
		return nil, iam.ErrRedisConfigRequired
	}

	addr := config.Redis.Addr
	if addr == "" {
		addr = constants.DefaultRedisAddr
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: config.Redis.Username,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	provider := NewRedisProviderFromClient(client, config, opts...)
	provider.ownsClient = true

	return provider, nil
}

// NewRedisProviderFromClient uses an existing client. Close leaves the client open.
func NewRedisProviderFromClient(client redis.UniversalClient, config *iam.CacheConfig, opts ...Option) *RedisProvider {
	if config == nil {
		config = iam.DefaultCacheConfig()
	}

	return &RedisProvider{
		client:  client,
		config:  config,
		opts:    newOptions(opts),
		regions: make(map[string]*redisRegion),
	}
}

// Region returns the named region.
func (p *RedisProvider) Region(ctx context.Context, name string) (Region, error) {
	if name == "" {
		return nil, ErrRegionNameRequired
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if region, ok := p.regions[name]; ok {
		return region, nil
	}

	region := &redisRegion{
		regionBase: newRegionBase(name, p.config.Policy(name), p.opts),
		client:     p.client,
	}
	p.regions[name] = region

	return region, nil
}

// Enabled returns true.
func (p *RedisProvider) Enabled() bool { return true }

// Close closes the client when the provider created it.
func (p *RedisProvider) Close() error {
	if !p.ownsClient {
		return nil
	}

	return p.client.Close()
}

type redisRegion struct {
	regionBase

	client redis.UniversalClient
}

// Get reads the entry and refreshes its idle expiry in one MULTI/EXEC.
func (r *redisRegion) Get(ctx context.Context, href string) (iam.Map, error) {
	value, _, err := r.getStamped(ctx, href)

	return value, err
}

func (r *redisRegion) getStamped(ctx context.Context, href string) (iam.Map, time.Time, error) {
	err := validate(ctx, href)
	if err != nil {
		return nil, time.Time{}, err
	}

	key := r.key(href)

	var get *redis.StringCmd

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)

		if r.tti > 0 {
			pipe.Expire(ctx, key, r.tti)
		}

		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, nil
	}

	if err != nil {
		return nil, time.Time{}, backendError("get", r.name, err)
	}

	entry, err := decodeEntry([]byte(get.Val()))
	if err != nil {
		return nil, time.Time{}, err
	}

	if r.expired(entry) {
		err = r.client.Del(ctx, key).Err()
		if err != nil {
			return nil, time.Time{}, backendError("expire", r.name, err)
		}

		return nil, time.Time{}, nil
	}

	value, err := r.decode(entry)

	return value, entry.CreatedAt, err
}

// Put stores the entry; the key's expiry is the region's idle timeout.
func (r *redisRegion) Put(ctx context.Context, href string, value iam.Map) (iam.Map, error) {
	return r.putStamped(ctx, href, value, time.Time{})
}

func (r *redisRegion) putStamped(ctx context.Context, href string, value iam.Map, createdAt time.Time) (iam.Map, error) {
	err := validate(ctx, href)
	if err != nil {
		return nil, err
	}

	raw, err := r.encode(value, createdAt)
	if err != nil {
		return nil, err
	}

	err = r.client.Set(ctx, r.key(href), raw, r.tti).Err()
	if err != nil {
		return nil, backendError("put", r.name, err)
	}

	return value, nil
}

// Remove reads and deletes the key in one MULTI/EXEC.
func (r *redisRegion) Remove(ctx context.Context, href string) (iam.Map, error) {
	err := validate(ctx, href)
	if err != nil {
		return nil, err
	}

	key := r.key(href)

	var get *redis.StringCmd

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pipe.Del(ctx, key)

		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, backendError("remove", r.name, err)
	}

	entry, err := decodeEntry([]byte(get.Val()))
	if err != nil {
		return nil, err
	}

	return r.decode(entry)
}
