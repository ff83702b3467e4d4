package cache

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fivetwenty-io/iam/internal/constants"
	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSProvider keeps each region in its own JetStream key-value bucket.
// The bucket TTL enforces idle expiry; reads re-write the value to restart it.
type NATSProvider struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	config   *iam.CacheConfig
	prefix   string
	replicas int
	opts     *options
	ownsConn bool

	mu      sync.Mutex
	regions map[string]*natsRegion
}

// NewNATSProvider connects to config.NATS.URL.
func NewNATSProvider(config *iam.CacheConfig, opts ...Option) (*NATSProvider, error) {
	if config == nil || config.NATS == nil {
		return nil, iam.ErrNATSConfigRequired
	}

	url := config.NATS.URL
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url, nats.Name("iam-cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	provider, err := NewNATSProviderFromConn(conn, config, opts...)
	if err != nil {
		conn.Close()

		return nil, err
	}

	provider.ownsConn = true

	return provider, nil
}

// NewNATSProviderFromConn uses an existing connection. Close leaves it open.
func NewNATSProviderFromConn(conn *nats.Conn, config *iam.CacheConfig, opts ...Option) (*NATSProvider, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if config == nil {
		config = iam.DefaultCacheConfig()
	}

	prefix := constants.DefaultNATSBucketPrefix
	replicas := 1

	if config.NATS != nil {
		if config.NATS.BucketPrefix != "" {
			prefix = config.NATS.BucketPrefix
		}

		if config.NATS.Replicas > 0 {
			replicas = config.NATS.Replicas
		}
	}

	return &NATSProvider{
		conn:     conn,
		js:       js,
		config:   config,
		prefix:   prefix,
		replicas: replicas,
		opts:     newOptions(opts),
		regions:  make(map[string]*natsRegion),
	}, nil
}

// Region returns the named region, creating its bucket if needed.
func (p *NATSProvider) Region(ctx context.Context, name string) (Region, error) {
	if name == "" {
		return nil, ErrRegionNameRequired
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if region, ok := p.regions[name]; ok {
		return region, nil
	}

	policy := p.config.Policy(name)

	bucketTTL := policy.TTI
	if bucketTTL == 0 {
		bucketTTL = policy.TTL
	}

	kv, err := p.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   BucketName(p.prefix, name),
		History:  1,
		TTL:      bucketTTL,
		Replicas: p.replicas,
	})
	if err != nil {
		return nil, backendError("create bucket", name, err)
	}

	region := &natsRegion{
		regionBase: newRegionBase(name, policy, p.opts),
		kv:         kv,
	}
	p.regions[name] = region

	return region, nil
}

// Enabled returns true.
func (p *NATSProvider) Enabled() bool { return true }

// Close drains the connection when the provider created it.
func (p *NATSProvider) Close() error {
	if !p.ownsConn {
		return nil
	}

	return p.conn.Drain()
}

// BucketName builds a bucket name; characters outside [A-Za-z0-9_-] become '_'.
func BucketName(prefix, region string) string {
	return sanitize(prefix+"_"+region, func(r rune) bool { return r == '_' || r == '-' })
}

// NATSKey maps an href onto the key alphabet JetStream accepts. The
// encoding is reversible, so distinct hrefs never share a key.
func NATSKey(href string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(href))
}

func sanitize(value string, allowed func(rune) bool) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', allowed(r):
			return r
		default:
			return '_'
		}
	}, value)
}

type natsRegion struct {
	regionBase

	kv jetstream.KeyValue
}

func (r *natsRegion) Get(ctx context.Context, href string) (iam.Map, error) {
	value, _, err := r.getStamped(ctx, href)

	return value, err
}

func (r *natsRegion) getStamped(ctx context.Context, href string) (iam.Map, time.Time, error) {
	err := validate(ctx, href)
	if err != nil {
		return nil, time.Time{}, err
	}

	key := NATSKey(href)

	stored, err := r.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, time.Time{}, nil
	}

	if err != nil {
		return nil, time.Time{}, backendError("get", r.name, err)
	}

	entry, err := decodeEntry(stored.Value())
	if err != nil {
		return nil, time.Time{}, err
	}

	if r.expired(entry) {
		err = r.kv.Delete(ctx, key)
		if err != nil {
			return nil, time.Time{}, backendError("expire", r.name, err)
		}

		return nil, time.Time{}, nil
	}

	if r.tti > 0 {
		// A concurrent writer wins; its own write restarted the bucket TTL.
		_, err = r.kv.Update(ctx, key, stored.Value(), stored.Revision())
		if err != nil {
			r.opts.logger.Debug("Skipped idle refresh", map[string]interface{}{
				"region": r.name,
				"key":    key,
				"error":  err.Error(),
			})
		}
	}

	value, err := r.decode(entry)

	return value, entry.CreatedAt, err
}

func (r *natsRegion) Put(ctx context.Context, href string, value iam.Map) (iam.Map, error) {
	return r.putStamped(ctx, href, value, time.Time{})
}

func (r *natsRegion) putStamped(ctx context.Context, href string, value iam.Map, createdAt time.Time) (iam.Map, error) {
	err := validate(ctx, href)
	if err != nil {
		return nil, err
	}

	raw, err := r.encode(value, createdAt)
	if err != nil {
		return nil, err
	}

	_, err = r.kv.Put(ctx, NATSKey(href), raw)
	if err != nil {
		return nil, backendError("put", r.name, err)
	}

	return value, nil
}

// Remove deletes the key whatever its revision; idle refreshes by readers
// bump the revision and must not block a purge.
func (r *natsRegion) Remove(ctx context.Context, href string) (iam.Map, error) {
	err := validate(ctx, href)
	if err != nil {
		return nil, err
	}

	key := NATSKey(href)

	stored, err := r.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, backendError("remove", r.name, err)
	}

	err = r.kv.Delete(ctx, key)
	if err != nil {
		return nil, backendError("remove", r.name, err)
	}

	entry, err := decodeEntry(stored.Value())
	if err != nil {
		return nil, err
	}

	return r.decode(entry)
}
