// Package cache implements the region cache that sits under the data store:
// one named region per resource kind, each with its own time-to-live and
// time-to-idle policy, over a pluggable backend.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fivetwenty-io/iam/pkg/iam"
)

// Static errors for err113 compliance.
var (
	ErrBackend            = errors.New("cache backend failure")
	ErrRegionNameRequired = errors.New("region name is required")
	ErrHrefRequired       = errors.New("href is required")
	ErrProviderClosed     = errors.New("cache provider closed")
	ErrCorruptEntry       = errors.New("corrupt cache entry")
)

// Region is a named cache partition. Get returns a nil map on a miss.
type Region interface {
	Name() string
	TimeToLive() time.Duration
	TimeToIdle() time.Duration
	Get(ctx context.Context, href string) (iam.Map, error)
	Put(ctx context.Context, href string, value iam.Map) (iam.Map, error)
	Remove(ctx context.Context, href string) (iam.Map, error)
}

// stampedRegion is a region that can report and keep an entry's creation
// time, so copying an entry between tiers does not restart its ttl.
type stampedRegion interface {
	getStamped(ctx context.Context, href string) (iam.Map, time.Time, error)
	putStamped(ctx context.Context, href string, value iam.Map, createdAt time.Time) (iam.Map, error)
}

func getStamped(ctx context.Context, region Region, href string) (iam.Map, time.Time, error) {
	if stamped, ok := region.(stampedRegion); ok {
		return stamped.getStamped(ctx, href)
	}

	value, err := region.Get(ctx, href)

	return value, time.Time{}, err
}

// putStamped stores value created at createdAt. A zero createdAt, or a
// region without stamps, stores it as new.
func putStamped(ctx context.Context, region Region, href string, value iam.Map, createdAt time.Time) (iam.Map, error) {
	if stamped, ok := region.(stampedRegion); ok && !createdAt.IsZero() {
		return stamped.putStamped(ctx, href, value, createdAt)
	}

	return region.Put(ctx, href, value)
}

// Provider hands out regions backed by one store.
type Provider interface {
	Region(ctx context.Context, name string) (Region, error)
	Enabled() bool
	Close() error
}

// Entry is the stored form of a cached body.
type Entry struct {
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the entry outlived ttl. A zero ttl never expires.
func (e *Entry) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(e.CreatedAt) > ttl
}

// Key returns the backend key for href in region. Scheme separators are
// replaced so the key stays a plain identifier.
func Key(region, href string) string {
	return region + ":" + SanitizeHref(href)
}

// SanitizeHref replaces "://" with "--".
func SanitizeHref(href string) string {
	return strings.ReplaceAll(href, "://", "--")
}

// Option configures a provider.
type Option func(*options)

type options struct {
	serializer iam.Serializer
	logger     iam.Logger
	now        func() time.Time
}

func newOptions(opts []Option) *options {
	o := &options{
		serializer: iam.NewJSONSerializer(),
		logger:     iam.NoOpLogger{},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// WithSerializer sets the serializer used for entry data.
func WithSerializer(serializer iam.Serializer) Option {
	return func(o *options) {
		if serializer != nil {
			o.serializer = serializer
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger iam.Logger) Option {
	return func(o *options) {
		o.logger = iam.LoggerOrNoOp(logger)
	}
}

// WithClock overrides the time source used for createdAt and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// regionBase carries the policy and codec shared by every backend.
type regionBase struct {
	name string
	ttl  time.Duration
	tti  time.Duration
	opts *options
}

func newRegionBase(name string, policy iam.RegionConfig, opts *options) regionBase {
	return regionBase{name: name, ttl: policy.TTL, tti: policy.TTI, opts: opts}
}

func (r *regionBase) Name() string { return r.name }

func (r *regionBase) TimeToLive() time.Duration { return r.ttl }

func (r *regionBase) TimeToIdle() time.Duration { return r.tti }

func (r *regionBase) key(href string) string {
	return Key(r.name, href)
}

// encode wraps value in an Entry stamped with createdAt, or the current time
// when createdAt is zero.
func (r *regionBase) encode(value iam.Map, createdAt time.Time) ([]byte, error) {
	if createdAt.IsZero() {
		createdAt = r.opts.now()
	}

	data, err := r.opts.serializer.Serialize(value)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(&Entry{Data: data, CreatedAt: createdAt.UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}

	return raw, nil
}

func decodeEntry(raw []byte) (*Entry, error) {
	entry := &Entry{}

	err := json.Unmarshal(raw, entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
	}

	return entry, nil
}

func (r *regionBase) decode(entry *Entry) (iam.Map, error) {
	return r.opts.serializer.Deserialize(entry.Data)
}

func (r *regionBase) expired(entry *Entry) bool {
	return entry.Expired(r.opts.now(), r.ttl)
}

func validate(ctx context.Context, href string) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	if href == "" {
		return ErrHrefRequired
	}

	return nil
}

func backendError(op, region string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrBackend, op, region, err)
}

// BlockingRegion exposes a Region without contexts, for callers with no
// cancellation scope.
type BlockingRegion struct {
	region Region
}

// Blocking adapts region.
func Blocking(region Region) *BlockingRegion {
	return &BlockingRegion{region: region}
}

// Get retrieves href.
func (b *BlockingRegion) Get(href string) (iam.Map, error) {
	return b.region.Get(context.Background(), href)
}

// Put stores value under href.
func (b *BlockingRegion) Put(href string, value iam.Map) (iam.Map, error) {
	return b.region.Put(context.Background(), href, value)
}

// Remove deletes href and returns the prior value.
func (b *BlockingRegion) Remove(href string) (iam.Map, error) {
	return b.region.Remove(context.Background(), href)
}

// Name returns the wrapped region's name.
func (b *BlockingRegion) Name() string {
	return b.region.Name()
}
