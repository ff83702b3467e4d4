package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fivetwenty-io/iam/internal/constants"
	"github.com/fivetwenty-io/iam/pkg/iam"
	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryProvider keeps each region in a bounded LRU inside the process.
type MemoryProvider struct {
	config  *iam.CacheConfig
	maxSize int
	opts    *options

	mu      sync.Mutex
	regions map[string]*memoryRegion
	closed  bool
}

// NewMemoryProvider creates a memory provider. A nil config uses DefaultCacheConfig.
func NewMemoryProvider(config *iam.CacheConfig, opts ...Option) *MemoryProvider {
	if config == nil {
		config = iam.DefaultCacheConfig()
	}

	maxSize := constants.DefaultCacheSize
	if config.Memory != nil && config.Memory.MaxSize > 0 {
		maxSize = config.Memory.MaxSize
	}

	return &MemoryProvider{
		config:  config,
		maxSize: maxSize,
		opts:    newOptions(opts),
		regions: make(map[string]*memoryRegion),
	}
}

// Region returns the named region, creating it on first use.
func (p *MemoryProvider) Region(ctx context.Context, name string) (Region, error) {
	if name == "" {
		return nil, ErrRegionNameRequired
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProviderClosed
	}

	if region, ok := p.regions[name]; ok {
		return region, nil
	}

	items, err := lru.New[string, *memoryItem](p.maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory region %s: %w", name, err)
	}

	region := &memoryRegion{
		regionBase: newRegionBase(name, p.config.Policy(name), p.opts),
		items:      items,
	}
	p.regions[name] = region

	return region, nil
}

// Enabled returns true.
func (p *MemoryProvider) Enabled() bool { return true }

// Close drops every region.
func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, region := range p.regions {
		region.items.Purge()
	}

	p.regions = make(map[string]*memoryRegion)
	p.closed = true

	return nil
}

type memoryItem struct {
	raw        []byte
	lastAccess time.Time
}

type memoryRegion struct {
	regionBase

	// mu makes get+touch and get+delete atomic; the LRU itself only guards single calls.
	mu    sync.Mutex
	items *lru.Cache[string, *memoryItem]
}

func (r *memoryRegion) Get(ctx context.Context, href string) (iam.Map, error) {
	value, _, err := r.getStamped(ctx, href)

	return value, err
}

func (r *memoryRegion) getStamped(ctx context.Context, href string) (iam.Map, time.Time, error) {
	err := validate(ctx, href)
	if err != nil {
		return nil, time.Time{}, err
	}

	key := r.key(href)

	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items.Get(key)
	if !ok {
		return nil, time.Time{}, nil
	}

	now := r.opts.now()
	if r.tti > 0 && now.Sub(item.lastAccess) > r.tti {
		r.items.Remove(key)

		return nil, time.Time{}, nil
	}

	entry, err := decodeEntry(item.raw)
	if err != nil {
		r.items.Remove(key)

		return nil, time.Time{}, err
	}

	if r.expired(entry) {
		r.items.Remove(key)

		return nil, time.Time{}, nil
	}

	item.lastAccess = now

	value, err := r.decode(entry)

	return value, entry.CreatedAt, err
}

func (r *memoryRegion) Put(ctx context.Context, href string, value iam.Map) (iam.Map, error) {
	return r.putStamped(ctx, href, value, time.Time{})
}

func (r *memoryRegion) putStamped(ctx context.Context, href string, value iam.Map, createdAt time.Time) (iam.Map, error) {
	err := validate(ctx, href)
	if err != nil {
		return nil, err
	}

	raw, err := r.encode(value, createdAt)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.items.Add(r.key(href), &memoryItem{raw: raw, lastAccess: r.opts.now()})
	r.mu.Unlock()

	return value, nil
}

func (r *memoryRegion) Remove(ctx context.Context, href string) (iam.Map, error) {
	err := validate(ctx, href)
	if err != nil {
		return nil, err
	}

	key := r.key(href)

	r.mu.Lock()
	item, ok := r.items.Peek(key)
	r.items.Remove(key)
	r.mu.Unlock()

	if !ok {
		return nil, nil
	}

	entry, err := decodeEntry(item.raw)
	if err != nil {
		return nil, err
	}

	return r.decode(entry)
}
