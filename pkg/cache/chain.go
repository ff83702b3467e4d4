package cache

import (
	"context"
	"errors"
	"time"

	"github.com/fivetwenty-io/iam/pkg/iam"
)

// Chain implements a chain of regions (L1, L2, etc.) sharing one name.
type Chain struct {
	tiers []Region
}

// NewChain creates a new region chain. The first tier is consulted first.
func NewChain(tiers ...Region) *Chain {
	return &Chain{tiers: tiers}
}

// Name returns the first tier's name.
func (c *Chain) Name() string {
	if len(c.tiers) == 0 {
		return ""
	}

	return c.tiers[0].Name()
}

// TimeToLive returns the first tier's ttl.
func (c *Chain) TimeToLive() time.Duration {
	if len(c.tiers) == 0 {
		return 0
	}

	return c.tiers[0].TimeToLive()
}

// TimeToIdle returns the first tier's tti.
func (c *Chain) TimeToIdle() time.Duration {
	if len(c.tiers) == 0 {
		return 0
	}

	return c.tiers[0].TimeToIdle()
}

// Get retrieves an item from the chain and back-fills the tiers that missed.
// Tier errors are only reported when no tier produced a hit.
func (c *Chain) Get(ctx context.Context, href string) (iam.Map, error) {
	value, _, err := c.getStamped(ctx, href)

	return value, err
}

// getStamped back-fills with the hit's creation time so earlier tiers expire
// the copy when the original expires.
func (c *Chain) getStamped(ctx context.Context, href string) (iam.Map, time.Time, error) {
	var errs []error

	for i, tier := range c.tiers {
		value, createdAt, err := getStamped(ctx, tier, href)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		if value == nil {
			continue
		}

		for j := range i {
			_, _ = putStamped(ctx, c.tiers[j], href, value, createdAt)
		}

		return value, createdAt, nil
	}

	return nil, time.Time{}, errors.Join(errs...)
}

func (c *Chain) putStamped(ctx context.Context, href string, value iam.Map, createdAt time.Time) (iam.Map, error) {
	var lastErr error

	for _, tier := range c.tiers {
		_, err := putStamped(ctx, tier, href, value, createdAt)
		if err != nil {
			lastErr = err
		}
	}

	return value, lastErr
}

// Put stores an item in all tiers.
func (c *Chain) Put(ctx context.Context, href string, value iam.Map) (iam.Map, error) {
	return c.putStamped(ctx, href, value, time.Time{})
}

// Remove deletes an item from all tiers, returning the first prior value found.
func (c *Chain) Remove(ctx context.Context, href string) (iam.Map, error) {
	var (
		prior   iam.Map
		lastErr error
	)

	for _, tier := range c.tiers {
		value, err := tier.Remove(ctx, href)
		if err != nil {
			lastErr = err

			continue
		}

		if prior == nil {
			prior = value
		}
	}

	return prior, lastErr
}

// ChainProvider builds chained regions from several providers.
type ChainProvider struct {
	providers []Provider
}

// NewChainProvider creates a provider whose regions consult providers in order.
func NewChainProvider(providers ...Provider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

// Region returns a Chain over each provider's region of the same name.
func (p *ChainProvider) Region(ctx context.Context, name string) (Region, error) {
	tiers := make([]Region, 0, len(p.providers))

	for _, provider := range p.providers {
		region, err := provider.Region(ctx, name)
		if err != nil {
			return nil, err
		}

		tiers = append(tiers, region)
	}

	return NewChain(tiers...), nil
}

// Enabled reports whether any tier caches.
func (p *ChainProvider) Enabled() bool {
	for _, provider := range p.providers {
		if provider.Enabled() {
			return true
		}
	}

	return false
}

// Close closes every tier.
func (p *ChainProvider) Close() error {
	var errs []error

	for _, provider := range p.providers {
		errs = append(errs, provider.Close())
	}

	return errors.Join(errs...)
}
