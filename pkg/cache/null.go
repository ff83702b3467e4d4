package cache

import (
	"context"
	"time"

	"github.com/fivetwenty-io/iam/pkg/iam"
)

// NullProvider disables caching. Its regions store nothing and always miss.
type NullProvider struct{}

// NewNullProvider creates a disabled provider.
func NewNullProvider() *NullProvider {
	return &NullProvider{}
}

// Region returns a region that does nothing.
func (p *NullProvider) Region(ctx context.Context, name string) (Region, error) {
	return &nullRegion{name: name}, nil
}

// Enabled returns false.
func (p *NullProvider) Enabled() bool { return false }

// Close does nothing.
func (p *NullProvider) Close() error { return nil }

type nullRegion struct {
	name string
}

func (r *nullRegion) Name() string { return r.name }

func (r *nullRegion) TimeToLive() time.Duration { return 0 }

func (r *nullRegion) TimeToIdle() time.Duration { return 0 }

func (r *nullRegion) Get(context.Context, string) (iam.Map, error) { return nil, nil }

func (r *nullRegion) Put(context.Context, string, iam.Map) (iam.Map, error) { return nil, nil }

func (r *nullRegion) Remove(context.Context, string) (iam.Map, error) { return nil, nil }
