package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/prometheus/client_golang/prometheus"
)

// Operation outcomes recorded per region.
const (
	resultHit    = "hit"
	resultMiss   = "miss"
	resultPut    = "put"
	resultRemove = "remove"
	resultError  = "error"
)

// Stats counts region operations.
type Stats struct {
	Hits    int64
	Misses  int64
	Puts    int64
	Removes int64
	Errors  int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// InstrumentedProvider wraps a provider and counts every region operation,
// optionally exporting the counts to prometheus.
type InstrumentedProvider struct {
	Provider

	operations *prometheus.CounterVec

	mu      sync.Mutex
	regions map[string]*instrumentedRegion
}

// Instrument wraps provider. A nil registerer keeps the counts in-process only.
func Instrument(provider Provider, registerer prometheus.Registerer) (*InstrumentedProvider, error) {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "iam",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Region cache operations by region and result.",
	}, []string{"region", "result"})

	if registerer != nil {
		err := registerer.Register(operations)
		if err != nil {
			already := prometheus.AlreadyRegisteredError{}
			if !errors.As(err, &already) {
				return nil, err
			}

			existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				return nil, err
			}

			operations = existing
		}
	}

	return &InstrumentedProvider{
		Provider:   provider,
		operations: operations,
		regions:    make(map[string]*instrumentedRegion),
	}, nil
}

// Region returns the wrapped provider's region with counting added.
func (p *InstrumentedProvider) Region(ctx context.Context, name string) (Region, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if region, ok := p.regions[name]; ok {
		return region, nil
	}

	inner, err := p.Provider.Region(ctx, name)
	if err != nil {
		return nil, err
	}

	region := &instrumentedRegion{Region: inner, operations: p.operations}
	p.regions[name] = region

	return region, nil
}

// Stats returns the counts for one region.
func (p *InstrumentedProvider) Stats(name string) Stats {
	p.mu.Lock()
	region, ok := p.regions[name]
	p.mu.Unlock()

	if !ok {
		return Stats{}
	}

	return region.stats()
}

// TotalStats sums the counts over every region.
func (p *InstrumentedProvider) TotalStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var total Stats

	for _, region := range p.regions {
		s := region.stats()
		total.Hits += s.Hits
		total.Misses += s.Misses
		total.Puts += s.Puts
		total.Removes += s.Removes
		total.Errors += s.Errors
	}

	return total
}

type instrumentedRegion struct {
	Region

	operations *prometheus.CounterVec

	hits, misses, puts, removes, errs atomic.Int64
}

func (r *instrumentedRegion) record(result string, counter *atomic.Int64) {
	counter.Add(1)
	r.operations.WithLabelValues(r.Name(), result).Inc()
}

func (r *instrumentedRegion) Get(ctx context.Context, href string) (iam.Map, error) {
	value, _, err := r.getStamped(ctx, href)

	return value, err
}

func (r *instrumentedRegion) getStamped(ctx context.Context, href string) (iam.Map, time.Time, error) {
	value, createdAt, err := getStamped(ctx, r.Region, href)

	switch {
	case err != nil:
		r.record(resultError, &r.errs)
	case value == nil:
		r.record(resultMiss, &r.misses)
	default:
		r.record(resultHit, &r.hits)
	}

	return value, createdAt, err
}

func (r *instrumentedRegion) Put(ctx context.Context, href string, value iam.Map) (iam.Map, error) {
	return r.putStamped(ctx, href, value, time.Time{})
}

func (r *instrumentedRegion) putStamped(ctx context.Context, href string, value iam.Map, createdAt time.Time) (iam.Map, error) {
	stored, err := putStamped(ctx, r.Region, href, value, createdAt)
	if err != nil {
		r.record(resultError, &r.errs)
	} else {
		r.record(resultPut, &r.puts)
	}

	return stored, err
}

func (r *instrumentedRegion) Remove(ctx context.Context, href string) (iam.Map, error) {
	prior, err := r.Region.Remove(ctx, href)
	if err != nil {
		r.record(resultError, &r.errs)
	} else {
		r.record(resultRemove, &r.removes)
	}

	return prior, err
}

func (r *instrumentedRegion) stats() Stats {
	return Stats{
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
		Puts:    r.puts.Load(),
		Removes: r.removes.Load(),
		Errors:  r.errs.Load(),
	}
}

var (
	_ Region        = (*instrumentedRegion)(nil)
	_ stampedRegion = (*instrumentedRegion)(nil)
	_ stampedRegion = (*Chain)(nil)
	_ stampedRegion = (*memoryRegion)(nil)
	_ stampedRegion = (*redisRegion)(nil)
	_ stampedRegion = (*natsRegion)(nil)
)
