package datastore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fivetwenty-io/iam/pkg/cache"
	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/fivetwenty-io/iam/pkg/resource"
)

// Static errors for err113 compliance.
var (
	ErrInvalidCacheKey   = errors.New("cache key and resource kind are required")
	ErrNoRegion          = errors.New("resource kind has no cache region")
	ErrUnknownNestedKind = errors.New("cannot cache nested resource of unknown kind")
	ErrUnexpectedObject  = errors.New("unexpected object for resource kind")
	ErrNotPersisted      = errors.New("resource has not been created yet")
)

const customDataSegment = "/" + resource.CustomDataProperty

// Results of these kinds are one-shot action responses, never durable state.
var uncacheable = map[resource.Kind]bool{
	resource.KindPasswordResetToken:       true,
	resource.KindEmailVerificationToken:   true,
	resource.KindEmailVerificationRequest: true,
	resource.KindAuthenticationResult:     true,
	resource.KindProviderAccountResult:    true,
}

type cacheResolver struct {
	provider cache.Provider
	registry *resource.Registry
	logger   iam.Logger
}

// region returns nil for kinds that are never cached.
func (r *cacheResolver) region(ctx context.Context, descriptor *resource.Descriptor) (cache.Region, error) {
	if descriptor.Region == "" {
		return nil, nil //nolint:nilnil
	}

	region, err := r.provider.Region(ctx, descriptor.Region)
	if err != nil {
		return nil, fmt.Errorf("resolving cache region %q: %w", descriptor.Region, err)
	}

	return region, nil
}

func (r *cacheResolver) customDataRegion(ctx context.Context) (cache.Region, error) {
	descriptor, ok := r.registry.Lookup(resource.KindCustomData)
	if !ok || descriptor.Region == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoRegion, resource.KindCustomData)
	}

	return r.region(ctx, descriptor)
}

// ReadCacheFilter answers plain reads of single resources from the cache.
type ReadCacheFilter struct {
	cacheResolver
}

// NewReadCacheFilter creates a read filter.
func NewReadCacheFilter(provider cache.Provider, registry *resource.Registry, logger iam.Logger) *ReadCacheFilter {
	return &ReadCacheFilter{cacheResolver{provider: provider, registry: registry, logger: iam.LoggerOrNoOp(logger)}}
}

// Filter implements Filter. Cache failures are logged and treated as misses.
func (f *ReadCacheFilter) Filter(ctx context.Context, req *Request, next Handler) (*Result, error) {
	if !f.provider.Enabled() || req.Action != ActionRead || len(req.Query) > 0 {
		return next(ctx, req)
	}

	descriptor, err := f.registry.Resolve(req.Kind, resource.LinkTo(req.URI))
	if err != nil || descriptor.IsCollection() {
		return next(ctx, req)
	}

	region, err := f.region(ctx, descriptor)
	if err != nil {
		f.logger.Warn("Cache unavailable, reading through", map[string]interface{}{"href": req.URI, "error": err})

		return next(ctx, req)
	}

	if region == nil {
		return next(ctx, req)
	}

	body, err := region.Get(ctx, req.URI)
	if err != nil {
		f.logger.Warn("Cache read failed, reading through", map[string]interface{}{"href": req.URI, "error": err})

		return next(ctx, req)
	}

	if body == nil {
		return next(ctx, req)
	}

	f.logger.Debug("Cache hit", map[string]interface{}{"region": region.Name(), "href": req.URI})

	return &Result{Body: body, Kind: descriptor.Kind}, nil
}

// WriteCacheFilter keeps the cache consistent with writes and caches every
// resource body that passes through it, decomposed into canonical references.
type WriteCacheFilter struct {
	cacheResolver
}

// NewWriteCacheFilter creates a write filter.
func NewWriteCacheFilter(provider cache.Provider, registry *resource.Registry, logger iam.Logger) *WriteCacheFilter {
	return &WriteCacheFilter{cacheResolver{provider: provider, registry: registry, logger: iam.LoggerOrNoOp(logger)}}
}

// Filter implements Filter. Pre-flight purges fail loud; post-flight
// backend failures are logged.
func (f *WriteCacheFilter) Filter(ctx context.Context, req *Request, next Handler) (*Result, error) {
	if !f.provider.Enabled() {
		return next(ctx, req)
	}

	if req.Action == ActionDelete {
		var err error

		if isCustomDataProperty(req.URI) {
			f.logger.Debug("Custom data property delete, removing cached key", map[string]interface{}{"href": req.URI})
			err = f.uncacheCustomDataProperty(ctx, req.URI)
		} else {
			f.logger.Debug("Resource delete, purging from cache", map[string]interface{}{"href": req.URI})
			err = f.uncache(ctx, req.Kind, req.URI)
		}

		if err != nil {
			return nil, err
		}
	}

	result, err := next(ctx, req)
	if err != nil {
		return result, err
	}

	if result == nil || result.Body == nil {
		return result, nil
	}

	if result.Kind == resource.KindEmailVerificationToken {
		href := resource.HrefOf(result.Body)
		f.logger.Debug("Email verification response, purging account", map[string]interface{}{"href": href})

		err = f.uncache(ctx, resource.KindAccount, href)
		if err != nil {
			f.logger.Warn("Failed to purge verified account", map[string]interface{}{"href": href, "error": err})
		}
	}

	if (req.Action == ActionCreate || req.Action == ActionUpdate) && f.extendable(req.Kind) {
		err = f.cacheNestedCustomData(ctx, req, result)
		if err != nil {
			return nil, err
		}
	}

	if resource.IsResource(result.Body) && !uncacheable[result.Kind] {
		err = f.cache(ctx, result.Kind, result.Body)

		switch {
		case err == nil:
		case errors.Is(err, cache.ErrBackend), errors.Is(err, cache.ErrProviderClosed):
			f.logger.Warn("Failed to cache response", map[string]interface{}{"href": resource.HrefOf(result.Body), "error": err})
		default:
			return nil, err
		}
	}

	return result, nil
}

func (f *WriteCacheFilter) extendable(kind resource.Kind) bool {
	descriptor, ok := f.registry.Lookup(kind)

	return ok && descriptor.Extendable
}

// cache stores body under its href, replacing nested resources by links after
// caching them on their own.
func (f *WriteCacheFilter) cache(ctx context.Context, kind resource.Kind, body iam.Map) error {
	descriptor, err := f.registry.Resolve(kind, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownNestedKind, err)
	}

	href := resource.HrefOf(body)

	if descriptor.Kind == resource.KindCustomData {
		return f.put(ctx, descriptor, href, body)
	}

	canonical := make(iam.Map, len(body))

	for key, value := range body {
		if key == resource.PasswordProperty {
			continue
		}

		switch resource.Classify(value) {
		case resource.Expanded:
			nestedKind, ok := f.registry.KindForProperty(key)
			if !ok {
				return fmt.Errorf("%w: attribute %q", ErrUnknownNestedKind, key)
			}

			nested, _ := resource.AsMap(value)

			err = f.cache(ctx, nestedKind, nested)
			if err != nil {
				return err
			}

			value = resource.LinkTo(resource.HrefOf(nested))
		case resource.NestedArray:
			if descriptor.Item == "" {
				return fmt.Errorf("%w: array %q on %s", ErrUnknownNestedKind, key, descriptor.Kind)
			}

			value, err = f.cacheItems(ctx, descriptor.Item, value.([]any))
			if err != nil {
				return err
			}
		case resource.Scalar, resource.Link:
		}

		canonical[key] = value
	}

	if descriptor.IsCollection() {
		return nil
	}

	return f.put(ctx, descriptor, href, canonical)
}

func (f *WriteCacheFilter) cacheItems(ctx context.Context, kind resource.Kind, items []any) ([]any, error) {
	links := make([]any, 0, len(items))

	for _, item := range items {
		body, ok := resource.AsMap(item)
		if !ok || !resource.IsResource(body) {
			links = append(links, item)

			continue
		}

		err := f.cache(ctx, kind, body)
		if err != nil {
			return nil, err
		}

		links = append(links, resource.LinkTo(resource.HrefOf(body)))
	}

	return links, nil
}

func (f *WriteCacheFilter) put(ctx context.Context, descriptor *resource.Descriptor, href string, body iam.Map) error {
	region, err := f.region(ctx, descriptor)
	if err != nil || region == nil {
		return err
	}

	_, err = region.Put(ctx, href, body)
	if err != nil {
		return fmt.Errorf("caching %s: %w", href, err)
	}

	return nil
}

// uncache removes href from kind's region.
func (f *WriteCacheFilter) uncache(ctx context.Context, kind resource.Kind, href string) error {
	if kind == "" || href == "" {
		return ErrInvalidCacheKey
	}

	descriptor, err := f.registry.Resolve(kind, resource.LinkTo(href))
	if err != nil {
		return fmt.Errorf("purging %s: %w", href, err)
	}

	if descriptor.Region == "" {
		return fmt.Errorf("%w: %s", ErrNoRegion, descriptor.Kind)
	}

	region, err := f.region(ctx, descriptor)
	if err != nil {
		return err
	}

	_, err = region.Remove(ctx, href)
	if err != nil {
		return fmt.Errorf("purging %s: %w", href, err)
	}

	return nil
}

func isCustomDataProperty(uri string) bool {
	return strings.Contains(uri, customDataSegment+"/")
}

// uncacheCustomDataProperty drops one key from the cached blob, if any.
func (f *WriteCacheFilter) uncacheCustomDataProperty(ctx context.Context, uri string) error {
	index := strings.Index(uri, customDataSegment+"/")
	href := uri[:index+len(customDataSegment)]
	segment, _, _ := strings.Cut(uri[index+len(customDataSegment)+1:], "/")

	name, err := url.PathUnescape(segment)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCacheKey, err)
	}

	if name == "" {
		return ErrInvalidCacheKey
	}

	region, err := f.customDataRegion(ctx)
	if err != nil {
		return err
	}

	cached, err := region.Get(ctx, href)
	if err != nil {
		return fmt.Errorf("reading cached custom data %s: %w", href, err)
	}

	if cached == nil {
		return nil
	}

	delete(cached, name)

	_, err = region.Put(ctx, href, cached)
	if err != nil {
		return fmt.Errorf("updating cached custom data %s: %w", href, err)
	}

	return nil
}

// cacheNestedCustomData merges custom data sent inside a create or update of
// its parent into the cached blob. Updates without a cached blob are
// skipped. When the merge cannot be written the blob is evicted instead.
func (f *WriteCacheFilter) cacheNestedCustomData(ctx context.Context, req *Request, result *Result) error {
	updates, ok := resource.AsMap(req.Properties[resource.CustomDataProperty])
	if !ok || len(updates) == 0 {
		return nil
	}

	creating := req.Action == ActionCreate

	parentHref := req.URI
	if creating {
		parentHref = resource.HrefOf(result.Body)
		if parentHref == "" {
			return nil
		}
	}

	href := resource.CustomDataHref(parentHref)

	region, err := f.customDataRegion(ctx)
	if err != nil {
		return err
	}

	cached, err := region.Get(ctx, href)
	if err != nil {
		return f.evict(ctx, region, href, err)
	}

	if !creating && cached == nil {
		f.logger.Debug("No cached custom data to merge into, skipping", map[string]interface{}{"href": href})

		return nil
	}

	if cached == nil {
		cached = make(iam.Map, len(updates)+1)
	}

	for key, value := range updates {
		cached[key] = value
	}

	cached[resource.HrefProperty] = href

	_, err = region.Put(ctx, href, cached)
	if err != nil {
		return f.evict(ctx, region, href, err)
	}

	return nil
}

func (f *WriteCacheFilter) evict(ctx context.Context, region cache.Region, href string, cause error) error {
	f.logger.Warn("Custom data merge failed, evicting", map[string]interface{}{"href": href, "error": cause})

	_, err := region.Remove(ctx, href)
	if err != nil {
		return fmt.Errorf("evicting stale custom data %s: %w", href, errors.Join(cause, err))
	}

	return nil
}
