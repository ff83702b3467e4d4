package datastore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strings"

	iamhttp "github.com/fivetwenty-io/iam/internal/http"
	"github.com/fivetwenty-io/iam/pkg/cache"
	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/fivetwenty-io/iam/pkg/resource"
	"golang.org/x/sync/singleflight"
)

// DataStore is the single entry point for resource I/O. Reads of one href
// issued concurrently share a single round trip; a caller that gives up
// does not fail the others.
type DataStore struct {
	client     *iamhttp.Client
	provider   cache.Provider
	registry   *resource.Registry
	factory    *resource.Factory
	serializer iam.Serializer
	logger     iam.Logger
	handler    Handler
	reads      singleflight.Group
}

// Option configures a DataStore.
type Option func(*DataStore)

// WithRegistry replaces the default kind registry.
func WithRegistry(registry *resource.Registry) Option {
	return func(s *DataStore) {
		s.registry = registry
	}
}

// WithSerializer sets the body decoder.
func WithSerializer(serializer iam.Serializer) Option {
	return func(s *DataStore) {
		s.serializer = serializer
	}
}

// WithLogger sets the logger.
func WithLogger(logger iam.Logger) Option {
	return func(s *DataStore) {
		s.logger = iam.LoggerOrNoOp(logger)
	}
}

// New creates a data store. A nil provider disables caching.
func New(client *iamhttp.Client, provider cache.Provider, identity resource.IdentityMap, opts ...Option) *DataStore {
	store := &DataStore{
		client:     client,
		provider:   provider,
		registry:   resource.DefaultRegistry(),
		serializer: iam.NewJSONSerializer(),
		logger:     iam.NoOpLogger{},
	}

	for _, opt := range opts {
		opt(store)
	}

	if store.provider == nil {
		store.provider = cache.NewNullProvider()
	}

	store.factory = resource.NewFactory(store, identity, store.registry)
	store.handler = Chain(store.execute,
		NewReadCacheFilter(store.provider, store.registry, store.logger),
		NewWriteCacheFilter(store.provider, store.registry, store.logger),
	)

	return store
}

// Factory returns the resource factory.
func (s *DataStore) Factory() *resource.Factory {
	return s.factory
}

// Provider returns the cache provider.
func (s *DataStore) Provider() cache.Provider {
	return s.provider
}

// Href resolves a path relative to the API root.
func (s *DataStore) Href(path string) string {
	return s.client.Resolve(path)
}

// Execute runs req through the filter chain.
func (s *DataStore) Execute(ctx context.Context, req *Request) (*Result, error) {
	req.URI = s.client.Resolve(req.URI)

	return s.handler(ctx, req)
}

// GetResource reads and materializes a single resource.
func (s *DataStore) GetResource(ctx context.Context, kind resource.Kind, href string) (resource.Resource, error) {
	return s.getResource(ctx, kind, href, nil)
}

// Fetch implements resource.Store.
func (s *DataStore) Fetch(ctx context.Context, kind resource.Kind, href string, parent resource.Linkable) (resource.Object, error) {
	return s.getResource(ctx, kind, href, parent)
}

func (s *DataStore) getResource(ctx context.Context, kind resource.Kind, href string, parent resource.Linkable) (resource.Resource, error) {
	href = s.client.Resolve(href)

	// The shared read runs detached from any one caller's cancellation; each
	// caller stops waiting when its own ctx ends.
	flight := s.reads.DoChan(string(kind)+" "+href, func() (interface{}, error) {
		return s.handler(context.WithoutCancel(ctx), &Request{Action: ActionRead, Kind: kind, URI: href})
	})

	var shared singleflight.Result

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("reading %s: %w", href, ctx.Err())
	case shared = <-flight:
	}

	if shared.Err != nil {
		return nil, shared.Err
	}

	result, _ := shared.Val.(*Result)
	if result == nil || result.Body == nil {
		return nil, fmt.Errorf("%w: empty body for %s", ErrUnexpectedObject, href)
	}

	obj, err := s.factory.Create(result.Kind, result.Body, parent)
	if err != nil {
		return nil, err
	}

	return asResource(obj)
}

// GetCollection reads one page of a collection.
func (s *DataStore) GetCollection(ctx context.Context, kind resource.Kind, href string, query url.Values) (*resource.Page, error) {
	result, err := s.Execute(ctx, &Request{Action: ActionRead, Kind: kind, URI: href, Query: query})
	if err != nil {
		return nil, err
	}

	if result == nil || result.Body == nil {
		return nil, fmt.Errorf("%w: empty collection body for %s", ErrUnexpectedObject, href)
	}

	obj, err := s.factory.Create(kind, result.Body, nil)
	if err != nil {
		return nil, err
	}

	page, ok := obj.(*resource.Page)
	if !ok {
		return nil, fmt.Errorf("%w: %s produced %T", ErrUnexpectedObject, kind, obj)
	}

	return page, nil
}

// Instantiate creates a new, unsaved resource.
func (s *DataStore) Instantiate(kind resource.Kind) (resource.Resource, error) {
	return s.factory.Instantiate(kind)
}

// Create posts res to the collection at parentHref and returns the persisted
// resource. res itself is updated with the response.
func (s *DataStore) Create(ctx context.Context, parentHref string, res resource.Resource, query url.Values) (resource.Resource, error) {
	props := res.Data().Snapshot()
	if res.Data().IsNew() {
		delete(props, resource.HrefProperty)
	}

	result, err := s.Execute(ctx, &Request{
		Action:     ActionCreate,
		Kind:       res.Kind(),
		URI:        parentHref,
		Properties: props,
		Query:      query,
	})
	if err != nil {
		return nil, err
	}

	if result == nil || result.Body == nil {
		return nil, fmt.Errorf("%w: empty create response for %s", ErrUnexpectedObject, res.Kind())
	}

	res.Data().Update(result.Body)
	res.Data().ClearDirty()

	obj, err := s.factory.Create(result.Kind, result.Body, nil)
	if err != nil {
		return nil, err
	}

	return asResource(obj)
}

// Save posts pending changes of a persisted resource.
func (s *DataStore) Save(ctx context.Context, res resource.Resource) error {
	data := res.Data()
	if data.IsNew() {
		return fmt.Errorf("%w: %s", ErrNotPersisted, res.Kind())
	}

	changes := data.Dirty()
	if len(changes) == 0 {
		return nil
	}

	result, err := s.Execute(ctx, &Request{
		Action:     ActionUpdate,
		Kind:       res.Kind(),
		URI:        res.Href(),
		Properties: changes,
	})
	if err != nil {
		return err
	}

	data.ClearDirty()
	data.Remove(resource.PasswordProperty)

	if result != nil && result.Body != nil {
		data.Update(result.Body)
	}

	return nil
}

// Delete removes a resource remotely and from the cache.
func (s *DataStore) Delete(ctx context.Context, res resource.Resource) error {
	if res.Data().IsNew() {
		return fmt.Errorf("%w: %s", ErrNotPersisted, res.Kind())
	}

	_, err := s.Execute(ctx, &Request{Action: ActionDelete, Kind: res.Kind(), URI: res.Href()})

	return err
}

// DeleteProperty removes one custom data key.
func (s *DataStore) DeleteProperty(ctx context.Context, href, name string) error {
	if !strings.HasSuffix(href, customDataSegment) {
		href = resource.CustomDataHref(href)
	}

	_, err := s.Execute(ctx, &Request{
		Action: ActionDelete,
		Kind:   resource.KindCustomData,
		URI:    href + "/" + url.PathEscape(name),
	})

	return err
}

// Close disposes the identity map and the cache provider.
func (s *DataStore) Close() error {
	return errors.Join(s.factory.Close(), s.provider.Close())
}

// execute is the terminal handler.
func (s *DataStore) execute(ctx context.Context, req *Request) (*Result, error) {
	httpReq := &iamhttp.Request{Path: req.URI, Query: req.Query}

	switch req.Action {
	case ActionRead:
		httpReq.Method = http.MethodGet
	case ActionCreate, ActionUpdate:
		httpReq.Method = http.MethodPost
		httpReq.Body = maps.Clone(req.Properties)
	case ActionDelete:
		httpReq.Method = http.MethodDelete
	default:
		return nil, fmt.Errorf("%w: action %s", ErrUnexpectedObject, req.Action)
	}

	resp, err := s.client.Do(ctx, httpReq)
	if err != nil {
		return nil, err
	}

	result := &Result{Kind: req.resultKind()}

	if len(resp.Body) == 0 {
		return result, nil
	}

	result.Body, err = s.serializer.Deserialize(string(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", req.URI, err)
	}

	return result, nil
}

func asResource(obj resource.Object) (resource.Resource, error) {
	res, ok := obj.(resource.Resource)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedObject, obj)
	}

	return res, nil
}
