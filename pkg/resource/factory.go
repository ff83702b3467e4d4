package resource

import (
	"fmt"
	"maps"
	"strings"

	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/google/uuid"
)

// IdentityMap deduplicates Data records by id.
type IdentityMap interface {
	GetOrAdd(id string, factory func() *Data, pinned bool) (*Data, error)
	Dispose() error
}

// Factory materializes response bodies into typed objects.
type Factory struct {
	store    Store
	identity IdentityMap
	registry *Registry
}

// NewFactory creates a factory. A nil registry means DefaultRegistry.
func NewFactory(store Store, identity IdentityMap, registry *Registry) *Factory {
	if registry == nil {
		registry = DefaultRegistry()
	}

	return &Factory{
		store:    store,
		identity: identity,
		registry: registry,
	}
}

// Registry returns the kind registry.
func (f *Factory) Registry() *Registry {
	return f.registry
}

// Create materializes props as kind. Collection kinds produce a *Page;
// everything else a Resource. When linkable is set it receives the
// resulting Data.
func (f *Factory) Create(kind Kind, props iam.Map, linkable Linkable) (Object, error) {
	descriptor, ok := f.registry.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("error creating resource kind %q: %w", kind, ErrUnknownKind)
	}

	var (
		obj Object
		err error
	)

	if descriptor.IsCollection() {
		obj, err = f.createPage(descriptor, props)
	} else {
		obj, err = f.createSingle(kind, props, linkable)
	}

	if err != nil {
		return nil, fmt.Errorf("error creating resource kind %q: %w", kind, err)
	}

	return obj, nil
}

// Instantiate creates a new, unsaved resource of kind.
func (f *Factory) Instantiate(kind Kind) (Resource, error) {
	obj, err := f.Create(kind, nil, nil)
	if err != nil {
		return nil, err
	}

	res, ok := obj.(Resource)
	if !ok {
		return nil, fmt.Errorf("error creating resource kind %q: %w", kind, ErrNotInstantiable)
	}

	return res, nil
}

// Close disposes the identity map.
func (f *Factory) Close() error {
	if f.identity == nil {
		return nil
	}

	return f.identity.Dispose()
}

func (f *Factory) createPage(descriptor *Descriptor, props iam.Map) (*Page, error) {
	page := &Page{kind: descriptor.Kind}

	for _, field := range []struct {
		name   string
		target *int64
	}{
		{OffsetProperty, &page.Offset},
		{LimitProperty, &page.Limit},
		{SizeProperty, &page.Size},
	} {
		raw, ok := props[field.name]
		if !ok {
			return nil, fmt.Errorf("%w: %s is missing", ErrInvalidPagingField, field.name)
		}

		value, err := ToInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPagingField, field.name, err)
		}

		*field.target = value
	}

	page.href = HrefOf(props)
	if page.href == "" {
		return nil, ErrMissingHref
	}

	raw, ok := props[ItemsProperty]
	if !ok {
		return nil, ErrMissingItems
	}

	items, err := itemList(raw)
	if err != nil {
		return nil, err
	}

	page.Items = make([]Resource, 0, len(items))

	for i, item := range items {
		obj, err := f.Create(descriptor.Item, item, nil)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}

		res, ok := obj.(Resource)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is a %T", ErrInvalidItem, i, obj)
		}

		page.Items = append(page.Items, res)
	}

	return page, nil
}

func itemList(raw any) ([]iam.Map, error) {
	switch items := raw.(type) {
	case nil:
		return nil, nil
	case []iam.Map:
		return items, nil
	case []any:
		bodies := make([]iam.Map, 0, len(items))

		for i, item := range items {
			body, ok := AsMap(item)
			if !ok {
				return nil, fmt.Errorf("%w: item %d is a %T", ErrInvalidItem, i, item)
			}

			bodies = append(bodies, body)
		}

		return bodies, nil
	default:
		return nil, fmt.Errorf("%w: items is a %T", ErrMissingItems, raw)
	}
}

func (f *Factory) createSingle(kind Kind, props iam.Map, linkable Linkable) (Resource, error) {
	descriptor, err := f.registry.Resolve(kind, props)
	if err != nil {
		return nil, err
	}

	if descriptor.New == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotInstantiable, descriptor.Kind)
	}

	props = maps.Clone(props)
	if props == nil {
		props = make(iam.Map)
	}

	id := identityFor(descriptor.Kind, HrefOf(props))
	if HrefOf(props) == "" {
		props[HrefProperty] = id
	}

	newData := func() *Data { return NewData(id, descriptor.Kind, f.store) }

	var data *Data

	if descriptor.Policy == PolicySkip || f.identity == nil {
		data = newData()
	} else {
		data, err = f.identity.GetOrAdd(id, newData, descriptor.Policy == PolicyPinned)
		if err != nil {
			return nil, err
		}
	}

	data.Update(props)

	res := descriptor.New(data)

	if notifiable, ok := res.(Notifiable); ok {
		notifiable.OnUpdate(props, f.store)
	}

	if linkable != nil {
		linkable.Link(data)
	}

	return res, nil
}

func identityFor(kind Kind, href string) string {
	if href == "" {
		return AutogenScheme + string(kind) + "/" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	return string(kind) + "/" + href
}
