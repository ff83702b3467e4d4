// Package query executes collection requests page by page against a
// caching data store.
//
// A Query is built fluently and executed lazily:
//
//	accounts := query.New[*resource.Account](store, resource.KindAccountCollection, "directories/1/accounts").
//		Where("surname", "Skywalker").
//		OrderBy("givenName").
//		Take(50)
//
//	for account, err := range accounts.All(ctx) {
//		...
//	}
//
// Every execution starts from the first page again. Sync adapts the same
// query for callers without a context.
package query

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"

	"github.com/fivetwenty-io/iam/pkg/resource"
)

// Static errors for err113 compliance.
var (
	ErrScalarRequiresAsync = errors.New("scalar operators are not supported synchronously, use the context-aware query")
	ErrNoElements          = errors.New("sequence contains no elements")
	ErrMultipleElements    = errors.New("sequence contains more than one element")
	ErrNegativeWindow      = errors.New("skip, take and page size must not be negative")
	ErrUnexpectedItem      = errors.New("collection item has unexpected type")
)

// Fetcher reads one page of a collection.
type Fetcher interface {
	GetCollection(ctx context.Context, kind resource.Kind, href string, query url.Values) (*resource.Page, error)
}

// Query is a lazily executed collection request. Builder methods modify the
// query and return it.
type Query[T resource.Resource] struct {
	fetcher Fetcher
	kind    resource.Kind
	href    string
	model   RequestModel
	take    int64
	err     error
}

// New creates a query over the collection at href.
func New[T resource.Resource](fetcher Fetcher, kind resource.Kind, href string) *Query[T] {
	return &Query[T]{fetcher: fetcher, kind: kind, href: href, take: -1}
}

// Model returns a copy of the request model.
func (q *Query[T]) Model() RequestModel {
	return q.model.clone()
}

// Where matches one attribute. Values may use * wildcards.
func (q *Query[T]) Where(attribute, value string) *Query[T] {
	if q.model.Attributes == nil {
		q.model.Attributes = map[string]string{}
	}

	q.model.Attributes[attribute] = value

	return q
}

// Filter searches all attributes for text.
func (q *Query[T]) Filter(text string) *Query[T] {
	q.model.Filter = text

	return q
}

// OrderBy starts the ordering with field ascending.
func (q *Query[T]) OrderBy(field string) *Query[T] {
	q.model.OrderBy = []Order{{Field: field}}

	return q
}

// OrderByDescending starts the ordering with field descending.
func (q *Query[T]) OrderByDescending(field string) *Query[T] {
	q.model.OrderBy = []Order{{Field: field, Descending: true}}

	return q
}

// ThenBy breaks ties of the previous clauses with field ascending.
func (q *Query[T]) ThenBy(field string) *Query[T] {
	q.model.OrderBy = append(q.model.OrderBy, Order{Field: field})

	return q
}

// ThenByDescending breaks ties of the previous clauses with field descending.
func (q *Query[T]) ThenByDescending(field string) *Query[T] {
	q.model.OrderBy = append(q.model.OrderBy, Order{Field: field, Descending: true})

	return q
}

// Expand embeds a linked resource in each item.
func (q *Query[T]) Expand(field string) *Query[T] {
	q.model.Expand = append(q.model.Expand, Expansion{Field: field})

	return q
}

// ExpandPaged embeds a window of a linked collection in each item.
func (q *Query[T]) ExpandPaged(field string, offset, limit int64) *Query[T] {
	if offset < 0 || limit < 0 {
		q.err = fmt.Errorf("%w: expand %s(offset:%d,limit:%d)", ErrNegativeWindow, field, offset, limit)
	}

	q.model.Expand = append(q.model.Expand, Expansion{Field: field, Offset: offset, Limit: limit, Paged: true})

	return q
}

// Skip starts the results after n items.
func (q *Query[T]) Skip(n int64) *Query[T] {
	if n < 0 {
		q.err = fmt.Errorf("%w: skip %d", ErrNegativeWindow, n)
	}

	q.model.Offset = n

	return q
}

// Take stops the results after n items.
func (q *Query[T]) Take(n int64) *Query[T] {
	if n < 0 {
		q.err = fmt.Errorf("%w: take %d", ErrNegativeWindow, n)
	}

	q.take = n

	return q
}

// PageSize sets how many items each round trip requests. Zero leaves it to
// the server.
func (q *Query[T]) PageSize(n int64) *Query[T] {
	if n < 0 {
		q.err = fmt.Errorf("%w: page size %d", ErrNegativeWindow, n)
	}

	q.model.Limit = n

	return q
}

func (q *Query[T]) clone() *Query[T] {
	clone := *q
	clone.model = q.model.clone()

	return &clone
}

// Pages returns a fresh iterator positioned before the first item.
func (q *Query[T]) Pages() *PageIterator[T] {
	return &PageIterator[T]{query: q.clone()}
}

// All yields every item in order. Iteration stops at the first error, which
// is yielded with a zero item.
func (q *Query[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		pages := q.Pages()

		for {
			ok, err := pages.MoveNext(ctx)
			if err != nil {
				var zero T

				yield(zero, err)

				return
			}

			if !ok || !yield(pages.Current(), nil) {
				return
			}
		}
	}
}

// ToSlice materializes every item.
func (q *Query[T]) ToSlice(ctx context.Context) ([]T, error) {
	var items []T

	for item, err := range q.All(ctx) {
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, nil
}

// First returns the first item or ErrNoElements.
func (q *Query[T]) First(ctx context.Context) (T, error) {
	item, found, err := q.first(ctx)
	if err == nil && !found {
		err = ErrNoElements
	}

	return item, err
}

// FirstOrDefault returns the first item, or the zero value when there is
// none.
func (q *Query[T]) FirstOrDefault(ctx context.Context) (T, error) {
	item, _, err := q.first(ctx)

	return item, err
}

func (q *Query[T]) first(ctx context.Context) (T, bool, error) {
	var zero T

	pages := q.atMost(1).Pages()

	ok, err := pages.MoveNext(ctx)
	if err != nil || !ok {
		return zero, false, err
	}

	return pages.Current(), true, nil
}

// atMost returns a copy yielding at most n items. A smaller Take wins.
func (q *Query[T]) atMost(n int64) *Query[T] {
	if q.take >= 0 {
		n = min(n, q.take)
	}

	return q.clone().Take(n)
}

// Single returns the only item. It fails with ErrNoElements or
// ErrMultipleElements otherwise.
func (q *Query[T]) Single(ctx context.Context) (T, error) {
	var zero T

	items, err := q.atMost(2).ToSlice(ctx)
	if err != nil {
		return zero, err
	}

	switch len(items) {
	case 0:
		return zero, ErrNoElements
	case 1:
		return items[0], nil
	default:
		return zero, ErrMultipleElements
	}
}

// Count returns how many items the query would yield. It costs one round
// trip regardless of the collection size.
func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}

	model := q.model.clone()
	model.Limit = 1

	page, err := q.fetcher.GetCollection(ctx, q.kind, q.href, model.Values())
	if err != nil {
		return 0, err
	}

	count := max(page.Size-q.model.Offset, 0)
	if q.take >= 0 {
		count = min(count, q.take)
	}

	return count, nil
}

// Any reports whether the query yields at least one item.
func (q *Query[T]) Any(ctx context.Context) (bool, error) {
	count, err := q.Count(ctx)

	return count > 0, err
}

// Sync returns a blocking view of the query.
func (q *Query[T]) Sync() *SyncQuery[T] {
	return &SyncQuery[T]{query: q}
}
