package query

import (
	"context"

	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/fivetwenty-io/iam/pkg/resource"
)

// SyncQuery runs a query without a caller context, blocking at each page
// boundary. Items arrive in the same order and through the same cache as
// the context-aware path.
type SyncQuery[T resource.Resource] struct {
	query *Query[T]
}

// Iterator returns a blocking iterator positioned before the first item.
func (s *SyncQuery[T]) Iterator() *Iterator[T] {
	return &Iterator[T]{pages: s.query.Pages()}
}

// ToSlice materializes every item.
func (s *SyncQuery[T]) ToSlice() ([]T, error) {
	return s.query.ToSlice(context.Background())
}

// First returns the first item or ErrNoElements.
func (s *SyncQuery[T]) First() (T, error) {
	return s.query.First(context.Background())
}

// FirstOrDefault returns the first item or the zero value.
func (s *SyncQuery[T]) FirstOrDefault() (T, error) {
	return s.query.FirstOrDefault(context.Background())
}

// Single returns the only item.
func (s *SyncQuery[T]) Single() (T, error) {
	return s.query.Single(context.Background())
}

// Count always fails with ErrScalarRequiresAsync.
func (s *SyncQuery[T]) Count() (int64, error) {
	return 0, ErrScalarRequiresAsync
}

// Any always fails with ErrScalarRequiresAsync.
func (s *SyncQuery[T]) Any() (bool, error) {
	return false, ErrScalarRequiresAsync
}

// Iterator is a blocking cursor over a query.
type Iterator[T resource.Resource] struct {
	pages  *PageIterator[T]
	peeked bool
	has    bool
	err    error
}

// HasNext reports whether Next will return an item or an error.
func (it *Iterator[T]) HasNext() bool {
	if !it.peeked {
		it.has, it.err = it.pages.MoveNext(context.Background())
		it.peeked = true
	}

	return it.has || it.err != nil
}

// Next returns the next item, or iam.ErrNoMoreItems past the end.
func (it *Iterator[T]) Next() (T, error) {
	var zero T

	if !it.HasNext() {
		return zero, iam.ErrNoMoreItems
	}

	it.peeked = false

	if it.err != nil {
		err := it.err
		it.err = nil
		it.pages.finish()

		return zero, err
	}

	return it.pages.Current(), nil
}

// Reset rewinds to before the first item.
func (it *Iterator[T]) Reset() {
	it.pages.Reset()
	it.peeked = false
	it.has = false
	it.err = nil
}
