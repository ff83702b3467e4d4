package query

import (
	"context"
	"fmt"

	"github.com/fivetwenty-io/iam/pkg/resource"
)

// PageIterator walks a query one item at a time, fetching the next page
// when the current one is exhausted.
type PageIterator[T resource.Resource] struct {
	query   *Query[T]
	started bool
	last    bool
	done    bool
	offset  int64
	items   []T
	index   int
	yielded int64
	current T
}

// MoveNext advances to the next item. It returns false once the collection,
// or the window set by Take, is exhausted.
func (it *PageIterator[T]) MoveNext(ctx context.Context) (bool, error) {
	for !it.done {
		if it.query.take >= 0 && it.yielded >= it.query.take {
			break
		}

		if it.index < len(it.items) {
			it.current = it.items[it.index]
			it.index++
			it.yielded++

			return true, nil
		}

		if it.last {
			break
		}

		err := it.fetch(ctx)
		if err != nil {
			return false, err
		}
	}

	it.finish()

	return false, nil
}

// Current returns the item MoveNext last advanced to.
func (it *PageIterator[T]) Current() T {
	return it.current
}

// Reset rewinds to before the first item. The next MoveNext fetches the
// first page again.
func (it *PageIterator[T]) Reset() {
	*it = PageIterator[T]{query: it.query}
}

func (it *PageIterator[T]) finish() {
	var zero T

	it.done = true
	it.items = nil
	it.current = zero
}

func (it *PageIterator[T]) fetch(ctx context.Context) error {
	if it.query.err != nil {
		return it.query.err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("query cancelled: %w", err)
	}

	if !it.started {
		it.offset = it.query.model.Offset
		it.started = true
	}

	model := it.query.model.clone()
	model.Offset = it.offset

	if it.query.take >= 0 {
		remaining := it.query.take - it.yielded
		if model.Limit == 0 || model.Limit > remaining {
			model.Limit = remaining
		}
	}

	page, err := it.query.fetcher.GetCollection(ctx, it.query.kind, it.query.href, model.Values())
	if err != nil {
		return fmt.Errorf("fetching %s at offset %d: %w", it.query.href, it.offset, err)
	}

	items := make([]T, 0, len(page.Items))

	for _, item := range page.Items {
		typed, ok := item.(T)
		if !ok {
			return fmt.Errorf("%w: %T in %s", ErrUnexpectedItem, item, it.query.href)
		}

		items = append(items, typed)
	}

	it.items = items
	it.index = 0
	it.offset += int64(len(items))
	it.last = len(items) == 0 || it.offset >= page.Size

	return nil
}
