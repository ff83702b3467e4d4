package query_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"testing"

	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/fivetwenty-io/iam/pkg/query"
	"github.com/fivetwenty-io/iam/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFetch = errors.New("fetch failed")

// fakeFetcher serves windows of a fixed item list.
type fakeFetcher struct {
	items []resource.Resource
	// size overrides the reported collection size when positive.
	size    int64
	err     error
	queries []url.Values
}

func (f *fakeFetcher) GetCollection(_ context.Context, _ resource.Kind, _ string, values url.Values) (*resource.Page, error) {
	f.queries = append(f.queries, values)

	if f.err != nil {
		return nil, f.err
	}

	offset, _ := strconv.ParseInt(values.Get("offset"), 10, 64)

	limit := int64(25)
	if raw := values.Get("limit"); raw != "" {
		limit, _ = strconv.ParseInt(raw, 10, 64)
	}

	total := int64(len(f.items))
	size := total

	if f.size > 0 {
		size = f.size
	}

	start := min(offset, total)
	end := min(offset+limit, total)

	return &resource.Page{Offset: offset, Limit: limit, Size: size, Items: f.items[start:end]}, nil
}

func (f *fakeFetcher) offsets() []string {
	offsets := make([]string, 0, len(f.queries))
	for _, values := range f.queries {
		offsets = append(offsets, values.Get("offset"))
	}

	return offsets
}

func newFetcher(t *testing.T, n int) *fakeFetcher {
	t.Helper()

	factory := resource.NewFactory(nil, nil, nil)
	fetcher := &fakeFetcher{}

	for i := range n {
		obj, err := factory.Create(resource.KindAccount, iam.Map{
			"href":      fmt.Sprintf("https://api.example.com/v1/accounts/%d", i),
			"givenName": "user" + strconv.Itoa(i),
		}, nil)
		require.NoError(t, err)

		account, ok := obj.(resource.Resource)
		require.True(t, ok)

		fetcher.items = append(fetcher.items, account)
	}

	return fetcher
}

func accounts(fetcher query.Fetcher) *query.Query[*resource.Account] {
	return query.New[*resource.Account](fetcher, resource.KindAccountCollection, "directories/1/accounts")
}

func names(items []*resource.Account) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.GivenName())
	}

	return out
}

//nolint:funlen // Test functions can be longer for detailed testing
func TestRequestModel_Values(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		build    func(q *query.Query[*resource.Account])
		expected url.Values
	}{
		{
			name:     "empty",
			build:    func(*query.Query[*resource.Account]) {},
			expected: url.Values{},
		},
		{
			name:     "filter and attributes",
			build:    func(q *query.Query[*resource.Account]) { q.Filter("luke").Where("email", "*@rebels.org") },
			expected: url.Values{"q": {"luke"}, "email": {"*@rebels.org"}},
		},
		{
			name: "ordering in caller order",
			build: func(q *query.Query[*resource.Account]) {
				q.OrderBy("surname").ThenByDescending("givenName").ThenBy("email")
			},
			expected: url.Values{"orderBy": {"surname,givenName desc,email"}},
		},
		{
			name: "order by restarts the ordering",
			build: func(q *query.Query[*resource.Account]) {
				q.OrderBy("surname").OrderByDescending("email")
			},
			expected: url.Values{"orderBy": {"email desc"}},
		},
		{
			name: "expansions",
			build: func(q *query.Query[*resource.Account]) {
				q.Expand("directory").ExpandPaged("groups", 10, 5).ExpandPaged("customData", 0, 0)
			},
			expected: url.Values{"expand": {"directory,groups(offset:10,limit:5),customData"}},
		},
		{
			name:     "window",
			build:    func(q *query.Query[*resource.Account]) { q.Skip(20).PageSize(10) },
			expected: url.Values{"offset": {"20"}, "limit": {"10"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := accounts(&fakeFetcher{})
			tt.build(q)

			model := q.Model()
			assert.Equal(t, tt.expected, model.Values())
		})
	}
}

func TestQuery_Paging(t *testing.T) {
	t.Parallel()

	fetcher := newFetcher(t, 5)

	items, err := accounts(fetcher).PageSize(2).ToSlice(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"user0", "user1", "user2", "user3", "user4"}, names(items))
	assert.Equal(t, []string{"", "2", "4"}, fetcher.offsets())
}

func TestQuery_Take(t *testing.T) {
	t.Parallel()

	fetcher := newFetcher(t, 5)

	items, err := accounts(fetcher).PageSize(2).Take(3).ToSlice(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"user0", "user1", "user2"}, names(items))
	require.Len(t, fetcher.queries, 2)
	assert.Equal(t, "1", fetcher.queries[1].Get("limit"), "the last page only asks for what is left")

	none, err := accounts(fetcher).Take(0).ToSlice(context.Background())
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Len(t, fetcher.queries, 2)
}

func TestQuery_Skip(t *testing.T) {
	t.Parallel()

	fetcher := newFetcher(t, 5)

	items, err := accounts(fetcher).Skip(3).ToSlice(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"user3", "user4"}, names(items))
	assert.Equal(t, []string{"3"}, fetcher.offsets())
}

func TestQuery_EmptyPageStops(t *testing.T) {
	t.Parallel()

	fetcher := newFetcher(t, 2)
	fetcher.size = 10

	items, err := accounts(fetcher).PageSize(2).ToSlice(context.Background())
	require.NoError(t, err)

	assert.Len(t, items, 2)
	assert.Equal(t, []string{"", "2"}, fetcher.offsets())
}

func TestQuery_Restartable(t *testing.T) {
	t.Parallel()

	fetcher := newFetcher(t, 3)
	q := accounts(fetcher).PageSize(2)

	first, err := q.ToSlice(context.Background())
	require.NoError(t, err)

	second, err := q.ToSlice(context.Background())
	require.NoError(t, err)

	assert.Equal(t, names(first), names(second))
	assert.Equal(t, []string{"", "2", "", "2"}, fetcher.offsets())
}

func TestPageIterator_Reset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newFetcher(t, 3)
	pages := accounts(fetcher).Pages()

	ok, err := pages.MoveNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user0", pages.Current().GivenName())

	ok, err = pages.MoveNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user1", pages.Current().GivenName())

	pages.Reset()

	ok, err = pages.MoveNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user0", pages.Current().GivenName())
	assert.Len(t, fetcher.queries, 2)
}

func TestQuery_All_StopsEarly(t *testing.T) {
	t.Parallel()

	fetcher := newFetcher(t, 5)

	var seen []string

	for account, err := range accounts(fetcher).PageSize(2).All(context.Background()) {
		require.NoError(t, err)

		seen = append(seen, account.GivenName())
		if len(seen) == 2 {
			break
		}
	}

	assert.Equal(t, []string{"user0", "user1"}, seen)
	assert.Len(t, fetcher.queries, 1)
}

func TestQuery_Elements(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	empty := newFetcher(t, 0)
	one := newFetcher(t, 1)
	many := newFetcher(t, 3)

	_, err := accounts(empty).First(ctx)
	require.ErrorIs(t, err, query.ErrNoElements)

	account, err := accounts(empty).FirstOrDefault(ctx)
	require.NoError(t, err)
	assert.Nil(t, account)

	account, err = accounts(many).First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user0", account.GivenName())
	assert.Equal(t, "1", many.queries[0].Get("limit"))

	account, err = accounts(one).Single(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user0", account.GivenName())

	_, err = accounts(many).Single(ctx)
	require.ErrorIs(t, err, query.ErrMultipleElements)

	_, err = accounts(empty).Single(ctx)
	require.ErrorIs(t, err, query.ErrNoElements)

	_, err = accounts(many).Take(0).First(ctx)
	require.ErrorIs(t, err, query.ErrNoElements, "an explicit Take(0) yields nothing")

	account, err = accounts(many).Take(1).Single(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user0", account.GivenName())
}

func TestQuery_CountAndAny(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newFetcher(t, 5)

	count, err := accounts(fetcher).Skip(1).Take(3).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, "1", fetcher.queries[0].Get("limit"))

	count, err = accounts(fetcher).Skip(4).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	anyItems, err := accounts(fetcher).Skip(9).Any(ctx)
	require.NoError(t, err)
	assert.False(t, anyItems)

	anyItems, err = accounts(fetcher).Any(ctx)
	require.NoError(t, err)
	assert.True(t, anyItems)
}

func TestQuery_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("fetch error", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{err: errFetch}

		for account, err := range accounts(fetcher).All(ctx) {
			require.ErrorIs(t, err, errFetch)
			assert.Nil(t, account)
		}

		_, err := accounts(fetcher).Count(ctx)
		require.ErrorIs(t, err, errFetch)
	})

	t.Run("negative window", func(t *testing.T) {
		t.Parallel()

		fetcher := newFetcher(t, 1)

		_, err := accounts(fetcher).Skip(-1).ToSlice(ctx)
		require.ErrorIs(t, err, query.ErrNegativeWindow)

		_, err = accounts(fetcher).ExpandPaged("groups", 0, -5).First(ctx)
		require.ErrorIs(t, err, query.ErrNegativeWindow)
		assert.Empty(t, fetcher.queries)
	})

	t.Run("unexpected item", func(t *testing.T) {
		t.Parallel()

		groups := query.New[*resource.Group](newFetcher(t, 1), resource.KindGroupCollection, "groups")

		_, err := groups.ToSlice(ctx)
		require.ErrorIs(t, err, query.ErrUnexpectedItem)
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		fetcher := newFetcher(t, 1)

		_, err := accounts(fetcher).ToSlice(cancelled)
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, fetcher.queries)
	})
}
