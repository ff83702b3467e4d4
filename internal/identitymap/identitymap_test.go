package identitymap_test

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fivetwenty-io/iam/internal/identitymap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entity struct {
	id    string
	count int
}

func TestMap_GetOrAdd(t *testing.T) {
	t.Parallel()

	m := identitymap.New[*entity](time.Minute, 0)
	calls := 0
	factory := func() *entity {
		calls++

		return &entity{id: "a"}
	}

	first, err := m.GetOrAdd("a", factory, false)
	require.NoError(t, err)

	second, err := m.GetOrAdd("a", factory, false)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)

	second.count = 42
	assert.Equal(t, 42, first.count, "mutations are visible through every holder")
	assert.Equal(t, 1, m.Len())
}

func TestMap_Expiration(t *testing.T) {
	t.Parallel()

	m := identitymap.New[*entity](50*time.Millisecond, 0)

	first, err := m.GetOrAdd("a", func() *entity { return &entity{id: "a"} }, false)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok, err := m.Get("a")

		return err == nil && !ok
	}, time.Second, 10*time.Millisecond)

	second, err := m.GetOrAdd("a", func() *entity { return &entity{id: "a"} }, false)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestMap_PinnedNeverExpires(t *testing.T) {
	t.Parallel()

	m := identitymap.New[*entity](20*time.Millisecond, 0)

	first, err := m.GetOrAdd("tenant", func() *entity { return &entity{id: "tenant"} }, true)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	second, err := m.GetOrAdd("tenant", func() *entity { return &entity{id: "other"} }, false)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestMap_PinPromotesExisting(t *testing.T) {
	t.Parallel()

	m := identitymap.New[*entity](20*time.Millisecond, 0)

	first, err := m.GetOrAdd("a", func() *entity { return &entity{id: "a"} }, false)
	require.NoError(t, err)

	pinned, err := m.GetOrAdd("a", func() *entity { return &entity{id: "b"} }, true)
	require.NoError(t, err)
	assert.Same(t, first, pinned)

	time.Sleep(60 * time.Millisecond)

	value, ok, err := m.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, first, value)
}

func TestMap_ConcurrentMissesConverge(t *testing.T) {
	t.Parallel()

	m := identitymap.New[*entity](time.Minute, 0)

	var (
		calls   atomic.Int32
		wg      sync.WaitGroup
		results = make([]*entity, 32)
	)

	for i := range results {
		wg.Add(1)

		go func() {
			defer wg.Done()

			value, err := m.GetOrAdd("shared", func() *entity {
				calls.Add(1)

				return &entity{id: "shared"}
			}, false)
			assert.NoError(t, err)

			results[i] = value
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())

	for _, value := range results {
		assert.Same(t, results[0], value)
	}
}

func TestMap_SizeBound(t *testing.T) {
	t.Parallel()

	m := identitymap.New[*entity](time.Minute, 2)

	for _, id := range []string{"a", "b", "c"} {
		_, err := m.GetOrAdd(id, func() *entity { return &entity{id: id} }, false)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, m.Len())

	_, ok, err := m.Get("a")
	require.NoError(t, err)
	assert.False(t, ok, "least recently used entry was evicted")
}

func TestMap_UnboundedKeepsHeldRecords(t *testing.T) {
	t.Parallel()

	m := identitymap.New[*entity](time.Minute, 0)

	held, err := m.GetOrAdd("held", func() *entity { return &entity{id: "held"} }, false)
	require.NoError(t, err)

	for i := range 20000 {
		id := strconv.Itoa(i)
		_, err = m.GetOrAdd(id, func() *entity { return &entity{id: id} }, false)
		require.NoError(t, err)
	}

	again, err := m.GetOrAdd("held", func() *entity { return &entity{id: "held"} }, false)
	require.NoError(t, err)
	assert.Same(t, held, again)
	assert.Equal(t, 20001, m.Len())
}

func TestMap_Remove(t *testing.T) {
	t.Parallel()

	m := identitymap.New[*entity](time.Minute, 0)

	_, err := m.GetOrAdd("a", func() *entity { return &entity{id: "a"} }, true)
	require.NoError(t, err)
	require.NoError(t, m.Remove("a"))

	_, ok, err := m.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMap_Dispose(t *testing.T) {
	t.Parallel()

	m := identitymap.New[*entity](time.Minute, 0)

	_, err := m.GetOrAdd("a", func() *entity { return &entity{id: "a"} }, false)
	require.NoError(t, err)

	require.NoError(t, m.Dispose())
	assert.Equal(t, 0, m.Len())

	_, err = m.GetOrAdd("a", func() *entity { return &entity{id: "a"} }, false)
	require.ErrorIs(t, err, identitymap.ErrDisposed)

	_, _, err = m.Get("a")
	require.ErrorIs(t, err, identitymap.ErrDisposed)

	require.ErrorIs(t, m.Remove("a"), identitymap.ErrDisposed)
	require.ErrorIs(t, m.Dispose(), identitymap.ErrDisposed)
}
