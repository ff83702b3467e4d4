package datastore_test

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fivetwenty-io/iam/internal/datastore"
	iamhttp "github.com/fivetwenty-io/iam/internal/http"
	"github.com/fivetwenty-io/iam/internal/identitymap"
	"github.com/fivetwenty-io/iam/pkg/cache"
	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/fivetwenty-io/iam/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a tiny in-memory rendition of the service.
type fakeAPI struct {
	mu      sync.Mutex
	server  *httptest.Server
	bodies  map[string]iam.Map
	hits    map[string]int
	posted  []iam.Map
	queries []string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	api := &fakeAPI{bodies: map[string]iam.Map{}, hits: map[string]int{}}
	api.server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.server.Close)

	return api
}

func (a *fakeAPI) href(path string) string {
	return a.server.URL + path
}

func (a *fakeAPI) put(path string, body iam.Map) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.bodies[path] = body
}

func (a *fakeAPI) hitCount(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.hits[key]
}

func (a *fakeAPI) postedBodies() []iam.Map {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.posted)
}

func (a *fakeAPI) rawQueries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.queries)
}

func (a *fakeAPI) serve(writer http.ResponseWriter, request *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := request.URL.Path
	a.hits[request.Method+" "+path]++
	a.queries = append(a.queries, request.URL.RawQuery)

	switch request.Method {
	case http.MethodGet:
		body, ok := a.bodies[path]
		if !ok {
			writer.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(writer).Encode(iam.APIError{Status: 404, Code: 404, Message: "not found"})

			return
		}

		_ = json.NewEncoder(writer).Encode(body)
	case http.MethodPost:
		var props iam.Map

		_ = json.NewDecoder(request.Body).Decode(&props)
		a.posted = append(a.posted, maps.Clone(props))

		delete(props, "password")

		body, ok := a.bodies[path]
		if !ok {
			path += "/new"
			body = iam.Map{"href": a.href(path)}
			writer.WriteHeader(http.StatusCreated)
		}

		for key, value := range props {
			body[key] = value
		}

		a.bodies[path] = body
		_ = json.NewEncoder(writer).Encode(body)
	case http.MethodDelete:
		if name, ok := strings.CutPrefix(path, "/v1/accounts/abc/customData/"); ok {
			delete(a.bodies["/v1/accounts/abc/customData"], name)
		} else {
			delete(a.bodies, path)
		}

		writer.WriteHeader(http.StatusNoContent)
	}
}

func newDataStore(t *testing.T) (*datastore.DataStore, *fakeAPI) {
	t.Helper()

	api := newFakeAPI(t)
	client := iamhttp.NewClient(api.server.URL+"/v1", nil, iamhttp.WithRetryConfig(0, time.Millisecond, time.Millisecond))
	store := datastore.New(client, cache.NewMemoryProvider(nil), identitymap.New[*resource.Data](time.Minute, 0))

	t.Cleanup(func() { _ = store.Close() })

	api.put("/v1/accounts/abc", iam.Map{
		"href":       api.href("/v1/accounts/abc"),
		"givenName":  "Luke",
		"status":     "ENABLED",
		"directory":  iam.Map{"href": api.href("/v1/directories/dir")},
		"customData": iam.Map{"href": api.href("/v1/accounts/abc/customData")},
	})
	api.put("/v1/accounts/abc/customData", iam.Map{
		"href":          api.href("/v1/accounts/abc/customData"),
		"favoriteColor": "blue",
		"rank":          "Padawan",
	})
	api.put("/v1/directories/dir", iam.Map{"href": api.href("/v1/directories/dir"), "name": "Rebels"})

	return store, api
}

func getAccount(t *testing.T, store *datastore.DataStore, href string) *resource.Account {
	t.Helper()

	res, err := store.GetResource(context.Background(), resource.KindAccount, href)
	require.NoError(t, err)

	account, ok := res.(*resource.Account)
	require.True(t, ok)

	return account
}

func TestDataStore_ReadThrough(t *testing.T) {
	t.Parallel()

	store, api := newDataStore(t)

	first := getAccount(t, store, "accounts/abc")
	second := getAccount(t, store, api.href("/v1/accounts/abc"))

	assert.Equal(t, 1, api.hitCount("GET /v1/accounts/abc"))
	assert.Same(t, first.Data(), second.Data())
	assert.Equal(t, "Luke", second.GivenName())

	directory, err := first.Directory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Rebels", directory.Name())

	_, err = first.Directory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, api.hitCount("GET /v1/directories/dir"))
}

func TestDataStore_SaveUpdatesCache(t *testing.T) {
	t.Parallel()

	store, api := newDataStore(t)
	ctx := context.Background()

	account := getAccount(t, store, "accounts/abc")
	account.SetGivenName("Leia")
	account.SetPassword("secret")

	require.NoError(t, account.Save(ctx))
	posted := api.postedBodies()
	require.Len(t, posted, 1)
	assert.Equal(t, iam.Map{"givenName": "Leia", "password": "secret"}, posted[0])
	assert.Empty(t, account.Data().Dirty())

	_, hasPassword := account.Data().Get("password")
	assert.False(t, hasPassword)

	region, err := store.Provider().Region(ctx, "accounts")
	require.NoError(t, err)

	cached, err := region.Get(ctx, api.href("/v1/accounts/abc"))
	require.NoError(t, err)
	assert.Equal(t, "Leia", cached["givenName"])
	assert.NotContains(t, cached, "password")

	require.NoError(t, account.Save(ctx), "nothing dirty is a no-op")
	assert.Len(t, api.postedBodies(), 1)
}

func TestDataStore_DeletePurges(t *testing.T) {
	t.Parallel()

	store, api := newDataStore(t)
	ctx := context.Background()

	account := getAccount(t, store, "accounts/abc")
	require.NoError(t, account.Delete(ctx))
	assert.Equal(t, 1, api.hitCount("DELETE /v1/accounts/abc"))

	_, err := store.GetResource(ctx, resource.KindAccount, "accounts/abc")
	require.Error(t, err)
	assert.True(t, iam.IsNotFound(err))
	assert.Equal(t, 2, api.hitCount("GET /v1/accounts/abc"))
}

func TestDataStore_GetCollection(t *testing.T) {
	t.Parallel()

	store, api := newDataStore(t)
	ctx := context.Background()

	api.put("/v1/directories/dir/accounts", iam.Map{
		"href": api.href("/v1/directories/dir/accounts"), "offset": 0, "limit": 2, "size": 3,
		"items": []any{
			iam.Map{"href": api.href("/v1/accounts/abc"), "givenName": "Luke"},
			iam.Map{"href": api.href("/v1/accounts/def"), "givenName": "Han"},
		},
	})

	page, err := store.GetCollection(ctx, resource.KindAccountCollection, "directories/dir/accounts",
		map[string][]string{"limit": {"2"}})
	require.NoError(t, err)
	assert.Contains(t, api.rawQueries(), "limit=2")
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Size)
	assert.True(t, page.HasMore())

	han := getAccount(t, store, api.href("/v1/accounts/def"))
	assert.Equal(t, "Han", han.GivenName())
	assert.Equal(t, 0, api.hitCount("GET /v1/accounts/def"), "items were cached individually")
	assert.Same(t, page.Items[1].Data(), han.Data())
}

func TestDataStore_CustomDataPropertyDelete(t *testing.T) {
	t.Parallel()

	store, api := newDataStore(t)
	ctx := context.Background()

	account := getAccount(t, store, "accounts/abc")

	customData, err := account.CustomData(ctx)
	require.NoError(t, err)
	require.NoError(t, customData.Remove(ctx, "rank"))
	assert.Equal(t, 1, api.hitCount("DELETE /v1/accounts/abc/customData/rank"))

	region, err := store.Provider().Region(ctx, "customData")
	require.NoError(t, err)

	cached, err := region.Get(ctx, api.href("/v1/accounts/abc/customData"))
	require.NoError(t, err)
	assert.Equal(t, iam.Map{"href": api.href("/v1/accounts/abc/customData"), "favoriteColor": "blue"}, cached)
}

func TestDataStore_SharedReadOutlivesCancelledCaller(t *testing.T) {
	t.Parallel()

	arrived := make(chan struct{}, 1)
	release := make(chan struct{})

	var (
		server *httptest.Server
		hits   atomic.Int32
	)

	server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		hits.Add(1)

		select {
		case arrived <- struct{}{}:
		default:
		}

		<-release

		_ = json.NewEncoder(writer).Encode(iam.Map{"href": server.URL + request.URL.Path, "givenName": "Luke"})
	}))
	t.Cleanup(server.Close)

	unblock := sync.OnceFunc(func() { close(release) })
	t.Cleanup(unblock)

	client := iamhttp.NewClient(server.URL+"/v1", nil, iamhttp.WithRetryConfig(0, time.Millisecond, time.Millisecond))
	store := datastore.New(client, cache.NewMemoryProvider(nil), identitymap.New[*resource.Data](time.Minute, 0))
	t.Cleanup(func() { _ = store.Close() })

	impatient, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	firstErr := make(chan error, 1)

	go func() {
		_, err := store.GetResource(impatient, resource.KindAccount, "accounts/abc")
		firstErr <- err
	}()

	<-arrived

	second := make(chan error, 1)

	var account resource.Resource

	go func() {
		var err error

		account, err = store.GetResource(context.Background(), resource.KindAccount, "accounts/abc")
		second <- err
	}()

	err := <-firstErr
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unblock()

	require.NoError(t, <-second)
	assert.Equal(t, server.URL+"/v1/accounts/abc", account.Href())
	assert.Equal(t, int32(1), hits.Load())
}

func TestDataStore_CustomDataPropertyDeleteEscapedKey(t *testing.T) {
	t.Parallel()

	store, api := newDataStore(t)
	ctx := context.Background()

	customDataHref := api.href("/v1/accounts/abc/customData")
	api.put("/v1/accounts/abc/customData", iam.Map{"href": customDataHref, "favorite color": "blue", "rank": "Jedi"})

	account := getAccount(t, store, "accounts/abc")

	customData, err := account.CustomData(ctx)
	require.NoError(t, err)
	require.NoError(t, store.DeleteProperty(ctx, customData.Href(), "favorite color"))
	assert.Equal(t, 1, api.hitCount("DELETE /v1/accounts/abc/customData/favorite color"))

	region, err := store.Provider().Region(ctx, "customData")
	require.NoError(t, err)

	cached, err := region.Get(ctx, customDataHref)
	require.NoError(t, err)
	assert.Equal(t, iam.Map{"href": customDataHref, "rank": "Jedi"}, cached)
}

func TestDataStore_Create(t *testing.T) {
	t.Parallel()

	store, api := newDataStore(t)
	ctx := context.Background()

	res, err := store.Instantiate(resource.KindAccount)
	require.NoError(t, err)

	account, ok := res.(*resource.Account)
	require.True(t, ok)
	account.SetGivenName("Han")

	require.ErrorIs(t, store.Save(ctx, account), datastore.ErrNotPersisted)

	created, err := store.Create(ctx, "directories/dir/accounts", account, nil)
	require.NoError(t, err)

	posted := api.postedBodies()
	require.Len(t, posted, 1)
	assert.Equal(t, iam.Map{"givenName": "Han"}, posted[0])
	assert.Equal(t, api.href("/v1/directories/dir/accounts/new"), created.Href())
	assert.Equal(t, created.Href(), account.Href(), "the instance is updated in place")
	assert.False(t, account.Data().IsNew())
}
