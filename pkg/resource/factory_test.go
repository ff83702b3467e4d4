package resource_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fivetwenty-io/iam/internal/identitymap"
	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/fivetwenty-io/iam/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	accountHref   = "https://api.example/v1/accounts/abc"
	directoryHref = "https://api.example/v1/directories/dir"
)

var errNotFound = errors.New("not found")

// fakeStore serves bodies from memory through the factory.
type fakeStore struct {
	factory       *resource.Factory
	bodies        map[string]iam.Map
	fetched       []string
	saved         []resource.Resource
	deleted       []resource.Resource
	deletedFields []string
}

func (s *fakeStore) Fetch(_ context.Context, kind resource.Kind, href string, parent resource.Linkable) (resource.Object, error) {
	s.fetched = append(s.fetched, href)

	body, ok := s.bodies[href]
	if !ok {
		return nil, errNotFound
	}

	return s.factory.Create(kind, body, parent)
}

func (s *fakeStore) Save(_ context.Context, res resource.Resource) error {
	s.saved = append(s.saved, res)

	return nil
}

func (s *fakeStore) Delete(_ context.Context, res resource.Resource) error {
	s.deleted = append(s.deleted, res)

	return nil
}

func (s *fakeStore) DeleteProperty(_ context.Context, href, name string) error {
	s.deletedFields = append(s.deletedFields, href+"#"+name)

	return nil
}

func newFactory(t *testing.T) (*resource.Factory, *fakeStore) {
	t.Helper()

	store := &fakeStore{bodies: map[string]iam.Map{}}
	factory := resource.NewFactory(store, identitymap.New[*resource.Data](time.Minute, 0), nil)
	store.factory = factory

	t.Cleanup(func() { _ = factory.Close() })

	return factory, store
}

func createAccount(t *testing.T, factory *resource.Factory, props iam.Map) *resource.Account {
	t.Helper()

	obj, err := factory.Create(resource.KindAccount, props, nil)
	require.NoError(t, err)

	account, ok := obj.(*resource.Account)
	require.True(t, ok, "got %T", obj)

	return account
}

func TestFactory_CollectionPage(t *testing.T) {
	t.Parallel()

	factory, _ := newFactory(t)

	obj, err := factory.Create(resource.KindAccountCollection, iam.Map{
		"href":   "https://api.example/v1/accounts",
		"offset": json.Number("0"),
		"limit":  json.Number("25"),
		"size":   json.Number("2"),
		"items": []any{
			map[string]any{"href": "a"},
			map[string]any{"href": "b"},
		},
	}, nil)
	require.NoError(t, err)

	page, ok := obj.(*resource.Page)
	require.True(t, ok)

	assert.Equal(t, resource.KindAccountCollection, page.Kind())
	assert.Equal(t, "https://api.example/v1/accounts", page.Href())
	assert.Equal(t, int64(0), page.Offset)
	assert.Equal(t, int64(25), page.Limit)
	assert.Equal(t, int64(2), page.Size)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "a", page.Items[0].Href())
	assert.Equal(t, "b", page.Items[1].Href())
	assert.False(t, page.HasMore())

	for _, item := range page.Items {
		_, isAccount := item.(*resource.Account)
		assert.True(t, isAccount)
	}

	again := createAccount(t, factory, iam.Map{"href": "a"})
	assert.Same(t, page.Items[0].Data(), again.Data(), "collection items share identity with singles")
	assert.NotSame(t, page.Items[0].Data(), page.Items[1].Data())
}

func TestFactory_CollectionErrors(t *testing.T) {
	t.Parallel()

	valid := func() iam.Map {
		return iam.Map{
			"href":   "https://api.example/v1/accounts",
			"offset": 0,
			"limit":  25,
			"size":   0,
			"items":  []any{},
		}
	}

	tests := []struct {
		name    string
		mutate  func(iam.Map)
		wantErr error
		field   string
	}{
		{name: "missing offset", mutate: func(m iam.Map) { delete(m, "offset") }, wantErr: resource.ErrInvalidPagingField, field: "offset"},
		{name: "bad limit", mutate: func(m iam.Map) { m["limit"] = "lots" }, wantErr: resource.ErrInvalidPagingField, field: "limit"},
		{name: "fractional size", mutate: func(m iam.Map) { m["size"] = 1.5 }, wantErr: resource.ErrInvalidPagingField, field: "size"},
		{name: "missing href", mutate: func(m iam.Map) { delete(m, "href") }, wantErr: resource.ErrMissingHref},
		{name: "missing items", mutate: func(m iam.Map) { delete(m, "items") }, wantErr: resource.ErrMissingItems},
		{name: "scalar items", mutate: func(m iam.Map) { m["items"] = "nope" }, wantErr: resource.ErrMissingItems},
		{name: "non-object item", mutate: func(m iam.Map) { m["items"] = []any{"a"} }, wantErr: resource.ErrInvalidItem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			factory, _ := newFactory(t)
			props := valid()
			tt.mutate(props)

			_, err := factory.Create(resource.KindAccountCollection, props, nil)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), `"accountCollection"`)

			if tt.field != "" {
				assert.Contains(t, err.Error(), tt.field)
			}
		})
	}
}

func TestFactory_EmptyItems(t *testing.T) {
	t.Parallel()

	factory, _ := newFactory(t)

	obj, err := factory.Create(resource.KindGroupCollection, iam.Map{
		"href": "https://api.example/v1/groups", "offset": 0, "limit": 25, "size": 0, "items": nil,
	}, nil)
	require.NoError(t, err)

	page, ok := obj.(*resource.Page)
	require.True(t, ok)
	assert.Empty(t, page.Items)
}

func TestFactory_IdentityStability(t *testing.T) {
	t.Parallel()

	factory, _ := newFactory(t)

	first := createAccount(t, factory, iam.Map{"href": accountHref, "givenName": "Luke", "surname": "Skywalker"})
	second := createAccount(t, factory, iam.Map{"href": accountHref, "givenName": "Luke"})

	assert.Same(t, first.Data(), second.Data())
	assert.Equal(t, "account/"+accountHref, first.Data().ID())
	assert.Equal(t, "Skywalker", second.Surname(), "merge keeps keys the second body omits")

	second.SetGivenName("Leia")
	assert.Equal(t, "Leia", first.GivenName())
}

func TestFactory_AutogenID(t *testing.T) {
	t.Parallel()

	factory, _ := newFactory(t)

	res, err := factory.Instantiate(resource.KindGroup)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Href(), "autogen://group/"))
	assert.NotContains(t, strings.TrimPrefix(res.Href(), "autogen://group/"), "-")
	assert.Equal(t, res.Href(), res.Data().ID())
	assert.True(t, res.Data().IsNew())

	other, err := factory.Instantiate(resource.KindGroup)
	require.NoError(t, err)
	assert.NotEqual(t, res.Href(), other.Href())
}

func TestFactory_Policies(t *testing.T) {
	t.Parallel()

	factory, store := newFactory(t)

	props := iam.Map{"href": "https://api.example/v1/loginAttempts/1", "account": map[string]any{"href": accountHref}}

	first, err := factory.Create(resource.KindAuthenticationResult, props, nil)
	require.NoError(t, err)

	second, err := factory.Create(resource.KindAuthenticationResult, props, nil)
	require.NoError(t, err)

	result, ok := first.(*resource.AuthenticationResult)
	require.True(t, ok)
	assert.NotSame(t, result.Data(), second.(resource.Resource).Data(), "authentication results skip the identity map")
	assert.Equal(t, accountHref, result.AccountHref())

	store.bodies[accountHref] = iam.Map{"href": accountHref, "givenName": "Luke"}

	account, err := result.Account(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Luke", account.GivenName())

	tenant, err := factory.Create(resource.KindTenant, iam.Map{"href": "https://api.example/v1/tenants/t", "name": "t"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &resource.Tenant{}, tenant)
}

func TestFactory_PolymorphicKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    resource.Kind
		props   iam.Map
		want    resource.Kind
		wantErr error
	}{
		{name: "sms factor", kind: resource.KindFactor, props: iam.Map{"href": "f1", "type": "SMS"}, want: resource.KindSMSFactor},
		{name: "google factor", kind: resource.KindFactor, props: iam.Map{"href": "f2", "type": "google-authenticator"}, want: resource.KindGoogleAuthenticator},
		{name: "unknown factor", kind: resource.KindFactor, props: iam.Map{"href": "f3", "type": "EMAIL"}, wantErr: resource.ErrUnresolvableKind},
		{name: "directory store", kind: resource.KindAccountStore, props: iam.Map{"href": directoryHref}, want: resource.KindDirectory},
		{name: "group store", kind: resource.KindAccountStore, props: iam.Map{"href": "https://api.example/v1/groups/g"}, want: resource.KindGroup},
		{name: "unknown store", kind: resource.KindAccountStore, props: iam.Map{"href": "https://api.example/v1/things/x"}, wantErr: resource.ErrUnresolvableKind},
		{name: "unknown kind", kind: "spaceship", props: iam.Map{"href": "x"}, wantErr: resource.ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			factory, _ := newFactory(t)

			obj, err := factory.Create(tt.kind, tt.props, nil)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), string(tt.kind))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, obj.Kind())
		})
	}
}

func TestFactory_LinksChild(t *testing.T) {
	t.Parallel()

	factory, store := newFactory(t)

	customDataHref := accountHref + "/customData"
	store.bodies[customDataHref] = iam.Map{"href": customDataHref, "favoriteColor": "blue"}

	account := createAccount(t, factory, iam.Map{
		"href":       accountHref,
		"givenName":  "Luke",
		"customData": map[string]any{"href": customDataHref},
	})

	customData, err := account.CustomData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, iam.Map{"favoriteColor": "blue"}, customData.Values())
	assert.Same(t, customData.Data(), account.Data().Linked(resource.KindCustomData))

	again, err := account.CustomData(context.Background())
	require.NoError(t, err)
	assert.Same(t, customData.Data(), again.Data())
	assert.Len(t, store.fetched, 1, "linked child is reused")

	require.NoError(t, customData.Remove(context.Background(), "favoriteColor"))
	assert.Equal(t, []string{customDataHref + "#favoriteColor"}, store.deletedFields)

	_, ok := customData.Get("favoriteColor")
	assert.False(t, ok)
}

func TestAccount_Directory(t *testing.T) {
	t.Parallel()

	factory, store := newFactory(t)
	store.bodies[directoryHref] = iam.Map{"href": directoryHref, "name": "Rebels"}

	account := createAccount(t, factory, iam.Map{
		"href":      accountHref,
		"directory": map[string]any{"href": directoryHref},
	})

	directory, err := account.Directory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Rebels", directory.Name())

	orphan := createAccount(t, factory, iam.Map{"href": accountHref + "2"})

	_, err = orphan.Directory(context.Background())
	require.ErrorIs(t, err, resource.ErrMissingHref)
}

func TestResource_SaveAndDelete(t *testing.T) {
	t.Parallel()

	factory, store := newFactory(t)
	account := createAccount(t, factory, iam.Map{"href": accountHref})

	account.SetGivenName("Luke")
	account.SetPassword("secret")

	assert.Equal(t, iam.Map{"givenName": "Luke", "password": "secret"}, account.Data().Dirty())

	require.NoError(t, account.Save(context.Background()))
	require.NoError(t, account.Delete(context.Background()))
	require.Len(t, store.saved, 1)
	require.Len(t, store.deleted, 1)
	assert.Same(t, account.Data(), store.saved[0].Data())

	account.Data().ClearDirty()
	assert.Empty(t, account.Data().Dirty())

	detached := resource.NewFactory(nil, nil, nil)

	res, err := detached.Instantiate(resource.KindAccount)
	require.NoError(t, err)

	unsaved, ok := res.(*resource.Account)
	require.True(t, ok)
	require.ErrorIs(t, unsaved.Save(context.Background()), resource.ErrNoStore)
}

func TestFactory_ClosedIdentityMap(t *testing.T) {
	t.Parallel()

	factory, _ := newFactory(t)
	require.NoError(t, factory.Close())

	_, err := factory.Create(resource.KindAccount, iam.Map{"href": accountHref}, nil)
	require.ErrorIs(t, err, identitymap.ErrDisposed)
}
