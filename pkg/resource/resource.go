// Package resource is the typed object model over shared resource records:
// kinds and their registry, the shared Data record, wrappers, collection
// pages and the factory that materializes response bodies.
package resource

import (
	"context"
	"fmt"

	"github.com/fivetwenty-io/iam/pkg/iam"
)

// Object is anything the factory produces.
type Object interface {
	Kind() Kind
	Href() string
}

// Resource is a single resource backed by shared Data.
type Resource interface {
	Object
	Data() *Data
}

// Linkable accepts a child record produced on its behalf.
type Linkable interface {
	Link(child *Data)
}

// Notifiable resources are told about every materialization.
type Notifiable interface {
	OnUpdate(props iam.Map, store Store)
}

// Store is the data store as seen by resources.
type Store interface {
	Fetch(ctx context.Context, kind Kind, href string, parent Linkable) (Object, error)
	Save(ctx context.Context, res Resource) error
	Delete(ctx context.Context, res Resource) error
	DeleteProperty(ctx context.Context, href, name string) error
}

type base struct {
	data *Data
}

// Kind returns the concrete kind.
func (b base) Kind() Kind { return b.data.Kind() }

// Href returns the resource href.
func (b base) Href() string { return b.data.Href() }

// Data returns the shared record.
func (b base) Data() *Data { return b.data }

// Save persists pending changes.
func (b base) Save(ctx context.Context) error {
	store := b.data.Store()
	if store == nil {
		return ErrNoStore
	}

	return store.Save(ctx, Resource(b))
}

// Delete removes the resource remotely.
func (b base) Delete(ctx context.Context) error {
	store := b.data.Store()
	if store == nil {
		return ErrNoStore
	}

	return store.Delete(ctx, Resource(b))
}

func fetch[T Resource](ctx context.Context, d *Data, kind Kind, property string, parent Linkable) (T, error) {
	var zero T

	store := d.Store()
	if store == nil {
		return zero, ErrNoStore
	}

	href := d.LinkHref(property)
	if href == "" {
		return zero, fmt.Errorf("%w: %s has no %s link", ErrMissingHref, d.Kind(), property)
	}

	obj, err := store.Fetch(ctx, kind, href, parent)
	if err != nil {
		return zero, err
	}

	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s resolved to %T", ErrUnresolvableKind, property, obj)
	}

	return typed, nil
}

type named struct {
	base
}

func (n named) Name() string { return n.data.String("name") }
func (n named) SetName(name string) { n.data.Set("name", name) }
func (n named) Description() string { return n.data.String("description") }
func (n named) SetDescription(s string) { n.data.Set("description", s) }
func (n named) Status() string { return n.data.String("status") }
func (n named) SetStatus(status string) { n.data.Set("status", status) }

// Account is a user account.
type Account struct {
	base
}

func newAccount(d *Data) Resource { return &Account{base{d}} }

func (a *Account) GivenName() string { return a.data.String("givenName") }
func (a *Account) SetGivenName(name string) { a.data.Set("givenName", name) }
func (a *Account) Surname() string { return a.data.String("surname") }
func (a *Account) SetSurname(name string) { a.data.Set("surname", name) }
func (a *Account) Email() string { return a.data.String("email") }
func (a *Account) SetEmail(email string) { a.data.Set("email", email) }
func (a *Account) Username() string { return a.data.String("username") }
func (a *Account) SetUsername(name string) { a.data.Set("username", name) }
func (a *Account) Status() string { return a.data.String("status") }
func (a *Account) SetStatus(status string) { a.data.Set("status", status) }
func (a *Account) SetPassword(secret string) { a.data.Set(PasswordProperty, secret) }

// Directory fetches the owning directory.
func (a *Account) Directory(ctx context.Context) (*Directory, error) {
	return fetch[*Directory](ctx, a.data, KindDirectory, "directory", nil)
}

// CustomData returns the account's custom data, linked to this account.
func (a *Account) CustomData(ctx context.Context) (*CustomData, error) {
	return customDataOf(ctx, a.data)
}

// Application is a registered application.
type Application struct {
	named
}

func newApplication(d *Data) Resource { return &Application{named{base{d}}} }

// CustomData returns the application's custom data.
func (a *Application) CustomData(ctx context.Context) (*CustomData, error) {
	return customDataOf(ctx, a.data)
}

// Directory is an account store.
type Directory struct {
	named
}

func newDirectory(d *Data) Resource { return &Directory{named{base{d}}} }

// Group is an account store inside a directory.
type Group struct {
	named
}

func newGroup(d *Data) Resource { return &Group{named{base{d}}} }

// Directory fetches the owning directory.
func (g *Group) Directory(ctx context.Context) (*Directory, error) {
	return fetch[*Directory](ctx, g.data, KindDirectory, "directory", nil)
}

// Organization groups account stores under a name key.
type Organization struct {
	named
}

func newOrganization(d *Data) Resource { return &Organization{named{base{d}}} }

func (o *Organization) NameKey() string { return o.data.String("nameKey") }
func (o *Organization) SetNameKey(key string) { o.data.Set("nameKey", key) }

// Tenant is the root of every resource tree.
type Tenant struct {
	base
}

func newTenant(d *Data) Resource { return &Tenant{base{d}} }

func (t *Tenant) Name() string { return t.data.String("name") }
func (t *Tenant) Key() string { return t.data.String("key") }

// CustomData is a free-form key/value blob owned by an extendable resource.
type CustomData struct {
	base
}

func newCustomData(d *Data) Resource { return &CustomData{base{d}} }

// Get returns one key.
func (c *CustomData) Get(key string) (any, bool) { return c.data.Get(key) }

// Put sets one key; Save persists it.
func (c *CustomData) Put(key string, value any) { c.data.Set(key, value) }

// Values returns every user key.
func (c *CustomData) Values() iam.Map {
	values := c.data.Snapshot()
	for _, reserved := range []string{HrefProperty, "createdAt", "modifiedAt"} {
		delete(values, reserved)
	}

	return values
}

// Remove deletes one key remotely and locally.
func (c *CustomData) Remove(ctx context.Context, key string) error {
	store := c.data.Store()
	if store == nil {
		return ErrNoStore
	}

	if err := store.DeleteProperty(ctx, c.Href(), key); err != nil {
		return err
	}

	c.data.Remove(key)

	return nil
}

func customDataOf(ctx context.Context, parent *Data) (*CustomData, error) {
	if child := parent.Linked(KindCustomData); child != nil {
		return &CustomData{base{child}}, nil
	}

	if parent.LinkHref(CustomDataProperty) == "" {
		parent.Update(iam.Map{CustomDataProperty: LinkTo(CustomDataHref(parent.Href()))})
	}

	return fetch[*CustomData](ctx, parent, KindCustomData, CustomDataProperty, parent)
}

// CustomDataHref returns the conventional custom data href of a parent.
func CustomDataHref(parentHref string) string {
	return parentHref + "/" + CustomDataProperty
}

// Factor is a second authentication factor.
type Factor struct {
	base
}

func newFactor(d *Data) Resource { return &Factor{base{d}} }

func (f *Factor) Type() string { return f.data.String("type") }
func (f *Factor) Status() string { return f.data.String("status") }

// AuthenticationResult is the one-shot outcome of a login attempt.
type AuthenticationResult struct {
	base
	accountHref string
	store       Store
}

func newAuthenticationResult(d *Data) Resource { return &AuthenticationResult{base: base{d}} }

// OnUpdate captures the authenticated account reference.
func (r *AuthenticationResult) OnUpdate(props iam.Map, store Store) {
	if account, ok := AsMap(props["account"]); ok {
		r.accountHref = HrefOf(account)
	}

	r.store = store
}

// AccountHref returns the authenticated account's href.
func (r *AuthenticationResult) AccountHref() string { return r.accountHref }

// Account fetches the authenticated account.
func (r *AuthenticationResult) Account(ctx context.Context) (*Account, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}

	if r.accountHref == "" {
		return nil, fmt.Errorf("%w: authentication result has no account", ErrMissingHref)
	}

	obj, err := r.store.Fetch(ctx, KindAccount, r.accountHref, nil)
	if err != nil {
		return nil, err
	}

	account, ok := obj.(*Account)
	if !ok {
		return nil, fmt.Errorf("%w: account resolved to %T", ErrUnresolvableKind, obj)
	}

	return account, nil
}

// Generic wraps kinds without a dedicated type.
type Generic struct {
	base
}

func newGeneric(d *Data) Resource { return &Generic{base{d}} }

// Get returns one property.
func (g *Generic) Get(name string) (any, bool) { return g.data.Get(name) }
