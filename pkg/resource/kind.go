package resource

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fivetwenty-io/iam/pkg/iam"
)

// Kind identifies a resource type. Collection kinds carry an item kind in
// their descriptor.
type Kind string

// Resource kinds.
const (
	KindAccount                  Kind = "account"
	KindApplication              Kind = "application"
	KindDirectory                Kind = "directory"
	KindGroup                    Kind = "group"
	KindGroupMembership          Kind = "groupMembership"
	KindOrganization             Kind = "organization"
	KindTenant                   Kind = "tenant"
	KindCustomData               Kind = "customData"
	KindAccountStoreMapping      Kind = "accountStoreMapping"
	KindAccountStore             Kind = "accountStore"
	KindFactor                   Kind = "factor"
	KindSMSFactor                Kind = "smsFactor"
	KindGoogleAuthenticator      Kind = "googleAuthenticatorFactor"
	KindPhone                    Kind = "phone"
	KindChallenge                Kind = "challenge"
	KindProvider                 Kind = "provider"
	KindProviderData             Kind = "providerData"
	KindOAuthPolicy              Kind = "oAuthPolicy"
	KindAccessToken              Kind = "accessToken"
	KindRefreshToken             Kind = "refreshToken"
	KindEmailVerificationToken   Kind = "emailVerificationToken"
	KindEmailVerificationRequest Kind = "emailVerificationRequest"
	KindPasswordResetToken       Kind = "passwordResetToken"
	KindAuthenticationResult     Kind = "authenticationResult"
	KindProviderAccountResult    Kind = "providerAccountResult"

	KindAccountCollection             Kind = "accountCollection"
	KindApplicationCollection         Kind = "applicationCollection"
	KindDirectoryCollection           Kind = "directoryCollection"
	KindGroupCollection               Kind = "groupCollection"
	KindGroupMembershipCollection     Kind = "groupMembershipCollection"
	KindOrganizationCollection        Kind = "organizationCollection"
	KindAccountStoreMappingCollection Kind = "accountStoreMappingCollection"
	KindFactorCollection              Kind = "factorCollection"
	KindPhoneCollection               Kind = "phoneCollection"
	KindChallengeCollection           Kind = "challengeCollection"
)

// Factor discriminator values.
const (
	FactorTypeSMS                 = "SMS"
	FactorTypeGoogleAuthenticator = "GOOGLE-AUTHENTICATOR"
)

// Status values shared by accounts, applications, directories and groups.
const (
	StatusEnabled    = "ENABLED"
	StatusDisabled   = "DISABLED"
	StatusUnverified = "UNVERIFIED"
)

// Policy controls how the factory shares Data through the identity map.
type Policy int

const (
	// PolicyShared entries are deduplicated and expire when idle.
	PolicyShared Policy = iota
	// PolicySkip entries bypass the identity map entirely.
	PolicySkip
	// PolicyPinned entries are deduplicated and never expire.
	PolicyPinned
)

// Constructor builds a typed wrapper over shared Data.
type Constructor func(*Data) Resource

// Resolver picks a concrete kind for an abstract one from a body.
type Resolver func(props iam.Map) (Kind, error)

// Descriptor is the registration record for one kind.
type Descriptor struct {
	Kind Kind
	// Region is the cache region for the kind. Empty means never cached.
	Region string
	// Item is the element kind of a collection kind.
	Item       Kind
	Extendable bool
	Policy     Policy
	// Resolve is set on abstract kinds only.
	Resolve Resolver
	New     Constructor
}

// IsCollection reports whether the descriptor describes a collection page.
func (d *Descriptor) IsCollection() bool {
	return d.Item != ""
}

// Registry maps kinds to descriptors and response property names to the kind
// of resource they embed.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[Kind]*Descriptor
	properties  map[string]Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[Kind]*Descriptor),
		properties:  make(map[string]Kind),
	}
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(descriptor Descriptor) error {
	if descriptor.Kind == "" {
		return ErrKindRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.descriptors[descriptor.Kind] = &descriptor

	return nil
}

// RegisterProperty maps a response attribute name to the kind it embeds.
func (r *Registry) RegisterProperty(name string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.properties[name] = kind
}

// Lookup returns the descriptor for kind.
func (r *Registry) Lookup(kind Kind) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptor, ok := r.descriptors[kind]

	return descriptor, ok
}

// KindForProperty returns the kind embedded under a response attribute.
func (r *Registry) KindForProperty(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kind, ok := r.properties[name]

	return kind, ok
}

// Resolve returns the concrete descriptor for kind, following abstract
// resolvers with props.
func (r *Registry) Resolve(kind Kind, props iam.Map) (*Descriptor, error) {
	descriptor, ok := r.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	seen := map[Kind]bool{kind: true}

	for descriptor.Resolve != nil {
		concrete, err := descriptor.Resolve(props)
		if err != nil {
			return nil, err
		}

		if seen[concrete] {
			return nil, fmt.Errorf("%w: %q resolves to itself", ErrUnknownKind, concrete)
		}

		seen[concrete] = true

		descriptor, ok = r.Lookup(concrete)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, concrete)
		}
	}

	return descriptor, nil
}

// DefaultRegistry returns a new registry holding every built-in kind.
//
//nolint:funlen
func DefaultRegistry() *Registry {
	r := NewRegistry()

	single := []Descriptor{
		{Kind: KindAccount, Region: "accounts", Extendable: true, New: newAccount},
		{Kind: KindApplication, Region: "applications", Extendable: true, New: newApplication},
		{Kind: KindDirectory, Region: "directories", Extendable: true, New: newDirectory},
		{Kind: KindGroup, Region: "groups", Extendable: true, New: newGroup},
		{Kind: KindOrganization, Region: "organizations", Extendable: true, New: newOrganization},
		{Kind: KindTenant, Region: "tenants", Extendable: true, Policy: PolicyPinned, New: newTenant},
		{Kind: KindCustomData, Region: "customData", New: newCustomData},
		{Kind: KindGroupMembership, Region: "groupMemberships", New: newGeneric},
		{Kind: KindAccountStoreMapping, Region: "accountStoreMappings", New: newGeneric},
		{Kind: KindAccountStore, Resolve: resolveAccountStore},
		{Kind: KindFactor, Resolve: resolveFactor},
		{Kind: KindSMSFactor, Region: "factors", New: newFactor},
		{Kind: KindGoogleAuthenticator, Region: "factors", New: newFactor},
		{Kind: KindPhone, Region: "phones", New: newGeneric},
		{Kind: KindChallenge, Region: "challenges", New: newGeneric},
		{Kind: KindProvider, Region: "providers", New: newGeneric},
		{Kind: KindProviderData, Region: "providerData", New: newGeneric},
		{Kind: KindOAuthPolicy, Region: "oAuthPolicies", New: newGeneric},
		{Kind: KindAccessToken, Region: "accessTokens", New: newGeneric},
		{Kind: KindRefreshToken, Region: "refreshTokens", New: newGeneric},
		{Kind: KindEmailVerificationToken, Policy: PolicySkip, New: newGeneric},
		{Kind: KindEmailVerificationRequest, Policy: PolicySkip, New: newGeneric},
		{Kind: KindPasswordResetToken, Policy: PolicySkip, New: newGeneric},
		{Kind: KindAuthenticationResult, Policy: PolicySkip, New: newAuthenticationResult},
		{Kind: KindProviderAccountResult, Policy: PolicySkip, New: newAuthenticationResult},
	}

	collections := map[Kind]Kind{
		KindAccountCollection:             KindAccount,
		KindApplicationCollection:         KindApplication,
		KindDirectoryCollection:           KindDirectory,
		KindGroupCollection:               KindGroup,
		KindGroupMembershipCollection:     KindGroupMembership,
		KindOrganizationCollection:        KindOrganization,
		KindAccountStoreMappingCollection: KindAccountStoreMapping,
		KindFactorCollection:              KindFactor,
		KindPhoneCollection:               KindPhone,
		KindChallengeCollection:           KindChallenge,
	}

	for _, descriptor := range single {
		_ = r.Register(descriptor)
	}

	for kind, item := range collections {
		_ = r.Register(Descriptor{Kind: kind, Item: item})
	}

	properties := map[string]Kind{
		"directory":                  KindDirectory,
		"tenant":                     KindTenant,
		"customData":                 KindCustomData,
		"providerData":               KindProviderData,
		"defaultAccountStoreMapping": KindAccountStoreMapping,
		"defaultGroupStoreMapping":   KindAccountStoreMapping,
		"accountStore":               KindAccountStore,
		"provider":                   KindProvider,
		"account":                    KindAccount,
		"group":                      KindGroup,
		"application":                KindApplication,
		"organization":               KindOrganization,
		"oAuthPolicy":                KindOAuthPolicy,
		"mostRecentChallenge":        KindChallenge,
		"phone":                      KindPhone,
		"groups":                     KindGroupCollection,
		"groupMemberships":           KindGroupMembershipCollection,
		"accountMemberships":         KindGroupMembershipCollection,
		"accounts":                   KindAccountCollection,
		"accountStoreMappings":       KindAccountStoreMappingCollection,
		"applications":               KindApplicationCollection,
		"directories":                KindDirectoryCollection,
		"organizations":              KindOrganizationCollection,
		"factors":                    KindFactorCollection,
		"phones":                     KindPhoneCollection,
		"challenges":                 KindChallengeCollection,
	}

	for name, kind := range properties {
		r.RegisterProperty(name, kind)
	}

	return r
}

func resolveFactor(props iam.Map) (Kind, error) {
	value, _ := props["type"].(string)

	switch strings.ToUpper(value) {
	case FactorTypeSMS:
		return KindSMSFactor, nil
	case FactorTypeGoogleAuthenticator:
		return KindGoogleAuthenticator, nil
	default:
		return "", fmt.Errorf("%w: factor type %q", ErrUnresolvableKind, value)
	}
}

func resolveAccountStore(props iam.Map) (Kind, error) {
	href, _ := props[HrefProperty].(string)

	switch {
	case strings.Contains(href, "/directories/"):
		return KindDirectory, nil
	case strings.Contains(href, "/groups/"):
		return KindGroup, nil
	case strings.Contains(href, "/organizations/"):
		return KindOrganization, nil
	default:
		return "", fmt.Errorf("%w: account store href %q", ErrUnresolvableKind, href)
	}
}
