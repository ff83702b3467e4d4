package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry limits.
const (
	// DefaultRetryMax is the default maximum number of retries.
	DefaultRetryMax = 5

	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second
)

// Service endpoints.
const (
	// DefaultBaseURL is the hosted API root.
	DefaultBaseURL = "https://api.stormpath.com/v1"

	// CurrentTenantPath resolves (by redirect) to the tenant owning the API key.
	CurrentTenantPath = "tenants/current"

	// EmailVerificationTokensPath is the collection verification tokens are posted to.
	EmailVerificationTokensPath = "accounts/emailVerificationTokens"

	// DefaultUserAgent is sent when the caller does not override it.
	DefaultUserAgent = "iam-go/1.0"
)

// Cache defaults.
const (
	// DefaultCacheSize is the maximum number of entries per memory region.
	DefaultCacheSize = 1000

	// DefaultTimeToLive is the default absolute entry lifetime.
	DefaultTimeToLive = 1 * time.Hour

	// DefaultTimeToIdle is the default idle lifetime.
	DefaultTimeToIdle = 1 * time.Hour

	// DefaultNATSBucketPrefix prefixes JetStream KV bucket names.
	DefaultNATSBucketPrefix = "iam"

	// DefaultRedisAddr is used when no address is configured.
	DefaultRedisAddr = "localhost:6379"
)

// Identity map defaults.
const (
	// DefaultIdentityMapExpiration is the sliding lifetime of unpinned entries.
	DefaultIdentityMapExpiration = 10 * time.Minute

	// DefaultIdentityMapSize leaves unpinned entries unbounded; they leave
	// the map only by expiring.
	DefaultIdentityMapSize = 0
)

// Paging.
const (
	// DefaultPageLimit is the page size used when a query does not set one.
	DefaultPageLimit = 25

	// MaxPageLimit is the largest page the service will return.
	MaxPageLimit = 100
)

// Format constants.
const (
	// FormatJSON for JSON output format.
	FormatJSON = "json"

	// FormatYAML for YAML output format.
	FormatYAML = "yaml"

	// FormatTable for table output format.
	FormatTable = "table"
)

// UI and display constants.
const (
	// NotAvailable is used when information is not available.
	NotAvailable = "N/A"

	// MaskedSecret is used to hide sensitive information.
	MaskedSecret = "***"
)

// CLI.
const (
	// ConfigDirName is the per-user configuration directory under $HOME.
	ConfigDirName = ".iam"

	// ConfigFileName is the configuration file inside ConfigDirName.
	ConfigFileName = "config.yml"

	// EnvPrefix prefixes environment variables that override configuration.
	EnvPrefix = "IAM"

	// MinimumArgumentCount is the argument count of KEY VALUE commands.
	MinimumArgumentCount = 2
)
