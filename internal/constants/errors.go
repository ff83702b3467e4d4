package constants

import "errors"

// Configuration errors.
var (
	ErrNoBaseURL          = errors.New("no base URL configured, use 'iam config set base_url <url>'")
	ErrNoAPIKey           = errors.New("no API key configured, use 'iam login' to store one")
	ErrUnknownConfigKey   = errors.New("unknown configuration key")
	ErrInvalidOutput      = errors.New("invalid output format")
	ErrInvalidWhereClause = errors.New("invalid --where clause, expected field=value")
)

// CLI errors.
var (
	ErrKeyRequired = errors.New("key is required")
)
