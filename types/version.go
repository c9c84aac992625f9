// Package types holds identifiers shared by the library and the CLI.
//
//nolint:revive // types is a common Go package naming convention
package types

// Version is the canonical library version.
// It is reported in the User-Agent of every request and by `percy version`.
const Version = "1.4.0"

// ClientName is the library token used in the User-Agent client segment.
const ClientName = "percy-go"

// DefaultAPIURL is the API root used when no override is configured.
const DefaultAPIURL = "https://percy.io/api/v1"
