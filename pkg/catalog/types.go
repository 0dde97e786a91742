// Package catalog loads the list of remote flows a host exposes over HTTP.
package catalog

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/morezero/flow-functions/pkg/cors"
)

// Catalog is the top-level flow catalog file.
type Catalog struct {
	Name        string  `json:"name" yaml:"name"`
	Version     string  `json:"version" yaml:"version"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Flows       []Entry `json:"flows" yaml:"flows"`
}

// Entry describes one flow and how its trigger is exposed.
type Entry struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Streaming   bool     `json:"streaming,omitempty" yaml:"streaming,omitempty"`
	Debug       bool     `json:"debug,omitempty" yaml:"debug,omitempty"`
	AuthLevel   string   `json:"authLevel,omitempty" yaml:"authLevel,omitempty"`
	Route       string   `json:"route,omitempty" yaml:"route,omitempty"`
	Methods     []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	// TimeoutMs bounds a remote execution. Zero uses the host default.
	TimeoutMs int        `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
	CORS      *CORSEntry `json:"cors,omitempty" yaml:"cors,omitempty"`
	Auth      *AuthEntry `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// CORSEntry is the catalog form of a cors.Policy.
type CORSEntry struct {
	Disabled      bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Origin        string   `json:"origin,omitempty" yaml:"origin,omitempty"`
	Origins       []string `json:"origins,omitempty" yaml:"origins,omitempty"`
	Methods       []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	Headers       []string `json:"headers,omitempty" yaml:"headers,omitempty"`
	ExposeHeaders []string `json:"exposeHeaders,omitempty" yaml:"exposeHeaders,omitempty"`
	Credentials   bool     `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	MaxAge        int      `json:"maxAge,omitempty" yaml:"maxAge,omitempty"`
}

// AuthEntry selects the authorization primitives guarding a flow. All
// configured primitives must pass.
type AuthEntry struct {
	// APIKeyHeader defaults to X-API-Key when APIKey or APIKeyStore is set.
	APIKeyHeader string `json:"apiKeyHeader,omitempty" yaml:"apiKeyHeader,omitempty"`
	// APIKey is a static expected key.
	APIKey string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	// APIKeyStore validates the key against the database.
	APIKeyStore bool `json:"apiKeyStore,omitempty" yaml:"apiKeyStore,omitempty"`
	// Bearer requires an Authorization bearer token known to the key store.
	Bearer bool `json:"bearer,omitempty" yaml:"bearer,omitempty"`
	// RequiredHeaders must be present on every request.
	RequiredHeaders []string `json:"requiredHeaders,omitempty" yaml:"requiredHeaders,omitempty"`
	// MinClientVersion is the lowest accepted client version, or a full semver
	// constraint such as "^1.2 || >= 2.1".
	MinClientVersion string `json:"minClientVersion,omitempty" yaml:"minClientVersion,omitempty"`
	// VersionHeader defaults to X-Client-Version.
	VersionHeader string `json:"versionHeader,omitempty" yaml:"versionHeader,omitempty"`
}

// Default header names.
const (
	DefaultAPIKeyHeader  = "X-API-Key"
	DefaultVersionHeader = "X-Client-Version"
)

// Policy converts the entry to a cors.Policy. A nil entry is the permissive
// default.
func (c *CORSEntry) Policy() *cors.Policy {
	if c == nil {
		return nil
	}
	return &cors.Policy{
		Disabled:       c.Disabled,
		Origin:         c.Origin,
		AllowedOrigins: c.Origins,
		Methods:        c.Methods,
		Headers:        c.Headers,
		ExposeHeaders:  c.ExposeHeaders,
		Credentials:    c.Credentials,
		MaxAge:         c.MaxAge,
	}
}

// KeyHeader returns the configured API key header or the default.
func (a *AuthEntry) KeyHeader() string {
	if a.APIKeyHeader != "" {
		return a.APIKeyHeader
	}
	return DefaultAPIKeyHeader
}

// ClientVersionHeader returns the configured version header or the default.
func (a *AuthEntry) ClientVersionHeader() string {
	if a.VersionHeader != "" {
		return a.VersionHeader
	}
	return DefaultVersionHeader
}

// NeedsKeyStore reports whether the entry validates against the key store.
func (a *AuthEntry) NeedsKeyStore() bool {
	return a != nil && (a.APIKeyStore || a.Bearer)
}

// VersionConstraint returns the client version constraint. A bare version is
// a minimum.
func (a *AuthEntry) VersionConstraint() string {
	v := strings.TrimSpace(a.MinClientVersion)
	if v == "" {
		return ""
	}
	if _, err := semver.NewVersion(v); err == nil {
		return ">= " + v
	}
	return v
}
