package config

import (
	"fmt"
	"time"
)

// AuthConfig configures JWT-based authentication for the server.
//
// Authentication is disabled by default. When enabled, all endpoints
// except health checks and /metrics require a valid JWT token.
//
// Example:
//
//	server:
//	  auth:
//	    enabled: true
//	    jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	    issuer: "https://auth.example.com"
//	    audience: "reins-api"
//
// The JWT token is passed in the Authorization header:
//
//	Authorization: Bearer <token>
type AuthConfig struct {
	// Enabled controls whether authentication is required.
	// Default: false
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" mapstructure:"enabled"`

	// JWKSURL is the URL to fetch the JSON Web Key Set from.
	// Required when Enabled is true.
	JWKSURL string `yaml:"jwks_url,omitempty" json:"jwks_url,omitempty" mapstructure:"jwks_url"`

	// Issuer is the expected token issuer (iss claim).
	// Required when Enabled is true.
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty" mapstructure:"issuer"`

	// Audience is the expected token audience (aud claim).
	// Required when Enabled is true.
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty" mapstructure:"audience"`

	// RefreshInterval is how often to refresh the JWKS.
	// Default: 15m
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty" json:"refresh_interval,omitempty" mapstructure:"refresh_interval"`

	// ExcludedPaths are paths that don't require authentication.
	// Default: ["/healthz", "/metrics"]
	ExcludedPaths []string `yaml:"excluded_paths,omitempty" json:"excluded_paths,omitempty" mapstructure:"excluded_paths"`

	// RequireAuth when true returns 401 for missing tokens.
	// When false, unauthenticated requests proceed but without claims.
	// Default: true (when Enabled is true)
	RequireAuth *bool `yaml:"require_auth,omitempty" json:"require_auth,omitempty" mapstructure:"require_auth"`
}

// SetDefaults applies default values to AuthConfig.
func (c *AuthConfig) SetDefaults() {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 15 * time.Minute
	}

	if len(c.ExcludedPaths) == 0 {
		c.ExcludedPaths = []string{
			"/healthz",
			"/metrics",
		}
	}

	if c.RequireAuth == nil && c.Enabled {
		c.RequireAuth = BoolPtr(true)
	}
}

// Validate checks the AuthConfig for errors.
func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.JWKSURL == "" {
		return fmt.Errorf("auth.jwks_url is required when auth is enabled")
	}
	if c.Issuer == "" {
		return fmt.Errorf("auth.issuer is required when auth is enabled")
	}
	if c.Audience == "" {
		return fmt.Errorf("auth.audience is required when auth is enabled")
	}
	if c.RefreshInterval < time.Minute {
		return fmt.Errorf("auth.refresh_interval must be at least 1 minute")
	}

	return nil
}

// IsEnabled returns true if authentication is configured and enabled.
func (c *AuthConfig) IsEnabled() bool {
	return c != nil && c.Enabled && c.JWKSURL != "" && c.Issuer != "" && c.Audience != ""
}

// IsRequireAuth returns whether authentication is mandatory.
func (c *AuthConfig) IsRequireAuth() bool {
	if c.RequireAuth == nil {
		return c.Enabled
	}
	return *c.RequireAuth
}
