package config

import (
	"fmt"

	"github.com/reins-ai/reins/pkg/observability"
)

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Host to bind to.
	Host string `yaml:"host,omitempty" json:"host,omitempty" mapstructure:"host"`

	// Port to listen on.
	Port int `yaml:"port,omitempty" json:"port,omitempty" mapstructure:"port"`

	// TLS configuration.
	TLS *TLSConfig `yaml:"tls,omitempty" json:"tls,omitempty" mapstructure:"tls"`

	// CORS configuration.
	CORS *CORSConfig `yaml:"cors,omitempty" json:"cors,omitempty" mapstructure:"cors"`

	// Auth configures JWT-based authentication.
	Auth *AuthConfig `yaml:"auth,omitempty" json:"auth,omitempty" mapstructure:"auth"`

	// Sessions configures conversation persistence.
	Sessions *StorageConfig `yaml:"sessions,omitempty" json:"sessions,omitempty" mapstructure:"sessions"`

	// Runs configures run record persistence.
	Runs *StorageConfig `yaml:"runs,omitempty" json:"runs,omitempty" mapstructure:"runs"`

	// Approvals configures approval requirement persistence. Backing
	// approvals with SQL lets decisions survive a restart while a run
	// is suspended.
	Approvals *StorageConfig `yaml:"approvals,omitempty" json:"approvals,omitempty" mapstructure:"approvals"`

	// Observability configures metrics and tracing.
	Observability *observability.Config `yaml:"observability,omitempty" json:"observability,omitempty" mapstructure:"observability"`
}

// StorageBackend identifies a storage backend type.
type StorageBackend string

const (
	// StorageBackendInMemory uses in-memory storage (default).
	StorageBackendInMemory StorageBackend = "inmemory"

	// StorageBackendSQL uses a SQL database for persistence.
	StorageBackendSQL StorageBackend = "sql"
)

// StorageConfig selects a storage backend for one of the stores.
type StorageConfig struct {
	// Backend specifies the storage backend: "inmemory" (default) or "sql".
	Backend StorageBackend `yaml:"backend,omitempty" json:"backend,omitempty" mapstructure:"backend"`

	// Database references a database from the databases section.
	// Required when Backend is "sql".
	Database string `yaml:"database,omitempty" json:"database,omitempty" mapstructure:"database"`
}

// TLSConfig configures TLS.
type TLSConfig struct {
	// Enabled turns on TLS.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty" mapstructure:"enabled"`

	// CertFile is the path to the certificate.
	CertFile string `yaml:"cert_file,omitempty" json:"cert_file,omitempty" mapstructure:"cert_file"`

	// KeyFile is the path to the private key.
	KeyFile string `yaml:"key_file,omitempty" json:"key_file,omitempty" mapstructure:"key_file"`
}

// CORSConfig configures CORS.
type CORSConfig struct {
	// AllowedOrigins is a list of allowed origins.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty" mapstructure:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods.
	AllowedMethods []string `yaml:"allowed_methods,omitempty" json:"allowed_methods,omitempty" mapstructure:"allowed_methods"`

	// AllowedHeaders is a list of allowed headers.
	AllowedHeaders []string `yaml:"allowed_headers,omitempty" json:"allowed_headers,omitempty" mapstructure:"allowed_headers"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}

	// Permissive CORS for development
	if c.CORS == nil {
		c.CORS = &CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}
	}

	if c.Auth != nil {
		c.Auth.SetDefaults()
	}
	if c.Sessions != nil {
		c.Sessions.SetDefaults()
	}
	if c.Runs != nil {
		c.Runs.SetDefaults()
	}
	if c.Approvals != nil {
		c.Approvals.SetDefaults()
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	if c.TLS != nil && BoolValue(c.TLS.Enabled, false) {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls requires cert_file and key_file")
		}
	}

	if c.Auth != nil {
		if err := c.Auth.Validate(); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if c.Sessions != nil {
		if err := c.Sessions.Validate(); err != nil {
			return fmt.Errorf("sessions: %w", err)
		}
	}
	if c.Runs != nil {
		if err := c.Runs.Validate(); err != nil {
			return fmt.Errorf("runs: %w", err)
		}
	}
	if c.Approvals != nil {
		if err := c.Approvals.Validate(); err != nil {
			return fmt.Errorf("approvals: %w", err)
		}
	}

	return nil
}

// Address returns the HTTP server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SetDefaults applies default values.
func (c *StorageConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StorageBackendInMemory
	}
}

// Validate checks the storage configuration.
func (c *StorageConfig) Validate() error {
	if c.Backend != "" && c.Backend != StorageBackendInMemory && c.Backend != StorageBackendSQL {
		return fmt.Errorf("invalid backend %q (valid: inmemory, sql)", c.Backend)
	}
	if c.Backend == StorageBackendSQL && c.Database == "" {
		return fmt.Errorf("database reference is required when backend is sql")
	}
	if c.Database != "" && c.Backend != StorageBackendSQL {
		return fmt.Errorf("database reference requires backend to be sql")
	}
	return nil
}

// IsSQL returns true if using SQL storage.
func (c *StorageConfig) IsSQL() bool {
	return c != nil && c.Backend == StorageBackendSQL
}
