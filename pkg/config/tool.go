package config

import (
	"fmt"
	"time"
)

// ToolType identifies the tool type.
type ToolType string

const (
	// ToolTypeMCP is an MCP (Model Context Protocol) toolset.
	ToolTypeMCP ToolType = "mcp"

	// ToolTypeBuiltin is a built-in function tool.
	ToolTypeBuiltin ToolType = "builtin"
)

// ToolConfig configures a tool or toolset.
//
// MCP entries contribute every tool the server exposes (optionally
// filtered); builtin entries name a single registered handler.
//
// Example:
//
//	tools:
//	  docs:
//	    type: mcp
//	    url: https://mcp.example.com/mcp
//	    unattended: [search_docs]
//
//	  watchlist:
//	    type: builtin
//	    handler: watchlist
type ToolConfig struct {
	// Type of tool (mcp, builtin).
	Type ToolType `yaml:"type,omitempty" json:"type,omitempty" mapstructure:"type"`

	// Enabled controls whether the tool is active.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty" mapstructure:"enabled"`

	// Description of the tool.
	Description string `yaml:"description,omitempty" json:"description,omitempty" mapstructure:"description"`

	// URL is the MCP server URL (for type: mcp, HTTP transports).
	URL string `yaml:"url,omitempty" json:"url,omitempty" mapstructure:"url"`

	// Transport specifies the MCP transport (stdio, sse, streamable-http).
	// Auto-detected from URL/Command when empty.
	Transport string `yaml:"transport,omitempty" json:"transport,omitempty" mapstructure:"transport"`

	// Command starts a subprocess MCP server (stdio transport).
	Command string `yaml:"command,omitempty" json:"command,omitempty" mapstructure:"command"`

	// Args for the stdio subprocess.
	Args []string `yaml:"args,omitempty" json:"args,omitempty" mapstructure:"args"`

	// Env for the stdio subprocess.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty" mapstructure:"env"`

	// Filter limits which tools are exposed from an MCP server.
	Filter []string `yaml:"filter,omitempty" json:"filter,omitempty" mapstructure:"filter"`

	// Unattended lists MCP tool names that run without approval.
	// Every other tool from the server is gated.
	Unattended []string `yaml:"unattended,omitempty" json:"unattended,omitempty" mapstructure:"unattended"`

	// MaxRetries for MCP HTTP requests.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" mapstructure:"max_retries"`

	// SSETimeout bounds MCP SSE response reads.
	SSETimeout time.Duration `yaml:"sse_timeout,omitempty" json:"sse_timeout,omitempty" mapstructure:"sse_timeout"`

	// InsecureSkipVerify disables TLS verification for MCP HTTP
	// transports. Development only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty" json:"insecure_skip_verify,omitempty" mapstructure:"insecure_skip_verify"`

	// CACertificate is a path to a PEM bundle for MCP servers signed by
	// a private CA.
	CACertificate string `yaml:"ca_certificate,omitempty" json:"ca_certificate,omitempty" mapstructure:"ca_certificate"`

	// Handler is the builtin handler name (for type: builtin).
	// Values: "watchlist" (the session-state watchlist tools) and
	// "files" (read_file, write_file, delete_file under WorkingDir).
	Handler string `yaml:"handler,omitempty" json:"handler,omitempty" mapstructure:"handler"`

	// WorkingDir roots the "files" handler. Empty means the process
	// working directory.
	WorkingDir string `yaml:"working_dir,omitempty" json:"working_dir,omitempty" mapstructure:"working_dir"`

	// RequireApproval overrides the handler's approval requirement.
	// Gated tools suspend the run until a human decides.
	RequireApproval *bool `yaml:"require_approval,omitempty" json:"require_approval,omitempty" mapstructure:"require_approval"`
}

// SetDefaults applies default values.
func (c *ToolConfig) SetDefaults() {
	if c.Type == "" {
		if c.Handler != "" {
			c.Type = ToolTypeBuiltin
		} else {
			c.Type = ToolTypeMCP
		}
	}

	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}

	if c.Type == ToolTypeMCP && c.Transport == "" {
		// Auto-detect transport
		if c.Command != "" {
			c.Transport = "stdio"
		} else if c.URL != "" {
			c.Transport = "streamable-http"
		}
	}
}

// Validate checks the tool configuration.
func (c *ToolConfig) Validate() error {
	switch c.Type {
	case ToolTypeMCP:
		if c.URL == "" && c.Command == "" {
			return fmt.Errorf("mcp tool requires url or command")
		}
	case ToolTypeBuiltin:
		if c.Handler == "" {
			return fmt.Errorf("builtin tool requires handler")
		}
	default:
		return fmt.Errorf("invalid tool type %q (valid: mcp, builtin)", c.Type)
	}
	return nil
}

// IsEnabled returns whether the tool is enabled.
func (c *ToolConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
