package auth

import (
	"testing"

	"github.com/reins-ai/reins/pkg/config"
)

func TestNewValidatorFromConfig_Disabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.AuthConfig
	}{
		{name: "nil_config", cfg: nil},
		{name: "disabled", cfg: &config.AuthConfig{Enabled: false, JWKSURL: "https://example.com/jwks.json"}},
		{name: "enabled_without_jwks_url", cfg: &config.AuthConfig{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator, err := NewValidatorFromConfig(tt.cfg)
			if err != nil {
				t.Fatalf("NewValidatorFromConfig() error = %v, want nil", err)
			}
			if validator != nil {
				t.Error("NewValidatorFromConfig() expected nil validator when auth is disabled")
			}
		})
	}
}

func TestNewValidatorFromConfig_Enabled(t *testing.T) {
	_, publicKey := generateRSAKeyPair(t)
	jwksURL := newJWKSServer(t, createJWKS(t, publicKey))

	validator, err := NewValidatorFromConfig(&config.AuthConfig{
		Enabled:  true,
		JWKSURL:  jwksURL,
		Issuer:   "https://test-issuer.com",
		Audience: "reins-api",
	})
	if err != nil {
		t.Fatalf("NewValidatorFromConfig() error = %v, want nil", err)
	}
	if validator == nil {
		t.Fatal("NewValidatorFromConfig() returned nil validator")
	}
	validator.Close()
}
