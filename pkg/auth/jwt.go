package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DefaultRefreshInterval is how often the JWKS is refreshed when the
// config does not say otherwise. Providers rotate keys rarely; 15
// minutes keeps rotation lag bounded without hammering the endpoint.
const DefaultRefreshInterval = 15 * time.Minute

// TokenValidator validates bearer tokens and returns the claims they
// carry.
type TokenValidator interface {
	// ValidateToken verifies the token's signature and registered claims.
	ValidateToken(ctx context.Context, token string) (*Claims, error)

	// Close stops any background refresh.
	Close()
}

// JWTValidatorConfig configures a JWTValidator.
type JWTValidatorConfig struct {
	// JWKSURL is the provider's key-set endpoint. Required.
	JWKSURL string

	// Issuer is matched against the iss claim when set.
	Issuer string

	// Audience is matched against the aud claim when set.
	Audience string

	// RefreshInterval bounds how often the JWKS is re-fetched.
	RefreshInterval time.Duration
}

// JWTValidator validates JWT tokens signed by an external identity
// provider. The provider's JWKS is cached and refreshed in the
// background so key rotation needs no restart.
type JWTValidator struct {
	cfg    JWTValidatorConfig
	cache  *jwk.Cache
	cancel context.CancelFunc
}

// NewJWTValidator builds a validator and performs an initial JWKS fetch,
// so a misconfigured endpoint fails at startup rather than on the first
// request.
func NewJWTValidator(cfg JWTValidatorConfig) (*JWTValidator, error) {
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("jwks_url is required")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(cfg.RefreshInterval)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", cfg.JWKSURL, err)
	}

	return &JWTValidator{cfg: cfg, cache: cache, cancel: cancel}, nil
}

// ValidateToken verifies the token signature against the cached JWKS and
// validates expiry plus the configured issuer and audience.
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.cfg.JWKSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return claimsFromToken(token), nil
}

// Close stops the background JWKS refresh. Tokens already in flight keep
// validating against the cached key set.
func (v *JWTValidator) Close() {
	v.cancel()
}

func claimsFromToken(token jwt.Token) *Claims {
	claims := &Claims{
		Subject: token.Subject(),
		Custom:  make(map[string]any),
	}

	for key, value := range token.PrivateClaims() {
		if s, ok := value.(string); ok {
			switch key {
			case "email":
				claims.Email = s
				continue
			case "role":
				claims.Role = s
				continue
			case "tenant_id":
				claims.TenantID = s
				continue
			}
		}
		claims.Custom[key] = value
	}

	return claims
}

var _ TokenValidator = (*JWTValidator)(nil)
