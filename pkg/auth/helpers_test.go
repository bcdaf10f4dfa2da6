package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const testKeyID = "test-key-id"

func generateRSAKeyPair(t testing.TB) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	return privateKey, &privateKey.PublicKey
}

func createJWKS(t testing.TB, publicKey *rsa.PublicKey) jwk.Set {
	t.Helper()

	key, err := jwk.FromRaw(publicKey)
	if err != nil {
		t.Fatalf("Failed to create JWK: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, testKeyID); err != nil {
		t.Fatalf("Failed to set key ID: %v", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		t.Fatalf("Failed to set algorithm: %v", err)
	}

	keyset := jwk.NewSet()
	if err := keyset.AddKey(key); err != nil {
		t.Fatalf("Failed to add key to set: %v", err)
	}
	return keyset
}

// newJWKSServer serves the key set at /.well-known/jwks.json and returns
// the full JWKS URL. The server is closed when the test finishes.
func newJWKSServer(t testing.TB, keyset jwk.Set) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(keyset)
	}))
	t.Cleanup(server.Close)

	return server.URL + "/.well-known/jwks.json"
}

func createTestJWT(t testing.TB, privateKey *rsa.PrivateKey, issuer, audience, subject string, claims map[string]any) string {
	t.Helper()

	token := jwt.New()
	setClaim(t, token, jwt.IssuerKey, issuer)
	setClaim(t, token, jwt.AudienceKey, audience)
	setClaim(t, token, jwt.SubjectKey, subject)
	setClaim(t, token, jwt.IssuedAtKey, time.Now())
	setClaim(t, token, jwt.ExpirationKey, time.Now().Add(time.Hour))
	for key, value := range claims {
		setClaim(t, token, key, value)
	}

	return signTestJWT(t, privateKey, token)
}

func createExpiredJWT(t testing.TB, privateKey *rsa.PrivateKey, issuer, audience, subject string) string {
	t.Helper()

	token := jwt.New()
	setClaim(t, token, jwt.IssuerKey, issuer)
	setClaim(t, token, jwt.AudienceKey, audience)
	setClaim(t, token, jwt.SubjectKey, subject)
	setClaim(t, token, jwt.IssuedAtKey, time.Now().Add(-2*time.Hour))
	setClaim(t, token, jwt.ExpirationKey, time.Now().Add(-time.Hour))

	return signTestJWT(t, privateKey, token)
}

func setClaim(t testing.TB, token jwt.Token, key string, value any) {
	t.Helper()

	if err := token.Set(key, value); err != nil {
		t.Fatalf("Failed to set claim %s: %v", key, err)
	}
}

func signTestJWT(t testing.TB, privateKey *rsa.PrivateKey, token jwt.Token) string {
	t.Helper()

	key, err := jwk.FromRaw(privateKey)
	if err != nil {
		t.Fatalf("Failed to create signing key: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, testKeyID); err != nil {
		t.Fatalf("Failed to set key ID: %v", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return string(signed)
}

func setupTestValidator(t testing.TB) (*JWTValidator, *rsa.PrivateKey, string, string, string) {
	t.Helper()

	privateKey, publicKey := generateRSAKeyPair(t)
	jwksURL := newJWKSServer(t, createJWKS(t, publicKey))
	issuer := "https://test-issuer.com"
	audience := "test-audience"

	validator, err := NewJWTValidator(JWTValidatorConfig{
		JWKSURL:  jwksURL,
		Issuer:   issuer,
		Audience: audience,
	})
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	t.Cleanup(validator.Close)

	return validator, privateKey, issuer, audience, jwksURL
}
