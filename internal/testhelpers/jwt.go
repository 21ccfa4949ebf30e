package testhelpers

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

// GenerateJWK generates an RSA 2048-bit key pair for JWT signing/verification.
func GenerateJWK(t *testing.T) *jose.JSONWebKey {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate private key")

	return &jose.JSONWebKey{
		Key:       privateKey,
		KeyID:     "test-kid",
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}
}

// JWKS returns the JSON public key set for key, suitable for static JWKS
// configuration.
func JWKS(t *testing.T, key *jose.JSONWebKey) string {
	t.Helper()

	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{key.Public()}}
	b, err := json.Marshal(set)
	require.NoError(t, err, "failed to marshal JWKS")

	return string(b)
}

// CreateJWT signs a JWT with the provided key. Claims are merged in order;
// the issuer is always set.
func CreateJWT(t *testing.T, key *jose.JSONWebKey, issuer string, claims ...any) string {
	t.Helper()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err, "failed to create signer")

	builder := josejwt.Signed(signer).Claims(josejwt.Claims{Issuer: issuer})
	for _, c := range claims {
		builder = builder.Claims(c)
	}

	signed, err := builder.Serialize()
	require.NoError(t, err, "failed to sign JWT")

	return signed
}

// SetupJWKSServer creates a mock OIDC provider server that serves JWKS.
// The server responds to:
// - /.well-known/openid-configuration (OIDC discovery)
// - /.well-known/jwks.json (public key set)
//
// The server is closed when the test completes.
func SetupJWKSServer(t *testing.T, key *jose.JSONWebKey) *httptest.Server {
	t.Helper()

	var server *httptest.Server

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			WriteJSON(w, struct {
				Issuer  string `json:"issuer"`
				JWKSURI string `json:"jwks_uri"`
			}{
				Issuer:  server.URL + "/",
				JWKSURI: server.URL + "/.well-known/jwks.json",
			})
		case "/.well-known/jwks.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(JWKS(t, key)))
		default:
			http.Error(w, "unexpected JWKS server request: "+r.URL.String(), http.StatusInternalServerError)
		}
	})

	server = httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return server
}

// ValidClaims sets valid timing fields (IssuedAt, NotBefore, Expiry) on
// claims. The token is valid from 1 minute ago until 1 minute from now.
func ValidClaims(claims josejwt.Claims) josejwt.Claims {
	now := time.Now().UTC()

	claims.IssuedAt = josejwt.NewNumericDate(now)
	claims.NotBefore = josejwt.NewNumericDate(now.Add(-1 * time.Minute))
	claims.Expiry = josejwt.NewNumericDate(now.Add(1 * time.Minute))

	return claims
}
