// This command is only used for local testing: it prints a JWT signed with a
// local development key, so requests can be made against a local server
// configured with the matching static JWKS.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Audience string `env:"UTIL_AUDIENCE, default=chinmina-components"`
	Subject  string `env:"UTIL_SUBJECT, default=test-subject"`
	Issuer   string `env:"UTIL_ISSUER, default=https://local.testing"`
	TenantID string `env:"UTIL_TENANT_ID"`
	Name     string `env:"UTIL_NAME"`
	KeyPath  string `env:"UTIL_KEY_PATH, default=.development/keys/jwk-sig-testing-priv.json"`
}

type callerClaims struct {
	TenantID string `json:"tid,omitempty"`
	Name     string `json:"name,omitempty"`
}

func main() {
	cfg := Config{}
	err := envconfig.Process(context.Background(), &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}

	keyBytes, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading key: %v\n", err)
		os.Exit(1)
	}

	var key jose.JSONWebKey
	if err := key.UnmarshalJSON(keyBytes); err != nil {
		fmt.Fprintf(os.Stderr, "error loading key: %v\n", err)
		os.Exit(1)
	}

	claims := validity(josejwt.Claims{
		Audience: josejwt.Audience{cfg.Audience},
		Subject:  cfg.Subject,
		Issuer:   cfg.Issuer,
	})

	tokenStr, err := createJWT(key, claims, callerClaims{TenantID: cfg.TenantID, Name: cfg.Name})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating JWT: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s", tokenStr)
}

func createJWT(key jose.JSONWebKey, claims ...any) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}

	builder := josejwt.Signed(signer)
	for _, c := range claims {
		builder = builder.Claims(c)
	}

	return builder.Serialize()
}

func validity(claims josejwt.Claims) josejwt.Claims {
	now := time.Now().UTC()

	claims.IssuedAt = josejwt.NewNumericDate(now)
	claims.NotBefore = josejwt.NewNumericDate(now.Add(-1 * time.Minute))
	claims.Expiry = josejwt.NewNumericDate(now.Add(1 * time.Minute))

	return claims
}
