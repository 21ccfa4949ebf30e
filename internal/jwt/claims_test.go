package jwt

import (
	"context"
	"errors"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/stretchr/testify/assert"
)

func TestCallerClaims_Validate(t *testing.T) {
	cases := []struct {
		tenant string
		valid  bool
	}{
		{tenant: "", valid: true},
		{tenant: "contoso.example", valid: true},
		{tenant: "72f988bf-86f1-41af-91ab-2d7cd011db47", valid: true},
		{tenant: "consumers", valid: true},
		{tenant: "-leading-dash", valid: false},
		{tenant: "with space", valid: false},
		{tenant: "path/../traversal", valid: false},
	}

	for _, tc := range cases {
		t.Run(tc.tenant, func(t *testing.T) {
			err := (&CallerClaims{TenantID: tc.tenant}).Validate(context.Background())
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, "malformed tid claim")
			}
		})
	}
}

func TestRegisteredClaimsValidator(t *testing.T) {
	complete := validator.RegisteredClaims{
		Issuer:   "https://issuer.example/",
		Subject:  "user-1",
		Audience: []string{"components"},
		Expiry:   1,
	}

	cases := []struct {
		name   string
		modify func(*validator.RegisteredClaims)
		error  string
	}{
		{name: "complete", modify: func(*validator.RegisteredClaims) {}},
		{name: "no audience", modify: func(c *validator.RegisteredClaims) { c.Audience = nil }, error: "audience"},
		{name: "no issuer", modify: func(c *validator.RegisteredClaims) { c.Issuer = "" }, error: "issuer"},
		{name: "no subject", modify: func(c *validator.RegisteredClaims) { c.Subject = "" }, error: "subject"},
		{name: "no expiry", modify: func(c *validator.RegisteredClaims) { c.Expiry = 0 }, error: "expiry"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := complete
			tc.modify(&reg)

			validate := registeredClaimsValidator(func(ctx context.Context, token string) (interface{}, error) {
				return &validator.ValidatedClaims{RegisteredClaims: reg}, nil
			})

			_, err := validate(context.Background(), "token")
			if tc.error == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.error)
			}
		})
	}

	t.Run("upstream failure", func(t *testing.T) {
		cause := errors.New("bad signature")
		validate := registeredClaimsValidator(func(ctx context.Context, token string) (interface{}, error) {
			return nil, cause
		})
		_, err := validate(context.Background(), "token")
		assert.ErrorIs(t, err, cause)
	})
}
