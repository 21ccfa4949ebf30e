package jwt

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
)

// registeredClaimsValidator ensures that the basic claims that we rely on are
// part of the supplied claims. The core validation enforces the active and
// expiry dates: this simply ensures that they're present.
func registeredClaimsValidator(next jwtmiddleware.ValidateToken) jwtmiddleware.ValidateToken {
	return func(ctx context.Context, token string) (interface{}, error) {
		claims, err := next(ctx, token)
		if err != nil {
			return nil, err
		}

		validatedClaims, ok := claims.(*validator.ValidatedClaims)
		if !ok {
			return nil, fmt.Errorf("could not cast claims to validator.ValidatedClaims")
		}

		reg := validatedClaims.RegisteredClaims

		if len(reg.Audience) == 0 {
			return nil, errors.New("audience claim not present")
		}

		if reg.Issuer == "" {
			return nil, errors.New("issuer claim not present")
		}

		if reg.Subject == "" {
			return nil, errors.New("subject claim not present")
		}

		if reg.Expiry == 0 {
			return nil, errors.New("token has no expiry")
		}

		return claims, nil
	}
}

// tenantPattern accepts GUIDs and DNS-like tenant names.
var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.-]{0,253}$`)

// CallerClaims are the non-registered claims read from a caller's token.
type CallerClaims struct {
	// TenantID is the caller's home tenant. Token requests without an explicit
	// tenant are issued for it.
	TenantID string `json:"tid"`

	// Name is a display name for the caller, recorded in the audit log.
	Name string `json:"name"`
}

// Validate rejects a malformed tenant. The tenant is optional: consumer
// identities carry none.
func (c *CallerClaims) Validate(ctx context.Context) error {
	if c.TenantID != "" && !tenantPattern.MatchString(c.TenantID) {
		return fmt.Errorf("malformed tid claim: %q", c.TenantID)
	}
	return nil
}

func callerCustomClaims() func() validator.CustomClaims {
	return func() validator.CustomClaims {
		return &CallerClaims{}
	}
}
