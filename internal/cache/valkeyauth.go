package cache

import (
	"github.com/valkey-io/valkey-go"
)

// StaticCredentialsFn returns an AuthCredentialsFn that always returns the
// configured username and password. With no password configured, no
// credentials are sent.
func StaticCredentialsFn(username, password string) func(valkey.AuthCredentialsContext) (valkey.AuthCredentials, error) {
	return func(valkey.AuthCredentialsContext) (valkey.AuthCredentials, error) {
		if password == "" {
			return valkey.AuthCredentials{}, nil
		}
		return valkey.AuthCredentials{
			Username: username,
			Password: password,
		}, nil
	}
}
