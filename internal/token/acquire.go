package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// ErrNoToken is returned by Acquire when the fetcher produced no token.
var ErrNoToken = errors.New("no token obtained")

type acquireSettings struct {
	tries   uint
	backOff backoff.BackOff
}

// AcquireOption configures Acquire.
type AcquireOption func(*acquireSettings)

// WithRetries allows up to n additional attempts after an absent result.
func WithRetries(n uint) AcquireOption {
	return func(s *acquireSettings) {
		s.tries = n + 1
	}
}

// WithBackOff sets the delay policy between attempts. Defaults to
// exponential backoff.
func WithBackOff(b backoff.BackOff) AcquireOption {
	return func(s *acquireSettings) {
		s.backOff = b
	}
}

// Acquire invokes f and normalizes its result to a token string. An absent
// result fails with ErrNoToken wrapping the recorded cause. Each attempt uses
// opts unchanged: with Refresh set, an absent result is a failure of that
// attempt and is never answered from a cache.
func Acquire(ctx context.Context, f Fetcher, opts Options, options ...AcquireOption) (string, error) {
	resp, err := AcquireResponse(ctx, f, opts, options...)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// AcquireResponse behaves as Acquire, but keeps the cache origin of the token
// when the fetcher reported one.
func AcquireResponse(ctx context.Context, f Fetcher, opts Options, options ...AcquireOption) (TokenResponse, error) {
	settings := acquireSettings{
		tries:   1,
		backOff: backoff.NewExponentialBackOff(),
	}
	for _, o := range options {
		o(&settings)
	}

	attempt := 0
	operation := func() (TokenResponse, error) {
		attempt++

		result := Safe(f)(ctx, opts)
		resp, ok := result.Response()
		if ok && resp.Token != "" {
			return resp, nil
		}

		if ok {
			return TokenResponse{}, fmt.Errorf("%w: %w", ErrNoToken, ErrEmptyToken)
		}
		if err := result.Err(); err != nil {
			return TokenResponse{}, fmt.Errorf("%w: %w", ErrNoToken, err)
		}
		return TokenResponse{}, ErrNoToken
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(settings.backOff),
		backoff.WithMaxTries(settings.tries),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Ctx(ctx).Info().
				Err(err).
				Int("attempt", attempt).
				Dur("retryIn", next).
				Bool("refresh", opts.Refresh).
				Msg("token fetch attempt failed, retrying")
		}),
	)
	if err != nil {
		if !errors.Is(err, ErrNoToken) {
			// context ended between attempts
			return TokenResponse{}, fmt.Errorf("%w: %w", ErrNoToken, err)
		}
		return TokenResponse{}, err
	}

	return resp, nil
}
