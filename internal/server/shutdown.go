package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// ShutdownHooks collects the resources released when the server stops. Hooks
// run once, in registration order, and a failing hook does not stop the rest.
// It is safe for concurrent use.
type ShutdownHooks struct {
	mu    sync.Mutex
	hooks []hook
}

// AddContext registers a hook that receives the shutdown context, which
// carries the shutdown deadline. Nil hooks are ignored.
func (s *ShutdownHooks) AddContext(name string, fn func(context.Context) error) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log.Debug().Str("hook", name).Msg("adding shutdown hook")
	s.hooks = append(s.hooks, hook{name: name, fn: fn})
}

// Add registers a hook that does not need the shutdown context.
func (s *ShutdownHooks) Add(name string, fn func() error) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.AddContext(name, func(context.Context) error {
		return fn()
	})
}

// AddCloser registers c.Close as a hook.
func (s *ShutdownHooks) AddCloser(name string, c interface{ Close() error }) {
	if c == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.Add(name, c.Close)
}

// Execute runs the registered hooks and returns their failures joined. The
// hooks are removed as they are taken, so a second call does nothing.
func (s *ShutdownHooks) Execute(ctx context.Context) error {
	s.mu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	l := log.Ctx(ctx)

	var errs []error
	for _, h := range hooks {
		hookLog := l.With().Str("hook", h.name).Logger()

		start := time.Now()
		err := h.fn(ctx)
		elapsed := time.Since(start)

		if err != nil {
			hookLog.Warn().Err(err).Dur("elapsed", elapsed).Msg("shutdown failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		hookLog.Info().Dur("elapsed", elapsed).Msg("shutdown complete")
	}

	return errors.Join(errs...)
}

// Len reports the number of hooks waiting to run.
func (s *ShutdownHooks) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.hooks)
}
