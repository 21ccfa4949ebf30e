package encryption

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tink-crypto/tink-go/v2/tink"
)

// aeadLoader loads an AEAD when the key material has changed. It returns a
// nil AEAD (and no error) when the current key material is still in use.
type aeadLoader func(ctx context.Context) (tink.AEAD, error)

// RefreshableAEAD wraps a tink.AEAD and periodically reloads it, so a rotated
// keyset takes effect without a restart. A failed reload is logged and the
// current keyset stays in use.
type RefreshableAEAD struct {
	mu     sync.RWMutex
	aead   tink.AEAD
	loader aeadLoader
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewRefreshableAEADFromFile loads the keyset at path and checks it for
// changes every interval. The keyset is only re-read when the file's
// modification time or size changes.
func NewRefreshableAEADFromFile(ctx context.Context, path string, interval time.Duration) (*RefreshableAEAD, error) {
	var lastMod time.Time
	var lastSize int64 = -1

	loader := func(ctx context.Context) (tink.AEAD, error) {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeysetFile, err)
		}
		if info.ModTime().Equal(lastMod) && info.Size() == lastSize {
			return nil, nil
		}

		a, err := NewAEADFromKeysetFile(path)
		if err != nil {
			return nil, err
		}

		lastMod, lastSize = info.ModTime(), info.Size()
		return a, nil
	}

	return newRefreshableAEAD(ctx, loader, interval)
}

func newRefreshableAEAD(ctx context.Context, loader aeadLoader, interval time.Duration) (*RefreshableAEAD, error) {
	initial, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if initial == nil {
		return nil, fmt.Errorf("%w: no keyset loaded", ErrKeysetFile)
	}

	r := &RefreshableAEAD{
		aead:   initial,
		loader: loader,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go r.refreshLoop(ctx, interval)

	return r, nil
}

// Encrypt delegates to the current AEAD under a read lock.
func (r *RefreshableAEAD) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.aead.Encrypt(plaintext, associatedData)
}

// Decrypt delegates to the current AEAD under a read lock.
func (r *RefreshableAEAD) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.aead.Decrypt(ciphertext, associatedData)
}

// Close stops the refresh goroutine and waits for it to exit. It is safe to
// call more than once.
func (r *RefreshableAEAD) Close() error {
	r.once.Do(func() { close(r.stopCh) })
	<-r.doneCh
	return nil
}

func (r *RefreshableAEAD) refreshLoop(ctx context.Context, interval time.Duration) {
	defer close(r.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *RefreshableAEAD) refresh(ctx context.Context) {
	next, err := r.loader(ctx)
	if err != nil {
		log.Warn().
			Err(err).
			Msg("failed to refresh encryption keyset, continuing with current keyset")
		return
	}
	if next == nil {
		return
	}

	r.mu.Lock()
	r.aead = next
	r.mu.Unlock()

	log.Info().Msg("encryption keyset reloaded")
}
