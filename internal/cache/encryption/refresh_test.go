package encryption

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tink-crypto/tink-go/v2/tink"
)

type namedAEAD struct {
	tink.AEAD
	name string
}

func testAEAD(t *testing.T, name string) *namedAEAD {
	t.Helper()

	a, err := NewTestAEAD()
	require.NoError(t, err)
	return &namedAEAD{AEAD: a, name: name}
}

func (r *RefreshableAEAD) current() tink.AEAD {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.aead
}

func TestRefreshableAEAD_InitialLoadFailure(t *testing.T) {
	loadErr := errors.New("keyset unreadable")

	r, err := newRefreshableAEAD(context.Background(), func(context.Context) (tink.AEAD, error) {
		return nil, loadErr
	}, time.Hour)

	assert.Nil(t, r)
	assert.ErrorIs(t, err, loadErr)
}

func TestRefreshableAEAD_RefreshReplacesAEAD(t *testing.T) {
	first := testAEAD(t, "first")
	second := testAEAD(t, "second")

	var calls atomic.Int32
	loader := func(context.Context) (tink.AEAD, error) {
		if calls.Add(1) == 1 {
			return first, nil
		}
		return second, nil
	}

	r, err := newRefreshableAEAD(context.Background(), loader, 10*time.Millisecond)
	require.NoError(t, err)
	defer func() { assert.NoError(t, r.Close()) }()

	require.Eventually(t, func() bool {
		return r.current() == tink.AEAD(second)
	}, time.Second, 5*time.Millisecond)
}

func TestRefreshableAEAD_FailureKeepsCurrent(t *testing.T) {
	original := testAEAD(t, "original")

	var calls atomic.Int32
	loader := func(context.Context) (tink.AEAD, error) {
		if calls.Add(1) == 1 {
			return original, nil
		}
		return nil, errors.New("transient")
	}

	r, err := newRefreshableAEAD(context.Background(), loader, 5*time.Millisecond)
	require.NoError(t, err)
	defer func() { assert.NoError(t, r.Close()) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Same(t, tink.AEAD(original), r.current())

	ct, err := r.Encrypt([]byte("x"), nil)
	require.NoError(t, err)
	pt, err := r.Decrypt(ct, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), pt)
}

func TestRefreshableAEAD_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyset.json")
	require.NoError(t, WriteKeysetFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := NewRefreshableAEADFromFile(ctx, path, time.Hour)
	require.NoError(t, err)

	// unchanged file: the loader reports nothing new
	next, err := r.loader(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}

func TestRefreshableAEAD_MissingFile(t *testing.T) {
	_, err := NewRefreshableAEADFromFile(context.Background(), filepath.Join(t.TempDir(), "none.json"), time.Hour)
	assert.ErrorIs(t, err, ErrKeysetFile)
}
