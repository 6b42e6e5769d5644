package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLockTimeout(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "key.lock")
	held, err := acquireLock(path, true, time.Second)
	require.NoError(t, err)
	defer func() { _ = held.release() }()

	// flock conflicts are per open file description, so a second acquire
	// contends even within one process.
	start := time.Now()
	_, err = acquireLock(path, true, 300*time.Millisecond)
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.Less(t, time.Since(start), 10*time.Second, "the wait is bounded")
}

func TestAcquireLockSharedCoexist(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.lock")
	a, err := acquireLock(path, false, time.Second)
	require.NoError(t, err)
	b, err := acquireLock(path, false, time.Second)
	require.NoError(t, err)
	require.NoError(t, a.release())
	require.NoError(t, b.release())
}

func TestAcquireLockAfterRelease(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "key.lock")
	held, err := acquireLock(path, true, time.Second)
	require.NoError(t, err)
	require.NoError(t, held.release())

	again, err := acquireLock(path, true, 300*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, again.release())
}
