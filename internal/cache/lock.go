package cache

import (
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/skyline93/stash/internal/fs"
)

// ErrLockTimeout is returned when an advisory lock could not be acquired
// within the configured wait.
var ErrLockTimeout = errors.New("timed out waiting for cache lock")

// flock is an advisory file lock. Lock files are created next to the cache
// data and deliberately never removed: deleting a lock file another process
// may be blocked on reintroduces the race the lock exists to prevent.
type flock struct {
	f *os.File
}

// acquireLock takes an exclusive (or shared) advisory lock on path, polling
// with backoff until timeout.
func acquireLock(path string, exclusive bool, timeout time.Duration) (*flock, error) {
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "open lock file")
	}

	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = timeout

	err = backoff.Retry(func() error {
		err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, bo)
	if err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errors.Wrapf(ErrLockTimeout, "%s", path)
		}
		return nil, errors.Wrap(err, "flock")
	}

	return &flock{f: f}, nil
}

// release drops the lock.
func (l *flock) release() error {
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	cerr := l.f.Close()
	if err == nil {
		err = cerr
	}
	return err
}
