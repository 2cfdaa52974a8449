package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrWouldBlock is returned when another ledger process holds the store
	// lock and it did not come free before the timeout.
	ErrWouldBlock = errors.New("lock would block")

	// ErrInvalidTimeout is returned for a negative lock timeout.
	ErrInvalidTimeout = errors.New("invalid lock timeout")

	// errInodeMismatch means the lock file at path is no longer the one we
	// flocked, e.g. someone deleted .locks/ while we waited.
	errInodeMismatch = errors.New("inode mismatch")
)

// Wait between attempts while another process holds the store lock. The
// first retry comes quickly because most holders are short CLI commands.
const (
	lockPollMin = 2 * time.Millisecond
	lockPollMax = 50 * time.Millisecond
)

const (
	lockFilePerm = 0o600
	lockDirPerm  = 0o750

	// A run of EINTRs this long means something is wrong with the process,
	// not that flock is still worth retrying.
	flockEINTRRetries = 128
)

// Locker takes the exclusive store lock (flock(2)) that a ledger holds from
// Open until Close, so only one process writes a store directory at a time.
//
// flock locks an inode. The lock file is therefore never replaced or
// removed by the ledger, and Locker re-checks after every flock that the
// file at path is still the inode it locked.
//
// Each Lock call opens its own descriptor, so a second ledger opened on the
// same directory inside one process is refused just like another process.
// Unix only.
type Locker struct {
	fs    FS
	flock func(fd int, how int) error
}

// NewLocker returns a Locker that creates lock files through fs.
func NewLocker(fs FS) *Locker {
	return &Locker{
		fs:    fs,
		flock: unix.Flock,
	}
}

// Lock is a held store lock.
type Lock struct {
	mu    sync.Mutex
	file  File
	flock func(fd int, how int) error
}

// Close unlocks and closes the lock file. Calling it again returns nil.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	fd := int(lk.file.Fd())

	unlockErr := flockRetryEINTR(lk.flock, fd, unix.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlock store: %w", unlockErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("close lock file: %w", closeErr)
	}

	return errors.Join(unlockErr, closeErr)
}

// TryLock takes the lock at path if it is free right now.
func (l *Locker) TryLock(path string) (*Lock, error) {
	return l.LockWithTimeout(path, 0)
}

// LockWithTimeout takes the lock at path, retrying until timeout has passed.
// A zero timeout makes a single attempt. The lock file and its directory are
// created on first use.
//
// While the lock stays held elsewhere the error matches [ErrWouldBlock].
func (l *Locker) LockWithTimeout(path string, timeout time.Duration) (*Lock, error) {
	if timeout < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeout, timeout)
	}

	deadline := time.Now().Add(timeout)
	wait := lockPollMin

	for {
		file, err := l.openLockFile(path)
		if err != nil {
			return nil, fmt.Errorf("open lock file: %w", err)
		}

		err = l.acquire(file, path)
		if err == nil {
			return &Lock{file: file, flock: l.flock}, nil
		}

		_ = file.Close()

		if !errors.Is(err, ErrWouldBlock) && !errors.Is(err, errInodeMismatch) {
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if timeout == 0 {
				return nil, ErrWouldBlock
			}

			return nil, fmt.Errorf("%w: store still locked after %s", ErrWouldBlock, timeout)
		}

		time.Sleep(min(wait, remaining))

		wait = min(wait*2, lockPollMax)
	}
}

// acquire flocks file without blocking. On any failure file is left
// unlocked; closing it is up to the caller.
func (l *Locker) acquire(file File, path string) error {
	fd := int(file.Fd())

	err := flockRetryEINTR(l.flock, fd, unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return ErrWouldBlock
		}

		return fmt.Errorf("flock: %w", err)
	}

	same, err := sameInode(path, fd)
	if err != nil || !same {
		_ = flockRetryEINTR(l.flock, fd, unix.LOCK_UN)

		if err != nil && !errors.Is(err, unix.ENOENT) {
			return fmt.Errorf("stat lock file: %w", err)
		}

		return errInodeMismatch
	}

	return nil
}

func (l *Locker) openLockFile(path string) (File, error) {
	f, err := l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return f, err
	}

	err = l.fs.MkdirAll(filepath.Dir(path), lockDirPerm)
	if err != nil {
		return nil, err
	}

	return l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
}

// sameInode reports whether fd and path name the same file.
func sameInode(path string, fd int) (bool, error) {
	var locked unix.Stat_t
	if err := unix.Fstat(fd, &locked); err != nil {
		return false, err
	}

	var onDisk unix.Stat_t
	if err := unix.Stat(path, &onDisk); err != nil {
		return false, err
	}

	return locked.Dev == onDisk.Dev && locked.Ino == onDisk.Ino, nil
}

// flockRetryEINTR calls flock again while it fails with EINTR, at most
// flockEINTRRetries times.
func flockRetryEINTR(flock func(fd int, how int) error, fd int, how int) error {
	var err error
	for range flockEINTRRetries {
		err = flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
