// Package lock provides advisory whole-file locks used to serialize work on
// a path between processes.
package lock

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

var ErrAlreadyLocked = errors.New("file already locked")

// Lock takes an exclusive flock(2) on path, creating the file if needed, and
// blocks until the lock is granted.
//
// You should always Close the returned io.Closer; it releases the lock. The
// file is left in place so that concurrent lockers always agree on the inode.
func Lock(path string) (io.Closer, error) {
	return lock(path, unix.LOCK_EX)
}

// TryLock is like Lock but returns ErrAlreadyLocked instead of waiting when
// the lock is held elsewhere.
func TryLock(path string) (io.Closer, error) {
	return lock(path, unix.LOCK_EX|unix.LOCK_NB)
}

func lock(path string, how int) (io.Closer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	for {
		err = unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrAlreadyLocked
		}
		return nil, &os.PathError{Op: "flock", Path: path, Err: err}
	}
	return &unLocker{f: f}, nil
}

type unLocker struct {
	f *os.File
}

// Close releases the lock by closing the only descriptor holding it.
func (u *unLocker) Close() error {
	return u.f.Close()
}
