//go:build unix

package fdio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// LockMode selects a shared or exclusive advisory lock.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

func (m LockMode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// Lock takes an advisory flock(2) lock on f, blocking until it is granted.
//
// Locks belong to the open file description, so two handles opened
// separately on the same path contend even inside one process.
func Lock(f *os.File, mode LockMode) error {
	how := unix.LOCK_SH
	if mode == Exclusive {
		how = unix.LOCK_EX
	}

	for {
		err := unix.Flock(int(f.Fd()), how)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("flock %s %s: %w", mode, f.Name(), err)
		}
		return nil
	}
}

// Unlock releases a lock taken with Lock.
func Unlock(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("unlock %s: %w", f.Name(), err)
	}
	return nil
}

// WithLock runs fn while holding a lock of the given mode on f. The lock is
// released on every path, including when fn panics.
func WithLock(f *os.File, mode LockMode, fn func() error) (err error) {
	if err := Lock(f, mode); err != nil {
		return err
	}
	defer func() {
		if uerr := Unlock(f); uerr != nil && err == nil {
			err = uerr
		}
	}()
	return fn()
}
