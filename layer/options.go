package layer

import (
	"context"
	"io"

	"github.com/containerd/log"
	"github.com/tuvix/tuvix/mount"
	"github.com/tuvix/tuvix/pkg/lock"
)

// LockFunc acquires exclusive use of a store. Closing the returned value
// releases it.
type LockFunc func(root StoreRoot) (io.Closer, error)

// FileLock is a LockFunc taking an exclusive flock(2) on the store's lock
// file. It blocks until the lock is available.
func FileLock(root StoreRoot) (io.Closer, error) {
	return lock.Lock(root.LockFile())
}

// Options configures a Composer or a Decomposer. Both must be given the same
// Binds for a store, or decompose will not find what compose attached.
type Options struct {
	// Inspector answers mount state questions. Defaults to the live
	// mount table.
	Inspector mount.Inspector
	// Mounter performs the mounts. Defaults to direct system calls.
	Mounter mount.Mounter
	// Binds are attached in order after the union mount, and detached in
	// reverse order before it is unmounted. Defaults to DefaultBinds.
	Binds []Bind
	// OverlayOptions are appended to the union mount options.
	OverlayOptions []string
	// MountLabel is the SELinux context of the union mount, if any.
	MountLabel string
	// Lock, when set, is held for the duration of each operation.
	Lock LockFunc
}

// mounter holds the defaulted Options shared by composition and teardown.
type mounter struct {
	Options
}

func newMounter(opts Options) mounter {
	if opts.Inspector == nil {
		opts.Inspector = mount.NewInspector()
	}
	if opts.Mounter == nil {
		opts.Mounter = mount.SysMounter{}
	}
	if opts.Binds == nil {
		opts.Binds = DefaultBinds()
	}
	return mounter{Options: opts}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (m mounter) lock(root StoreRoot) (io.Closer, error) {
	if m.Lock == nil {
		return nopCloser{}, nil
	}
	return m.Lock(root)
}

func (m mounter) isMountPoint(path string) (bool, error) {
	mounted, err := m.Inspector.IsMountPoint(path)
	if err != nil {
		return false, &MountTableError{Path: path, Err: err}
	}
	return mounted, nil
}

func (m mounter) mount(ctx context.Context, device, target, mType, options string) error {
	cmd := mount.Command(device, target, mType, options)
	log.G(ctx).WithField("command", cmd).Info("mounting")
	if err := m.Mounter.Mount(device, target, mType, options); err != nil {
		return &MountError{Command: cmd, Target: target, Err: err}
	}
	return nil
}

func (m mounter) unmount(ctx context.Context, target string) error {
	cmd := mount.UnmountCommand(target)
	log.G(ctx).WithField("command", cmd).Info("unmounting")
	if err := m.Mounter.Unmount(target); err != nil {
		return &MountError{Command: cmd, Target: target, Err: err}
	}
	return nil
}
