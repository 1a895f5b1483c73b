package mount

import (
	"os"
	"path/filepath"

	"github.com/moby/sys/mountinfo"
	"github.com/moby/sys/symlink"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Inspector answers questions about the current mount state. Implementations
// keep no state between calls: every answer is read fresh from the system.
type Inspector interface {
	// IsMountPoint reports whether path is the target of an entry in the
	// live mount table. Only exact target matches count; mounts nested
	// below path do not.
	IsMountPoint(path string) (bool, error)

	// MountInfo returns the topmost mount table entry whose target is
	// exactly path, or nil if path is not a mount point.
	MountInfo(path string) (*mountinfo.Info, error)

	// HasMarker reports whether the file marker exists below dir. It is
	// used as a proxy for "a bind mount is attached on dir".
	HasMarker(dir, marker string) (bool, error)
}

// TableInspector is the Inspector backed by /proc/self/mountinfo.
type TableInspector struct {
	// GetMounts lists mount table entries accepted by a filter. It
	// defaults to mountinfo.GetMounts.
	GetMounts func(mountinfo.FilterFunc) ([]*mountinfo.Info, error)
}

// NewInspector returns an Inspector reading the live mount table.
func NewInspector() *TableInspector {
	return &TableInspector{GetMounts: mountinfo.GetMounts}
}

// MountInfo scans the mount table for an entry targeting path. When several
// mounts are stacked on path the last one, which is the visible one, wins.
func (i *TableInspector) MountInfo(path string) (*mountinfo.Info, error) {
	getMounts := i.GetMounts
	if getMounts == nil {
		getMounts = mountinfo.GetMounts
	}
	mounts, err := getMounts(func(m *mountinfo.Info) (skip, stop bool) {
		return m.Mountpoint != path, false
	})
	if err != nil {
		return nil, errors.Wrap(err, "error reading mount table")
	}
	if len(mounts) == 0 {
		return nil, nil
	}
	return mounts[len(mounts)-1], nil
}

func (i *TableInspector) IsMountPoint(path string) (bool, error) {
	info, err := i.MountInfo(path)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// HasMarker resolves marker inside the scope of dir, so a symlink planted in
// a layer cannot redirect the check to a host path, and reports whether it
// exists. A missing dir is reported as an absent marker.
func (i *TableInspector) HasMarker(dir, marker string) (bool, error) {
	p, err := symlink.FollowSymlinkInScope(filepath.Join(dir, marker), dir)
	if err != nil {
		if errors.Is(err, unix.ENOTDIR) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to resolve %s in %s", marker, dir)
	}
	if _, err := os.Lstat(p); err != nil {
		if os.IsNotExist(err) || errors.Is(err, unix.ENOTDIR) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
