package layer

import (
	"context"

	"github.com/containerd/log"
	"github.com/moby/sys/userns"
	"github.com/tuvix/tuvix/daemon/graphdriver/overlayutils"
	"github.com/tuvix/tuvix/internal/fstype"
	"golang.org/x/sys/unix"
)

// BindState is the observed state of one bind.
type BindState struct {
	Name     string
	Target   string
	Attached bool
}

// State is the observed composition state of a store.
type State struct {
	Root string
	// Mounted reports whether the union is mounted on the merged directory.
	Mounted bool
	// FSType is the type of the filesystem mounted on the merged
	// directory, which is "overlay" unless something else took its place.
	FSType string
	// Layers is the composition recorded in the mount table.
	Layers overlayutils.Options
	Binds  []BindState

	BackingFS fstype.FsMagic
	// Available is the space available on the store's filesystem, in bytes.
	Available uint64
	UserNS    bool
}

// Inspect reports the composition state of a store using the same checks
// Compose and Decompose base their decisions on. It changes nothing.
func Inspect(ctx context.Context, opts Options, storeRoot string) (*State, error) {
	m := newMounter(opts)
	root, err := ResolveStoreRoot(storeRoot)
	if err != nil {
		return nil, err
	}

	st := &State{Root: root.Path(), UserNS: userns.RunningInUserNS()}

	merged := root.Merged()
	info, err := m.Inspector.MountInfo(merged)
	if err != nil {
		return nil, &MountTableError{Path: merged, Err: err}
	}
	if info != nil {
		st.Mounted = true
		st.FSType = info.FSType
		st.Layers = overlayutils.ParseOptions(info.VFSOptions)
	}

	for _, b := range m.Binds {
		target := root.MergedDir(b.Name)
		attached, err := m.Inspector.HasMarker(target, b.Marker)
		if err != nil {
			return nil, err
		}
		st.Binds = append(st.Binds, BindState{Name: b.Name, Target: target, Attached: attached})
	}

	if st.BackingFS, err = fstype.GetFSMagic(root.Path()); err != nil {
		log.G(ctx).WithError(err).Debug("failed to detect backing filesystem")
	}
	var sfs unix.Statfs_t
	if err := unix.Statfs(root.Path(), &sfs); err != nil {
		log.G(ctx).WithError(err).Debug("failed to stat store filesystem")
	} else {
		st.Available = sfs.Bavail * uint64(sfs.Bsize)
	}
	return st, nil
}
