package layer

import (
	"context"

	"github.com/containerd/log"
	"github.com/pkg/errors"
)

// Decomposer tears down the merged view of a store.
type Decomposer struct {
	mounter
}

// NewDecomposer returns a Decomposer using opts.
func NewDecomposer(opts Options) *Decomposer {
	return &Decomposer{mounter: newMounter(opts)}
}

// Decompose detaches the binds, last attached first, then unmounts the union
// mount. Binds live inside the union view and have to go before it. Each
// step re-reads the current state and is skipped when there is nothing to
// undo, so Decompose can be repeated and resumes a teardown that failed
// half-way. The store's directories are left in place.
func (d *Decomposer) Decompose(ctx context.Context, storeRoot string) error {
	root, err := ResolveStoreRoot(storeRoot)
	if err != nil {
		return err
	}
	ctx = log.WithLogger(ctx, log.G(ctx).WithField("store", root.Path()))

	l, err := d.lock(root)
	if err != nil {
		return errors.Wrapf(err, "failed to lock store %s", root.Path())
	}
	defer l.Close()

	for i := len(d.Binds) - 1; i >= 0; i-- {
		if err := d.detach(ctx, root, d.Binds[i]); err != nil {
			return err
		}
	}

	merged := root.Merged()
	mounted, err := d.isMountPoint(merged)
	if err != nil {
		return err
	}
	if !mounted {
		log.G(ctx).WithField("target", merged).Debug("union not mounted")
		return nil
	}
	return d.unmount(ctx, merged)
}

func (d *Decomposer) detach(ctx context.Context, root StoreRoot, b Bind) error {
	target := root.MergedDir(b.Name)
	attached, err := d.Inspector.HasMarker(target, b.Marker)
	if err != nil {
		return err
	}
	if !attached {
		log.G(ctx).WithField("target", target).Debug("bind not attached")
		return nil
	}
	return d.unmount(ctx, target)
}
