package layer

import (
	"context"
	"slices"

	"github.com/containerd/log"
	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"
	"github.com/tuvix/tuvix/daemon/graphdriver/overlayutils"
	"github.com/tuvix/tuvix/internal/fstype"
)

// Composer establishes the merged view of a store.
type Composer struct {
	mounter
}

// NewComposer returns a Composer using opts.
func NewComposer(opts Options) *Composer {
	return &Composer{mounter: newMounter(opts)}
}

// Compose mounts the union of the upper layer named contentHash, the
// ancestor layers and the special layer on the store's merged directory, then
// attaches the binds inside it. Every step is skipped when its result is
// already in place, so Compose may be repeated, or re-run after a partial
// failure, with the same arguments.
//
// An existing union mount is trusted as-is: it is not compared against
// ancestors or contentHash beyond a warning.
//
// All paths are resolved before anything is changed. A mount failure aborts
// Compose without undoing earlier steps; Decompose cleans up.
func (c *Composer) Compose(ctx context.Context, storeRoot, contentHash string, ancestors []string) error {
	root, err := ResolveStoreRoot(storeRoot)
	if err != nil {
		return err
	}
	hash, err := NormalizeHash(contentHash)
	if err != nil {
		return &PreconditionError{Path: contentHash, Err: err}
	}
	upper, err := resolveDir(root.Upper(hash))
	if err != nil {
		return err
	}
	lowers := make([]string, 0, len(ancestors))
	for _, a := range ancestors {
		p, err := resolveDir(a)
		if err != nil {
			return err
		}
		lowers = append(lowers, p)
	}

	stack := NewLayerStack(lowers, root.Special())
	opts, err := overlayutils.MountOptions(stack, upper, root.Working(), c.OverlayOptions, c.MountLabel)
	if err != nil {
		return &PreconditionError{Path: root.Path(), Err: err}
	}

	ctx = log.WithLogger(ctx, log.G(ctx).WithField("store", root.Path()))
	checkBackingFS(ctx, upper)

	l, err := c.lock(root)
	if err != nil {
		return errors.Wrapf(err, "failed to lock store %s", root.Path())
	}
	defer l.Close()

	if err := root.EnsureLayout(c.Binds); err != nil {
		return err
	}
	if err := c.mountUnion(ctx, root, stack, upper, opts); err != nil {
		return err
	}
	for _, b := range c.Binds {
		if err := c.attach(ctx, root, b); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composer) mountUnion(ctx context.Context, root StoreRoot, stack LayerStack, upper, opts string) error {
	merged := root.Merged()
	info, err := c.Inspector.MountInfo(merged)
	if err != nil {
		return &MountTableError{Path: merged, Err: err}
	}
	if info != nil {
		warnOnDrift(ctx, info, stack, upper)
		log.G(ctx).WithField("target", merged).Debug("union already mounted")
		return nil
	}
	return c.mount(ctx, "overlay", merged, "overlay", opts)
}

func (c *Composer) attach(ctx context.Context, root StoreRoot, b Bind) error {
	target := root.MergedDir(b.Name)
	attached, err := c.Inspector.HasMarker(target, b.Marker)
	if err != nil {
		return err
	}
	if attached {
		log.G(ctx).WithField("target", target).Debug("bind already attached")
		return nil
	}
	return c.mount(ctx, b.Source, target, "none", "bind")
}

// warnOnDrift logs when an existing union mount was made from other layers
// than the ones requested.
func warnOnDrift(ctx context.Context, info *mountinfo.Info, stack LayerStack, upper string) {
	if info.FSType != "overlay" {
		log.G(ctx).WithField("fstype", info.FSType).Warn("merged directory is mounted, but not as an overlay")
		return
	}
	mounted := overlayutils.ParseOptions(info.VFSOptions)
	if !slices.Equal(mounted.LowerDirs, []string(stack)) || mounted.UpperDir != upper {
		log.G(ctx).WithFields(log.Fields{
			"mounted-lowerdir":   mounted.LowerDirs,
			"mounted-upperdir":   mounted.UpperDir,
			"requested-lowerdir": []string(stack),
			"requested-upperdir": upper,
		}).Warn("existing union mount differs from the requested layers; keeping it")
	}
}

func checkBackingFS(ctx context.Context, upper string) {
	fsMagic, err := fstype.GetFSMagic(upper)
	if err != nil {
		log.G(ctx).WithError(err).Debug("failed to detect backing filesystem")
		return
	}
	if !fstype.SupportsOverlayUpper(fsMagic) {
		log.G(ctx).WithField("backing-fs", fsMagic.String()).Warn("upper layer is on a filesystem overlay does not support as upper")
	}
}
