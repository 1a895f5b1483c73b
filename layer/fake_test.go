package layer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/moby/sys/mountinfo"
	"github.com/tuvix/tuvix/mount"
	"gotest.tools/v3/assert"
)

// fakeSystem is an in-memory mount table with a Mounter acting on it. It
// mimics what the kernel makes visible on disk: an overlay mount exposes the
// special layer's placeholders, and a bind exposes its marker.
type fakeSystem struct {
	t       *testing.T
	binds   []Bind
	mounts  []*mountinfo.Info
	calls   []string
	failOn  string
	failErr error
	readErr error
}

func newFakeSystem(t *testing.T) *fakeSystem {
	return &fakeSystem{t: t, binds: DefaultBinds()}
}

func (f *fakeSystem) options() Options {
	return Options{
		Inspector: &mount.TableInspector{GetMounts: f.getMounts},
		Mounter:   f,
		Binds:     f.binds,
	}
}

func (f *fakeSystem) getMounts(filter mountinfo.FilterFunc) ([]*mountinfo.Info, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	var out []*mountinfo.Info
	for _, m := range f.mounts {
		skip, stop := false, false
		if filter != nil {
			skip, stop = filter(m)
		}
		if !skip {
			out = append(out, m)
		}
		if stop {
			break
		}
	}
	return out, nil
}

func (f *fakeSystem) Mount(device, target, mType, options string) error {
	f.calls = append(f.calls, mount.Command(device, target, mType, options))
	if f.failErr != nil && target == f.failOn {
		return f.failErr
	}
	f.mounts = append(f.mounts, &mountinfo.Info{Mountpoint: target, FSType: mType, Source: device, VFSOptions: options})

	if mType == "overlay" {
		for _, b := range f.binds {
			assert.NilError(f.t, os.MkdirAll(filepath.Join(target, b.Name), 0o755))
		}
		return nil
	}
	for _, b := range f.binds {
		if b.Source == device {
			assert.NilError(f.t, os.WriteFile(filepath.Join(target, b.Marker), nil, 0o644))
		}
	}
	return nil
}

func (f *fakeSystem) Unmount(target string) error {
	f.calls = append(f.calls, mount.UnmountCommand(target))
	if f.failErr != nil && target == f.failOn {
		return f.failErr
	}
	for i := len(f.mounts) - 1; i >= 0; i-- {
		m := f.mounts[i]
		if m.Mountpoint != target {
			continue
		}
		f.mounts = append(f.mounts[:i], f.mounts[i+1:]...)
		if m.FSType == "overlay" {
			entries, err := os.ReadDir(target)
			assert.NilError(f.t, err)
			for _, e := range entries {
				assert.NilError(f.t, os.RemoveAll(filepath.Join(target, e.Name())))
			}
			return nil
		}
		for _, b := range f.binds {
			if b.Source == m.Source {
				assert.NilError(f.t, os.Remove(filepath.Join(target, b.Marker)))
			}
		}
		return nil
	}
	return nil
}

func (f *fakeSystem) mountpoints() []string {
	var out []string
	for _, m := range f.mounts {
		out = append(out, m.Mountpoint)
	}
	return out
}

func (f *fakeSystem) resetCalls() {
	f.calls = nil
}
