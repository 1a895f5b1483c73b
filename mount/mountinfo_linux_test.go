package mount

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"
)

const sampleMountInfo = `22 1 8:1 / / rw,relatime shared:1 - ext4 /dev/sda1 rw
23 22 0:21 / /proc rw,nosuid,nodev,noexec,relatime shared:12 - proc proc rw
110 22 0:50 / /store/merged rw,relatime shared:60 - overlay overlay rw,lowerdir=/layers/base:/store/special,upperdir=/store/abc123,workdir=/store/working
111 110 0:21 / /store/merged/proc rw,nosuid,nodev,noexec,relatime shared:12 - proc proc rw
112 22 0:51 / /other/merged/dev rw,nosuid shared:2 - devtmpfs udev rw
`

func tableInspector(table string) *TableInspector {
	return &TableInspector{
		GetMounts: func(f mountinfo.FilterFunc) ([]*mountinfo.Info, error) {
			return mountinfo.GetMountsFromReader(strings.NewReader(table), f)
		},
	}
}

func TestIsMountPointExactMatch(t *testing.T) {
	i := tableInspector(sampleMountInfo)

	tests := []struct {
		path     string
		expected bool
	}{
		{path: "/store/merged", expected: true},
		{path: "/store/merged/proc", expected: true},
		{path: "/store/merged/dev", expected: false},
		{path: "/other/merged", expected: false},
		{path: "/store", expected: false},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			mounted, err := i.IsMountPoint(tc.path)
			assert.NilError(t, err)
			assert.Check(t, is.Equal(mounted, tc.expected))
		})
	}
}

func TestMountInfo(t *testing.T) {
	info, err := tableInspector(sampleMountInfo).MountInfo("/store/merged")
	assert.NilError(t, err)
	assert.Assert(t, info != nil)
	assert.Check(t, is.Equal(info.FSType, "overlay"))
	assert.Check(t, is.Contains(info.VFSOptions, "upperdir=/store/abc123"))

	info, err = tableInspector(sampleMountInfo).MountInfo("/nowhere")
	assert.NilError(t, err)
	assert.Check(t, is.Nil(info))
}

func TestMountInfoStacked(t *testing.T) {
	table := sampleMountInfo + "120 110 0:60 / /store/merged rw - tmpfs tmpfs rw\n"
	info, err := tableInspector(table).MountInfo("/store/merged")
	assert.NilError(t, err)
	assert.Assert(t, info != nil)
	assert.Check(t, is.Equal(info.FSType, "tmpfs"))
}

func TestMountInfoTableError(t *testing.T) {
	i := &TableInspector{
		GetMounts: func(mountinfo.FilterFunc) ([]*mountinfo.Info, error) {
			return nil, os.ErrPermission
		},
	}
	_, err := i.IsMountPoint("/store/merged")
	assert.Check(t, is.ErrorContains(err, "error reading mount table"))
	assert.Check(t, errors.Is(err, os.ErrPermission))
}

func TestHasMarker(t *testing.T) {
	dir := fs.NewDir(t, "marker",
		fs.WithDir("proc", fs.WithFile("version", "Linux version 6.1\n")),
		fs.WithDir("dev"),
		fs.WithFile("file", ""),
		fs.WithDir("escape", fs.WithSymlink("null", "/dev/null")),
	)
	defer dir.Remove()

	i := NewInspector()
	tests := []struct {
		doc      string
		dir      string
		marker   string
		expected bool
	}{
		{doc: "present", dir: dir.Join("proc"), marker: "version", expected: true},
		{doc: "absent", dir: dir.Join("dev"), marker: "null", expected: false},
		{doc: "missing dir", dir: dir.Join("missing"), marker: "null", expected: false},
		{doc: "dir is a file", dir: dir.Join("file"), marker: "null", expected: false},
		// the symlink resolves to <dir>/escape/dev/null, which does not exist
		{doc: "symlink stays in scope", dir: dir.Join("escape"), marker: "null", expected: false},
	}
	for _, tc := range tests {
		t.Run(tc.doc, func(t *testing.T) {
			present, err := i.HasMarker(tc.dir, tc.marker)
			assert.NilError(t, err)
			assert.Check(t, is.Equal(present, tc.expected))
		})
	}
}

func TestHasMarkerLiveProc(t *testing.T) {
	if _, err := os.Stat("/proc/version"); err != nil {
		t.Skip("no /proc/version on this host")
	}
	present, err := NewInspector().HasMarker("/proc", "version")
	assert.NilError(t, err)
	assert.Check(t, present)

	present, err = NewInspector().HasMarker(filepath.Join(t.TempDir(), "proc"), "version")
	assert.NilError(t, err)
	assert.Check(t, !present)
}
