package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/tuvix/tuvix/layer"
	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"
)

// runCommand runs tuvix-mount with an empty configuration file and returns
// what it wrote on stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	conf := fs.NewFile(t, "config", fs.WithContent(`{}`))
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", conf.Path()}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	mErr := &layer.MountError{Command: "umount /store/merged", Target: "/store/merged", Err: unix.EBUSY}
	assert.Check(t, is.Equal(exitCode(mErr), 32))
	assert.Check(t, is.Equal(exitCode(errors.Wrap(mErr, "compose")), 32))
	assert.Check(t, is.Equal(exitCode(&layer.PreconditionError{Path: "/x", Err: unix.ENOENT}), 1))
	assert.Check(t, is.Equal(exitCode(errors.New("boom")), 1))
}

func TestArgs(t *testing.T) {
	tests := []struct {
		args        []string
		expectedErr string
	}{
		{args: []string{"compose", "/store"}, expectedErr: "requires at least 2 arg(s), only received 1"},
		{args: []string{"decompose"}, expectedErr: "accepts 1 arg(s), received 0"},
		{args: []string{"decompose", "/a", "/b"}, expectedErr: "accepts 1 arg(s), received 2"},
		{args: []string{"status"}, expectedErr: "accepts 1 arg(s), received 0"},
		{args: []string{"hash"}, expectedErr: "accepts 1 arg(s), received 0"},
	}
	for _, tc := range tests {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			_, err := runCommand(t, tc.args...)
			assert.Check(t, is.ErrorContains(err, tc.expectedErr))
		})
	}
}

func TestHash(t *testing.T) {
	f := fs.NewFile(t, "description", fs.WithContent(""))
	out, err := runCommand(t, "hash", f.Path())
	assert.NilError(t, err)
	assert.Check(t, is.Equal(out, "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e\n"))
}

func TestInvalidConfiguration(t *testing.T) {
	_, err := runCommand(t, "--log-level", "verbose", "hash", "-")
	assert.Check(t, is.ErrorContains(err, "invalid logging level: verbose"))

	_, err = runCommand(t, "--overlay-opt", "workdir=/tmp", "hash", "-")
	assert.Check(t, is.ErrorContains(err, "managed by the store"))
}

func TestMissingConfigurationFile(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.json"), "hash", "-"})
	err := cmd.ExecuteContext(context.Background())
	assert.Check(t, is.ErrorContains(err, "unable to configure tuvix-mount"))
}

func TestComposeDryRun(t *testing.T) {
	dir := fs.NewDir(t, "store", fs.WithDir("abc123"))
	store, err := filepath.EvalSymlinks(dir.Path())
	assert.NilError(t, err)
	base := fs.NewDir(t, "base")
	basePath, err := filepath.EvalSymlinks(base.Path())
	assert.NilError(t, err)

	out, err := runCommand(t, "--dry-run", "--overlay-opt", "index=off", "--dev-source", "/srv/dev", "compose", store, "abc123", basePath)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(out, strings.Join([]string{
		"mount -t overlay -o lowerdir=" + basePath + ":" + store + "/special,upperdir=" + store + "/abc123,workdir=" + store + "/working,index=off overlay " + store + "/merged",
		"mount --bind /proc " + store + "/merged/proc",
		"mount --bind /srv/dev " + store + "/merged/dev",
	}, "\n")+"\n"))

	out, err = runCommand(t, "--dry-run", "decompose", store)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(out, ""))
}

func TestComposeMissingAncestor(t *testing.T) {
	dir := fs.NewDir(t, "store", fs.WithDir("abc123"))
	_, err := runCommand(t, "--dry-run", "compose", dir.Path(), "abc123", "/layers/does-not-exist")
	var pErr *layer.PreconditionError
	assert.Check(t, errors.As(err, &pErr))
	assert.Check(t, is.Equal(exitCode(err), 1))
}

func TestStatus(t *testing.T) {
	dir := fs.NewDir(t, "store", fs.WithDir("abc123"))
	store, err := filepath.EvalSymlinks(dir.Path())
	assert.NilError(t, err)

	out, err := runCommand(t, "status", store)
	assert.NilError(t, err)
	assert.Check(t, is.Contains(out, "Store:"))
	assert.Check(t, is.Contains(out, store))
	assert.Check(t, is.Contains(out, "not mounted"))
	assert.Check(t, is.Contains(out, "detached ("+store+"/merged/proc)"))
}
