// Package layer composes the merged root filesystem of a store and tears it
// down again.
//
// A store root holds the writable layer of one filesystem, named by its
// content hash, next to the directories the composition needs:
//
//	<root>/
//	  <hash>/      writable upper layer, managed by the store builder
//	  working/     overlay work directory
//	  special/     lowest read-only layer: proc/, dev/ and tmp/
//	  merged/      mount point of the composed view
//
// No state is kept outside the filesystem and the kernel mount table, so
// compose and decompose can be re-run after a crash and resume wherever the
// previous attempt stopped. They do not serialize against each other;
// callers running them concurrently on one store must hold an external lock
// (see Options.Lock).
package layer

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

const (
	workingDirName = "working"
	specialDirName = "special"
	mergedDirName  = "merged"
	tmpDirName     = "tmp"
	lockFileName   = ".tuvix.lock"
)

// Bind is a live host tree attached into the merged view.
type Bind struct {
	// Name is the directory receiving the bind, both below merged/ and,
	// as an empty placeholder, below special/.
	Name string
	// Source is the host directory to bind.
	Source string
	// Marker is a file that exists below the target only while the bind
	// is attached.
	Marker string
}

// Binds returns the process information and device binds, in attach order.
func Binds(procSource, devSource string) []Bind {
	return []Bind{
		{Name: "proc", Source: procSource, Marker: "version"},
		{Name: "dev", Source: devSource, Marker: "null"},
	}
}

// DefaultBinds binds the host's /proc and /dev.
func DefaultBinds() []Bind {
	return Binds("/proc", "/dev")
}

// StoreRoot is the canonical path of a store.
type StoreRoot struct {
	root string
}

// ResolveStoreRoot resolves p to an absolute path without symlinks and checks
// that it is an existing directory.
func ResolveStoreRoot(p string) (StoreRoot, error) {
	root, err := resolveDir(p)
	if err != nil {
		return StoreRoot{}, err
	}
	return StoreRoot{root: root}, nil
}

// Path returns the canonical path of the store root.
func (s StoreRoot) Path() string { return s.root }

// Working returns the overlay work directory.
func (s StoreRoot) Working() string { return filepath.Join(s.root, workingDirName) }

// Special returns the lowest read-only layer holding the bind placeholders.
func (s StoreRoot) Special() string { return filepath.Join(s.root, specialDirName) }

// Merged returns the mount point of the composed view.
func (s StoreRoot) Merged() string { return filepath.Join(s.root, mergedDirName) }

// Upper returns the writable layer named by hash.
func (s StoreRoot) Upper(hash string) string { return filepath.Join(s.root, hash) }

// MergedDir returns a directory inside the merged view.
func (s StoreRoot) MergedDir(name string) string { return filepath.Join(s.Merged(), name) }

// LockFile is the file locked by FileLock.
func (s StoreRoot) LockFile() string { return filepath.Join(s.root, lockFileName) }

// EnsureLayout creates the directories a composition needs. Directories that
// already exist are left alone.
func (s StoreRoot) EnsureLayout(binds []Bind) error {
	dirs := []string{s.Working(), s.Special()}
	for _, b := range binds {
		dirs = append(dirs, filepath.Join(s.Special(), b.Name))
	}
	dirs = append(dirs, filepath.Join(s.Special(), tmpDirName), s.Merged())

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	return nil
}

// LayerStack lists the lower layers of a union mount, highest priority
// first.
type LayerStack []string

// NewLayerStack places the ancestor layers above the special layer, so files
// shipped by an ancestor always shadow the placeholders in special.
func NewLayerStack(ancestors []string, special string) LayerStack {
	return append(slices.Clip(ancestors), special)
}

// LowerDir returns the stack in overlay lowerdir syntax.
func (s LayerStack) LowerDir() string {
	return strings.Join(s, ":")
}

var errNotDirectory = errors.New("not a directory")

func resolveDir(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", &PreconditionError{Path: p, Err: err}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &PreconditionError{Path: p, Err: err}
	}
	fi, err := os.Stat(resolved)
	if err != nil {
		return "", &PreconditionError{Path: p, Err: err}
	}
	if !fi.IsDir() {
		return "", &PreconditionError{Path: p, Err: errNotDirectory}
	}
	return resolved, nil
}
