// Package overlayutils formats, parses and probes overlay filesystem mounts.
package overlayutils

import (
	"fmt"
	"os"
	"strings"

	"github.com/opencontainers/selinux/go-selinux/label"
	"github.com/pkg/errors"
)

// managedOptions are set from the layer stack and may not be overridden.
var managedOptions = map[string]struct{}{
	"lowerdir": {},
	"upperdir": {},
	"workdir":  {},
	"context":  {},
}

// MountOptions formats the data string of an overlay mount. lower lists the
// read-only layers in priority order: entries earlier in the slice shadow
// later ones. extra options are appended as given, and mountLabel, when not
// empty, is applied as the SELinux context of the mount.
//
// The kernel reads the whole string from a single page, so an error is
// returned when it does not fit.
func MountOptions(lower []string, upper, work string, extra []string, mountLabel string) (string, error) {
	if len(lower) == 0 {
		return "", errors.New("overlay mount needs at least one lower layer")
	}
	for _, dir := range append(append([]string{}, lower...), upper, work) {
		if strings.ContainsAny(dir, ",:") {
			return "", errors.Errorf("layer path %q contains an overlay option delimiter", dir)
		}
	}

	opts := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", strings.Join(lower, ":"), upper, work)
	if len(extra) > 0 {
		opts += "," + strings.Join(extra, ",")
	}
	opts = label.FormatMountLabel(opts, mountLabel)

	if pageSize := os.Getpagesize(); len(opts) > pageSize-1 {
		return "", errors.Errorf("overlay mount options are %d bytes long, the limit is %d", len(opts), pageSize-1)
	}
	return opts, nil
}

// ParseOption parses and validates an extra overlay mount option, given
// either as a bare flag ("userxattr") or as a key/value pair ("index=off").
func ParseOption(opt string) (key string, value string, err error) {
	k, v, _ := strings.Cut(opt, "=")
	k = strings.TrimSpace(k)
	if k == "" || strings.ContainsAny(opt, ", ") {
		return "", "", errors.Errorf("unable to parse overlay option: %q", opt)
	}
	if _, ok := managedOptions[k]; ok {
		return "", "", errors.Errorf("overlay option %s is managed by the store and cannot be set", k)
	}
	return k, strings.TrimSpace(v), nil
}

// Options is the layer composition recorded in the mount table entry of an
// overlay mount.
type Options struct {
	LowerDirs []string
	UpperDir  string
	WorkDir   string
}

// ParseOptions extracts the layer composition from the superblock options
// of an overlay mount, as found in the last field of /proc/self/mountinfo.
func ParseOptions(vfsOptions string) Options {
	var o Options
	for _, opt := range strings.Split(vfsOptions, ",") {
		k, v, _ := strings.Cut(opt, "=")
		switch k {
		case "lowerdir":
			o.LowerDirs = strings.Split(v, ":")
		case "upperdir":
			o.UpperDir = v
		case "workdir":
			o.WorkDir = v
		}
	}
	return o
}
