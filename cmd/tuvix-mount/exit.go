package main

import (
	"github.com/pkg/errors"
	"github.com/tuvix/tuvix/layer"
)

// exitMountFailure is the status mount(8) and umount(8) exit with when the
// operation itself fails.
const exitMountFailure = 32

func exitCode(err error) int {
	var mErr *layer.MountError
	if errors.As(err, &mErr) {
		return exitMountFailure
	}
	return 1
}
