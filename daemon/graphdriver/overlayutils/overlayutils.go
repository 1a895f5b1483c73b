//go:build linux

package overlayutils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/containerd/log"
	"github.com/moby/sys/mount"
	"github.com/moby/sys/userns"
	"github.com/opencontainers/selinux/go-selinux"
)

const testSELinuxLabel = "system_u:object_r:container_file_t:s0"

// SupportsOverlay determines whether the kernel supports overlayfs (meeting our needs) by performing an actual mount
// below d.
//
// checkMultipleLowers tests for multiple lowerdir support.
func SupportsOverlay(ctx context.Context, d string, checkMultipleLowers bool) error {
	checkSELinux := false
	if selinux.GetEnabled() {
		// Only test for SELinux if the test label is valid, so the check
		// is about kernel support and not about the policy in use.
		checkSELinux = selinux.SecurityCheckContext(testSELinuxLabel) == nil
	}

	td, err := os.MkdirTemp(d, "check-overlayfs-support")
	if err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(td); err != nil {
			log.G(ctx).WithError(err).Warnf("failed to remove check directory %v", td)
		}
	}()

	l1, l2, l3, work, merged := filepath.Join(td, "l1"), filepath.Join(td, "l2"), filepath.Join(td, "l3"), filepath.Join(td, "work"), filepath.Join(td, "merged")
	for _, dir := range []string{l1, l2, l3, work, merged} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return err
		}
	}

	lowers := []string{l1}
	if checkMultipleLowers {
		lowers = append(lowers, l2)
	}
	var extra []string
	if userns.RunningInUserNS() {
		extra = append(extra, "userxattr")
	}
	mountLabel := ""
	if checkSELinux {
		mountLabel = testSELinuxLabel
	}
	opts, err := MountOptions(lowers, l3, work, extra, mountLabel)
	if err != nil {
		return err
	}

	if err := mount.Mount("overlay", merged, "overlay", opts); err != nil {
		return fmt.Errorf("failed to mount overlayfs (checkMultipleLowers=%t,checkSELinux=%t): %w", checkMultipleLowers, checkSELinux, err)
	}
	if err := mount.Unmount(merged); err != nil {
		log.G(ctx).WithError(err).Warnf("failed to unmount check directory %v", merged)
	}

	return nil
}
