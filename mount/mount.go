// Package mount provides the mount primitives a store is composed with: a
// Mounter issuing mount(2) and umount(2), and an Inspector answering
// mount-state questions from the live mount table.
package mount

import (
	"fmt"
	"io"
	"os"
	"strings"

	sysmount "github.com/moby/sys/mount"
	"golang.org/x/sys/unix"
)

// Mounter performs mount and unmount operations. Options use the fstab
// syntax understood by github.com/moby/sys/mount.
type Mounter interface {
	Mount(device, target, mType, options string) error
	Unmount(target string) error
}

// SysMounter mounts on the host with direct system calls.
type SysMounter struct{}

// Mount mounts device on target.
func (SysMounter) Mount(device, target, mType, options string) error {
	return sysmount.Mount(device, target, mType, options)
}

// Unmount unmounts the filesystem mounted on target. It is not an error if
// target is not a mount point. The unmount is not lazy: a busy target is
// left mounted and EBUSY is returned.
func (SysMounter) Unmount(target string) error {
	for {
		err := unix.Unmount(target, 0)
		switch err {
		case nil, unix.EINVAL:
			return nil
		case unix.EINTR:
			continue
		default:
			return &os.PathError{Op: "umount", Path: target, Err: err}
		}
	}
}

// DryRunMounter writes the command line equivalent of every operation to Out
// and performs nothing.
type DryRunMounter struct {
	Out io.Writer
}

// Mount prints the mount(8) equivalent of the operation.
func (m DryRunMounter) Mount(device, target, mType, options string) error {
	_, err := fmt.Fprintln(m.Out, Command(device, target, mType, options))
	return err
}

// Unmount prints the umount(8) equivalent of the operation.
func (m DryRunMounter) Unmount(target string) error {
	_, err := fmt.Fprintln(m.Out, UnmountCommand(target))
	return err
}

// Command renders a mount operation as the equivalent mount(8) invocation.
// It is only used for reporting; nothing is ever executed through a shell.
func Command(device, target, mType, options string) string {
	args := []string{"mount"}
	var data []string
	for _, o := range strings.Split(options, ",") {
		switch o {
		case "":
		case "bind":
			args = append(args, "--bind")
		case "rbind":
			args = append(args, "--rbind")
		default:
			data = append(data, o)
		}
	}
	if mType != "" && mType != "none" {
		args = append(args, "-t", mType)
	}
	if len(data) > 0 {
		args = append(args, "-o", strings.Join(data, ","))
	}
	return strings.Join(append(args, device, target), " ")
}

// UnmountCommand renders an unmount as the equivalent umount(8) invocation.
func UnmountCommand(target string) string {
	return "umount " + target
}
