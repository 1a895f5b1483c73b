// Package fstype identifies the filesystem backing a path.
package fstype

import "fmt"

// FsMagic is the f_type statfs(2) reports for a filesystem.
type FsMagic uint32

// FsMagicUnsupported is returned where detection is not implemented.
const FsMagicUnsupported FsMagic = 0

const (
	FsMagicAufs     FsMagic = 0x61756673
	FsMagicBtrfs    FsMagic = 0x9123683E
	FsMagicEcryptfs FsMagic = 0xf15f
	FsMagicExtfs    FsMagic = 0x0000EF53
	FsMagicF2fs     FsMagic = 0xF2F52010
	FsMagicFUSE     FsMagic = 0x65735546
	FsMagicNfsFs    FsMagic = 0x00006969
	FsMagicOverlay  FsMagic = 0x794C7630
	FsMagicRAMFs    FsMagic = 0x858458f6
	FsMagicSmbFs    FsMagic = 0x0000517B
	FsMagicSquashFs FsMagic = 0x73717368
	FsMagicTmpFs    FsMagic = 0x01021994
	FsMagicXfs      FsMagic = 0x58465342
	FsMagicZfs      FsMagic = 0x2fc12fc1
)

var names = map[FsMagic]string{
	FsMagicUnsupported: "unsupported",
	FsMagicAufs:        "aufs",
	FsMagicBtrfs:       "btrfs",
	FsMagicEcryptfs:    "ecryptfs",
	FsMagicExtfs:       "extfs",
	FsMagicF2fs:        "f2fs",
	FsMagicFUSE:        "fuse",
	FsMagicNfsFs:       "nfs",
	FsMagicOverlay:     "overlayfs",
	FsMagicRAMFs:       "ramfs",
	FsMagicSmbFs:       "smb",
	FsMagicSquashFs:    "squashfs",
	FsMagicTmpFs:       "tmpfs",
	FsMagicXfs:         "xfs",
	FsMagicZfs:         "zfs",
}

// String returns the name of the filesystem, or its id in hex when unknown.
func (m FsMagic) String() string {
	if name, ok := names[m]; ok {
		return name
	}
	return fmt.Sprintf("0x%x", uint32(m))
}

// GetFSMagic returns the type of the filesystem holding path. Platforms
// without detection get FsMagicUnsupported and no error.
func GetFSMagic(rootpath string) (FsMagic, error) {
	return getFSMagic(rootpath)
}

// SupportsOverlayUpper reports whether an overlay upper or work directory
// can live on a filesystem of type m. The kernel refuses these as upper
// layers, or mishandles them; unknown filesystems are assumed to work.
func SupportsOverlayUpper(m FsMagic) bool {
	switch m {
	case FsMagicAufs, FsMagicEcryptfs, FsMagicNfsFs, FsMagicOverlay, FsMagicSmbFs, FsMagicFUSE:
		return false
	default:
		return true
	}
}
