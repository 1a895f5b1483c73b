package layer

import "fmt"

// PreconditionError reports an argument that does not name a usable
// directory. It is returned before anything on disk or in the mount table is
// changed.
type PreconditionError struct {
	Path string
	Err  error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("invalid store path %s: %v", e.Path, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// InvalidParameter marks the error as an invalid argument for errdefs.
func (e *PreconditionError) InvalidParameter() {}

// MountTableError reports that the mount table could not be read, so the
// state of Path is unknown.
type MountTableError struct {
	Path string
	Err  error
}

func (e *MountTableError) Error() string {
	return fmt.Sprintf("cannot determine mount state of %s: %v", e.Path, e.Err)
}

func (e *MountTableError) Unwrap() error { return e.Err }

// System marks the error as a system failure for errdefs.
func (e *MountTableError) System() {}

// MountError reports a failed mount or unmount. Command is the mount(8) or
// umount(8) equivalent of the operation.
type MountError struct {
	Command string
	Target  string
	Err     error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *MountError) Unwrap() error { return e.Err }

// System marks the error as a system failure for errdefs.
func (e *MountError) System() {}
