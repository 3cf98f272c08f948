package app

import "golang.org/x/sys/unix"

// ExitWithParent asks the kernel to send SIGTERM to this process when its
// parent dies, so workers never outlive a crashed primary.
func ExitWithParent() error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGTERM), 0, 0, 0)
}
