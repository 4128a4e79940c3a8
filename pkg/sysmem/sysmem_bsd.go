//go:build freebsd || openbsd || netbsd || dragonfly

package sysmem

import "golang.org/x/sys/unix"

// totalSystemMemory tries hw.physmem, then the FreeBSD-only hw.realmem.
func totalSystemMemory() (uint64, bool) {
	if mem, err := unix.SysctlUint64("hw.physmem"); err == nil && mem > 0 {
		return mem, true
	}
	if mem, err := unix.SysctlUint64("hw.realmem"); err == nil && mem > 0 {
		return mem, true
	}
	return 0, false
}
