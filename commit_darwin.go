//go:build darwin

package sparseheap

import "golang.org/x/sys/unix"

// darwinFacade works around the kernel's reluctance to actually release
// committed pages on this platform: simply calling msync or madvise is not
// enough to return physical memory to the OS, so decommit forces it by
// re-mapping a fresh anonymous, zero-filled region at the same fixed
// address. Commit records the range as an identifier so decommit can
// double-check it is remapping exactly what was committed.
//
// golang.org/x/sys/unix's high-level Mmap helper does not accept a target
// address (it always lets the kernel choose), so the fixed-address
// double-map below goes through unix.Syscall6 directly, the same way some
// mmap wrappers reach past their high-level API straight to the raw
// SYS_MUNMAP/SYS_MMAP syscalls for operations the package wrapper doesn't
// expose.
type darwinFacade struct{}

func newOSFacade() osFacade { return darwinFacade{} }

func (darwinFacade) commit(addr Address, size uintptr) (identifier, error) {
	if err := unix.Mprotect(byteView(addr, size), unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return identifier{}, err
	}
	return identifier{address: addr, size: size}, nil
}

func (darwinFacade) decommit(addr Address, size uintptr, id identifier) error {
	invariant(id.address == addr && id.size == size,
		"darwin decommit: identifier {%#x,%d} does not match requested range {%#x,%d}",
		uintptr(id.address), id.size, uintptr(addr), size)

	const noFD = ^uintptr(0) // -1, meaning "no backing file"
	r1, _, errno := unix.Syscall6(unix.SYS_MMAP,
		uintptr(addr), size, uintptr(unix.PROT_READ|unix.PROT_WRITE),
		uintptr(unix.MAP_FIXED|unix.MAP_ANON|unix.MAP_PRIVATE), noFD, 0)
	if errno != 0 {
		return errno
	}
	invariant(r1 == uintptr(addr), "darwin decommit: double-map landed at %#x, wanted %#x", r1, uintptr(addr))
	return nil
}

func (darwinFacade) requiresIdentifier() bool { return true }
