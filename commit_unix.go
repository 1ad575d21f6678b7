//go:build unix && !darwin

package sparseheap

import "golang.org/x/sys/unix"

// unixFacade commits by making an already-reserved, PROT_NONE range
// readable/writable and decommits by advising the kernel to drop the
// backing pages (MADV_DONTNEED) before returning the range to PROT_NONE.
// Committing/decommitting a sub-range of an existing mapping, rather than
// mapping/unmapping a whole fresh region, needs Mprotect and Madvise, not
// Munmap.
type unixFacade struct{}

func newOSFacade() osFacade { return unixFacade{} }

func (unixFacade) commit(addr Address, size uintptr) (identifier, error) {
	if err := unix.Mprotect(byteView(addr, size), unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return identifier{}, err
	}
	return identifier{}, nil
}

func (unixFacade) decommit(addr Address, size uintptr, _ identifier) error {
	view := byteView(addr, size)
	if err := unix.Madvise(view, unix.MADV_DONTNEED); err != nil {
		return err
	}
	return unix.Mprotect(view, unix.PROT_NONE)
}

func (unixFacade) requiresIdentifier() bool { return false }
