package sparseheap

import "unsafe"

// identifier is the OS-level handle returned by osCommit and consumed by
// osDecommit on platforms where decommit needs more than the address and
// size. Only commit_darwin.go populates its fields; platforms that don't
// need one (commit_unix.go, commit_windows.go) leave it zero valued. A single struct shape keeps
// registry.go platform agnostic instead of varying the entry type per
// build.
type identifier struct {
	address Address
	size    uintptr
	handle  uintptr
}

// Category is an opaque memory-accounting tag threaded from Config through
// to every debug event. sparseheap does not interpret it; it exists so a
// caller's accounting backend (out of scope here) can attribute commits.
type Category string

// osFacade is the small commit/decommit capability the façade composes.
// Each platform file provides exactly one implementation, selected at
// compile time by build constraint.
type osFacade interface {
	// commit makes [addr, addr+size) accessible. size is always a page
	// multiple. Returns an identifier to later pass to decommit on
	// platforms that require it (requiresIdentifier() == true).
	commit(addr Address, size uintptr) (identifier, error)

	// decommit returns [addr, addr+size) to the OS. id is the identifier
	// commit returned for this range; it is ignored on platforms that
	// don't require one.
	decommit(addr Address, size uintptr, id identifier) error

	// requiresIdentifier reports whether decommit needs the identifier
	// commit recorded, rather than just the address and size.
	requiresIdentifier() bool
}

// addrPointer converts an Address to a raw pointer. This is the one place
// outside the platform commit files where Address crosses into
// unsafe.Pointer territory; every other conversion to/from an OS pointer
// happens only at the commit/decommit façade boundary.
func addrPointer(a Address) unsafe.Pointer {
	return unsafe.Pointer(uintptr(a)) //nolint:govet
}

// byteView returns a []byte view of size bytes starting at addr, for
// passing to the mmap-family syscalls that take byte slices rather than
// raw pointers.
func byteView(addr Address, size uintptr) []byte {
	return unsafe.Slice((*byte)(addrPointer(addr)), size)
}
