package sparseheap

import (
	"errors"
	"fmt"
)

// ErrInvalidPageSize is a configuration failure returned by New when the
// page size is not a power of two, or the reservation base/capacity are
// not page aligned. Never returned by any operation on an
// already-constructed Heap.
var ErrInvalidPageSize = errors.New("sparseheap: page size must be a power of two and addresses/sizes page aligned")

// Transient operation failures: returned by Allocate as an error, never
// panicked.
var (
	// ErrCommitFailed indicates the OS declined to commit pages for a new
	// allocation; any pool/registry state consumed for the attempt has
	// already been unwound by the time this is returned.
	ErrCommitFailed = errors.New("sparseheap: commit failed")

	// ErrAddressAlreadyRegistered indicates the registry unexpectedly
	// already held an entry for the address the pool just handed back;
	// this can only happen if the registry and pool have fallen out of
	// sync with each other.
	ErrAddressAlreadyRegistered = errors.New("sparseheap: address already registered")
)

// invariant panics with a formatted message when cond is false. It is used
// exclusively for fatal conditions that, if false, mean the allocator's
// internal state can no longer be reasoned about; recovery is never
// attempted.
func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("sparseheap: invariant violated: "+format, args...))
	}
}
