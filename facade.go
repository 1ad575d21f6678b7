// Package sparseheap implements a sparse off-heap virtual memory allocator
// for backing variable-sized data payloads (typically large array bodies)
// that live outside a managed heap. Each in-heap proxy object is paired
// with an extent of a single, oversized, sparsely committed reservation;
// Heap hands out extents from that reservation, commits physical pages on
// demand, and releases them when the owning proxy is reclaimed.
//
// sparseheap is not safe for concurrent use. Every entry point assumes the
// caller already holds whatever mutator exclusion its surrounding garbage
// collector provides.
package sparseheap

import (
	"fmt"

	"github.com/cznic/mathutil"
	"go.uber.org/zap"
)

// Config carries the construction-time inputs for a Heap: the reservation
// itself (already obtained from the host's virtual-memory layer —
// reserving it is not this package's job), the page size it was reserved
// in multiples of, a memory-accounting tag, and an optional structured
// logger.
type Config struct {
	// PageSize is the host's page size; must be a power of two.
	PageSize uintptr

	// Base is the reservation's base address; must be PageSize aligned.
	Base Address

	// Capacity is the reservation's total size; must be a positive
	// multiple of PageSize. See ReservationSize for the heuristic used to
	// pick this value from the managed heap's shape.
	Capacity uintptr

	// Category is an opaque memory-accounting tag attached to every debug
	// event; sparseheap does not interpret it. It is not passed to the OS
	// façade's commit or decommit calls.
	Category Category

	// Logger receives one structured debug event per public operation.
	// A nil Logger disables the events (see debug.go).
	Logger *zap.Logger
}

// ReservationSize computes a reservation size from the managed heap's
// shape: given the in-heap byte size of the managed heap and its region
// size, with n = heapByteSize/regionSize, it returns
// ((floor(log2(n)) + 1) * heapByteSize) / 2, rounded up to pageSize.
func ReservationSize(heapByteSize, regionSize, pageSize uintptr) uintptr {
	invariant(regionSize > 0, "ReservationSize: regionSize must be positive")
	n := heapByteSize / regionSize
	if n == 0 {
		n = 1
	}
	log2n := mathutil.BitLen(int(n)) - 1 // floor(log2(n)) for n >= 1
	size := (uintptr(log2n+1) * heapByteSize) / 2
	return roundup(size, pageSize)
}

// Heap is the sparse virtual memory façade. It owns the reservation
// described by Config and composes a Pool and a registry over it,
// committing and decommitting pages through the platform's osFacade as
// extents are allocated and released.
type Heap struct {
	base     Address
	capacity uintptr
	pageSize uintptr

	pool *Pool
	reg  *registry
	os   osFacade
	log  *eventSink
}

// New validates cfg and constructs a Heap over its reservation. It is the
// only place a configuration failure can occur; no partially constructed
// Heap is ever returned.
func New(cfg Config) (*Heap, error) {
	if cfg.PageSize == 0 || cfg.PageSize&(cfg.PageSize-1) != 0 {
		return nil, fmt.Errorf("%w: page size %d is not a power of two", ErrInvalidPageSize, cfg.PageSize)
	}
	if uintptr(cfg.Base)%cfg.PageSize != 0 {
		return nil, fmt.Errorf("%w: base %#x is not page aligned", ErrInvalidPageSize, uintptr(cfg.Base))
	}
	if cfg.Capacity == 0 || cfg.Capacity%cfg.PageSize != 0 {
		return nil, fmt.Errorf("%w: capacity %d is not a positive multiple of page size %d", ErrInvalidPageSize, cfg.Capacity, cfg.PageSize)
	}

	log := newEventSink(cfg.Logger, cfg.Category)
	h := &Heap{
		base:     cfg.Base,
		capacity: cfg.Capacity,
		pageSize: cfg.PageSize,
		pool:     newPool(cfg.Base, cfg.Capacity, cfg.PageSize, log),
		reg:      newRegistry(log),
		os:       newOSFacade(),
		log:      log,
	}
	return h, nil
}

// Allocate rounds requestedSize up to a page multiple, finds a fitting
// extent, records it in the registry against proxy, and commits its
// pages. It returns the zero Address and an error if the commit fails or
// the registry unexpectedly already holds the chosen address; in both
// cases the extent is returned to the pool before Allocate reports
// failure, so a failed Allocate never leaks pool capacity.
func (h *Heap) Allocate(proxy ProxyRef, requestedSize uintptr) (Address, error) {
	size := roundup(requestedSize, h.pageSize)
	addr := h.pool.findFree(size)

	if !h.reg.remember(addr, proxy, size) {
		h.pool.returnExtent(addr, size)
		return 0, fmt.Errorf("%w: %#x", ErrAddressAlreadyRegistered, uintptr(addr))
	}

	id, err := h.os.commit(addr, size)
	if err != nil {
		h.reg.forget(addr)
		h.pool.returnExtent(addr, size)
		h.log.debug("allocate_failed", "address", addr, "size", size, "error", err.Error())
		return 0, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	if h.os.requiresIdentifier() {
		h.reg.recordOSIdentifier(addr, id)
	}

	h.log.debug("allocate", "proxy", proxy, "address", addr, "size", size)
	return addr, nil
}

// Release decommits the payload at addr and returns its extent to the
// pool, reporting whether addr was actually registered. If addr is not
// registered, Release reports false and otherwise does nothing. Decommit
// failure is a fatal invariant violation: the caller cannot reason about
// the sparse heap's state if the OS refuses to release pages it
// previously committed.
func (h *Heap) Release(addr Address) bool {
	size := h.reg.sizeOf(addr)
	if size == 0 {
		return false
	}

	var id identifier
	if h.os.requiresIdentifier() {
		var ok bool
		id, ok = h.reg.osIdentifierOf(addr)
		invariant(ok, "Release: address %#x requires an OS identifier but none was recorded", uintptr(addr))
	}

	if err := h.os.decommit(addr, size, id); err != nil {
		invariant(false, "Release: decommit of [%#x,%#x) failed: %v", uintptr(addr), uintptr(addr)+size, err)
	}

	h.pool.returnExtent(addr, size)
	if !h.reg.forget(addr) {
		h.log.debug("forget_missing", "address", addr)
	}
	h.log.debug("release", "address", addr, "size", size)
	return true
}

// UpdateCopiedProxy rewrites the proxy back-reference for addr after the
// GC moves the owning object. It is a pure delegation to the registry; a
// missing addr means the GC's own tracking has fallen out of sync with
// the registry, which is a fatal invariant violation rather than
// something a caller can recover from.
func (h *Heap) UpdateCopiedProxy(addr Address, newProxy ProxyRef) {
	h.reg.updateProxy(addr, newProxy)
}

// RecordOSIdentifier attaches an externally obtained OS identifier to
// addr's registry entry. It is defined on every platform but only
// consulted by Release where the OS façade requires identifier-based
// release (RequiresIdentifier reports which). A
// missing addr is a fatal invariant violation, matching UpdateCopiedProxy.
func (h *Heap) RecordOSIdentifier(addr Address, handle uintptr) {
	h.reg.recordOSIdentifier(addr, identifier{address: addr, handle: handle})
}

// RequiresIdentifier reports whether this platform's OS façade needs an
// identifier at decommit time.
func (h *Heap) RequiresIdentifier() bool { return h.os.requiresIdentifier() }

// LargestFreeEntry returns the cached, advisory size of the largest known
// free extent. It may lag the true state; treat it as a hint.
func (h *Heap) LargestFreeEntry() uintptr { return h.pool.largestFreeEntry() }

// ReservedSize returns the total capacity of the reservation this Heap
// was constructed over.
func (h *Heap) ReservedSize() uintptr { return h.capacity }
