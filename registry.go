package sparseheap

import "unsafe"

// ProxyRef is the opaque back-reference the GC uses to find the in-heap
// proxy object that owns a payload extent. sparseheap never dereferences
// it; it is returned verbatim by sizeOf's sibling query proxyOf and updated in
// place when the GC moves the proxy (UpdateCopiedProxy).
type ProxyRef = unsafe.Pointer

// registryEntry holds everything the registry tracks for one allocated
// extent: its owning proxy, its size, and an optional OS identifier.
// identifier is only meaningful when the OS façade in use reports
// requiresIdentifier() == true (see commit_darwin.go); on platforms that
// don't need it, hasIdentifier stays false for every entry.
type registryEntry struct {
	proxy         ProxyRef
	size          uintptr
	identifier    identifier
	hasIdentifier bool
}

// registry is the hash map from payload address to owning proxy and
// metadata. Hashing and equality are Go's native map semantics over the
// Address key; no hash-table library is needed for this shape.
type registry struct {
	entries map[Address]*registryEntry
	log     *eventSink
}

func newRegistry(log *eventSink) *registry {
	return &registry{entries: make(map[Address]*registryEntry), log: log}
}

// remember inserts a new entry for addr, reporting false for a duplicate
// key instead of overwriting it, so the façade can unwind the pool
// consumption for the attempt before surfacing an error to its caller.
func (r *registry) remember(addr Address, proxy ProxyRef, size uintptr) bool {
	if _, dup := r.entries[addr]; dup {
		return false
	}
	r.entries[addr] = &registryEntry{proxy: proxy, size: size}
	r.log.debug("remember", "address", addr, "size", size)
	return true
}

// sizeOf returns the recorded size for addr, or 0 if addr is not
// registered.
func (r *registry) sizeOf(addr Address) uintptr {
	if e, ok := r.entries[addr]; ok {
		return e.size
	}
	return 0
}

// forget removes addr's entry. Absence is reported but is not fatal: the
// façade logs and continues.
func (r *registry) forget(addr Address) bool {
	if _, ok := r.entries[addr]; !ok {
		return false
	}
	delete(r.entries, addr)
	r.log.debug("forget", "address", addr)
	return true
}

// updateProxy rewrites the back-reference for addr, used when the GC moves
// the owning proxy object. A missing key means the GC's own tracking is
// out of sync with the registry, a fatal invariant violation.
func (r *registry) updateProxy(addr Address, proxy ProxyRef) {
	e, ok := r.entries[addr]
	invariant(ok, "updateProxy: no registry entry for address %#x", uintptr(addr))
	e.proxy = proxy
	r.log.debug("update_proxy", "address", addr)
}

// recordOSIdentifier attaches the OS-level identifier returned by commit to
// addr's entry. Only meaningful on platforms whose façade requires
// identifier-based release (commit_darwin.go); calling it for an unknown
// address is a fatal invariant violation, mirroring updateProxy.
func (r *registry) recordOSIdentifier(addr Address, id identifier) {
	e, ok := r.entries[addr]
	invariant(ok, "recordOSIdentifier: no registry entry for address %#x", uintptr(addr))
	e.identifier = id
	e.hasIdentifier = true
}

// osIdentifierOf returns the recorded identifier for addr and whether one
// was recorded at all.
func (r *registry) osIdentifierOf(addr Address) (identifier, bool) {
	e, ok := r.entries[addr]
	if !ok {
		return identifier{}, false
	}
	return e.identifier, e.hasIdentifier
}

// proxyOf returns the recorded proxy reference for addr, used by tests.
func (r *registry) proxyOf(addr Address) (ProxyRef, bool) {
	e, ok := r.entries[addr]
	if !ok {
		return nil, false
	}
	return e.proxy, true
}
