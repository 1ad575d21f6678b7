package sparseheap

// Pool is the address-ordered, fully coalesced free list over a single
// reservation. It performs first-fit allocation and coalescing release.
//
// A Pool is never empty for its lifetime: newPool installs one node
// spanning the whole reservation, and every findFree/returnExtent pair
// preserves that invariant.
type Pool struct {
	base     Address
	capacity uintptr
	pageSize uintptr

	store *nodeStore
	head  nodeIndex

	freeBytes      uintptr
	allocatedBytes uintptr
	freeNodeCount  int
	largestSize    uintptr
	largestAddr    Address

	log *eventSink
}

// newPool creates a Pool over [base, base+capacity) with a single free node
// spanning the whole range. capacity must already be a multiple of
// pageSize; callers (the façade) are responsible for that rounding.
func newPool(base Address, capacity, pageSize uintptr, log *eventSink) *Pool {
	store := newNodeStore()
	head := store.acquire()
	*store.at(head) = extentNode{Extent: Extent{Address: base, Size: capacity}, next: nilIndex}

	return &Pool{
		base:          base,
		capacity:      capacity,
		pageSize:      pageSize,
		store:         store,
		head:          head,
		freeBytes:     capacity,
		largestSize:   capacity,
		largestAddr:   base,
		freeNodeCount: 1,
		log:           log,
	}
}

// findFree returns the base address of the lowest-address free extent of
// size >= size, consuming it (in whole or in part) from the free list.
// size must be a positive multiple of the pool's page size; it is always
// satisfiable by construction (the reservation is dimensioned so that an
// allocation never exhausts the list), so failure to find a fit is a fatal
// invariant violation, not a recoverable error.
func (p *Pool) findFree(size uintptr) Address {
	invariant(size > 0 && size%p.pageSize == 0, "findFree: size %d is not a positive multiple of page size %d", size, p.pageSize)

	var prev nodeIndex = nilIndex
	cur := p.head
	for cur != nilIndex && p.store.at(cur).Size < size {
		prev = cur
		cur = p.store.at(cur).next
	}
	invariant(cur != nilIndex, "findFree: no free extent of size %d in a reservation of capacity %d", size, p.capacity)

	node := p.store.at(cur)
	addr := node.Address

	if node.Size == size {
		p.unlink(prev, cur)
		p.store.release(cur)
		p.freeNodeCount--
	} else {
		node.Address += Address(size)
		node.Size -= size
		if p.largestAddr == addr {
			p.largestSize -= size
			p.largestAddr = node.Address
		}
	}

	p.allocatedBytes += size
	p.freeBytes -= size

	p.log.debug("find_free", "size", size, "address", addr)
	return addr
}

// returnExtent reinserts [address, address+size) into the free list,
// coalescing with either or both physical neighbours. address and size
// must be a page-aligned, page-multiple range previously produced by
// findFree and not currently free; violating that precondition is a fatal
// assertion, never a recoverable error.
func (p *Pool) returnExtent(address Address, size uintptr) {
	invariant(size > 0 && size%p.pageSize == 0, "returnExtent: size %d is not a positive multiple of page size %d", size, p.pageSize)
	invariant(address >= p.base && Address(uintptr(address)+size) <= Address(uintptr(p.base)+p.capacity),
		"returnExtent: extent [%#x,%#x) lies outside reservation [%#x,%#x)",
		uintptr(address), uintptr(address)+size, uintptr(p.base), uintptr(p.base)+p.capacity)

	ext := Extent{Address: address, Size: size}

	var prev nodeIndex = nilIndex
	cur := p.head
	for cur != nilIndex {
		n := p.store.at(cur)
		if n.Size > p.largestSize {
			p.largestSize = n.Size
			p.largestAddr = n.Address
		}
		if address < n.Address {
			break
		}
		prev = cur
		cur = n.next
	}

	switch {
	case prev == nilIndex && cur != nilIndex && ext.touches(p.store.at(cur).Extent):
		// Case 7: head-insert, coalesce with successor only.
		n := p.store.at(cur)
		n.Address = address
		n.Size += size
	case prev == nilIndex:
		// Case 8: head-insert, no coalescing possible.
		idx := p.store.acquire()
		*p.store.at(idx) = extentNode{Extent: ext, next: cur}
		p.head = idx
		p.freeNodeCount++
	case p.store.at(prev).Extent.touches(ext) && cur != nilIndex && ext.touches(p.store.at(cur).Extent):
		// Case 4: bridges predecessor and successor; merge all three.
		pn := p.store.at(prev)
		cn := p.store.at(cur)
		pn.Size += size + cn.Size
		pn.next = cn.next
		p.store.release(cur)
		p.freeNodeCount--
	case p.store.at(prev).Extent.touches(ext):
		// Cases 2 and 5: coalesce with predecessor only.
		p.store.at(prev).Size += size
	case cur != nilIndex && ext.touches(p.store.at(cur).Extent):
		// Case 3: coalesce with successor only.
		n := p.store.at(cur)
		n.Address = address
		n.Size += size
	default:
		// Cases 1 and 6: splice a new node between prev and cur.
		idx := p.store.acquire()
		*p.store.at(idx) = extentNode{Extent: ext, next: cur}
		p.store.at(prev).next = idx
		p.freeNodeCount++
	}

	p.freeBytes += size
	p.allocatedBytes -= size

	p.log.debug("return_extent", "size", size, "address", address)
}

func (p *Pool) unlink(prev, cur nodeIndex) {
	next := p.store.at(cur).next
	if prev == nilIndex {
		p.head = next
		return
	}
	p.store.at(prev).next = next
}

// largestFreeEntry reads the cached, advisory largest-free-extent size. It
// may lag the true state; treat it as a hint, never as ground truth.
func (p *Pool) largestFreeEntry() uintptr { return p.largestSize }

// freeBytesTotal, allocatedBytesTotal and freeNodes expose the pool's
// bookkeeping counters for observers and property tests.
func (p *Pool) freeBytesTotal() uintptr      { return p.freeBytes }
func (p *Pool) allocatedBytesTotal() uintptr { return p.allocatedBytes }
func (p *Pool) freeNodes() int               { return p.freeNodeCount }

// walkFree calls fn for every free extent in ascending address order. Used
// by property tests to check ordering, disjointness and
// counter-consistency invariants; not part of the façade's public
// surface.
func (p *Pool) walkFree(fn func(Extent)) {
	for cur := p.head; cur != nilIndex; cur = p.store.at(cur).next {
		fn(p.store.at(cur).Extent)
	}
}
