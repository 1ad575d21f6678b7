package sparseheap

import (
	"testing"

	"github.com/cznic/mathutil"
)

const (
	testPageSize = 4096
	testCapacity = 16 * testPageSize
	testBase     = Address(0x1000_0000)
)

func newTestPool() *Pool {
	return newPool(testBase, testCapacity, testPageSize, nil)
}

// Allocating one page from the initial whole-reservation node takes the
// head node's lowest page and leaves the remainder in place as the only
// node.
func TestScenarioPartialFitSplitsHead(t *testing.T) {
	p := newTestPool()
	a := p.findFree(testPageSize)
	if a != testBase {
		t.Fatalf("findFree = %#x, want base %#x", uintptr(a), uintptr(testBase))
	}
	if g, x := p.freeBytesTotal(), uintptr(testCapacity-testPageSize); g != x {
		t.Fatalf("freeBytes = %d, want %d", g, x)
	}
	var extents []Extent
	p.walkFree(func(e Extent) { extents = append(extents, e) })
	if len(extents) != 1 || extents[0] != (Extent{Address: testBase + testPageSize, Size: testCapacity - testPageSize}) {
		t.Fatalf("free list = %+v", extents)
	}
}

// Releasing extents back in an order that leaves a gap in the middle
// coalesces each release with its touching neighbours, and the final
// release restores a single whole-reservation node.
func TestScenarioReleaseCoalescesBothSides(t *testing.T) {
	p := newTestPool()
	a1 := p.findFree(testPageSize)
	a2 := p.findFree(testPageSize)
	a3 := p.findFree(testPageSize)

	if a1 != testBase || a2 != testBase+testPageSize || a3 != testBase+2*testPageSize {
		t.Fatalf("unexpected addresses a1=%#x a2=%#x a3=%#x", uintptr(a1), uintptr(a2), uintptr(a3))
	}

	p.returnExtent(a1, testPageSize)
	p.returnExtent(a3, testPageSize)
	// a3 merges with the tail node: [{base, P}, {base+2P, C-2P}]
	if g, x := p.freeNodes(), 2; g != x {
		t.Fatalf("freeNodeCount = %d, want %d", g, x)
	}

	p.returnExtent(a2, testPageSize)
	if g, x := p.freeNodes(), 1; g != x {
		t.Fatalf("freeNodeCount after final release = %d, want %d", g, x)
	}
	if g, x := p.freeBytesTotal(), uintptr(testCapacity); g != x {
		t.Fatalf("freeBytes = %d, want %d", g, x)
	}
}

// An exact-size fit on the head node of a multi-node free list unlinks
// that node instead of leaving a zero-size remainder.
func TestScenarioExactFitHeadNodeUnlinks(t *testing.T) {
	p := newTestPool()
	a1 := p.findFree(testPageSize)
	_ = p.findFree(testPageSize)
	a3 := p.findFree(testPageSize)

	p.returnExtent(a1, testPageSize)
	p.returnExtent(a3, testPageSize)
	// free list is now [{base, P}, {base+2P, C-2P}]

	a4 := p.findFree(testPageSize)
	if a4 != testBase {
		t.Fatalf("findFree (first-fit) = %#x, want base %#x", uintptr(a4), uintptr(testBase))
	}
	if g, x := p.freeNodes(), 1; g != x {
		t.Fatalf("freeNodeCount = %d, want %d", g, x)
	}
}

// roundup rounds an arbitrary size up to the next page multiple.
func TestScenarioSizeRounding(t *testing.T) {
	if g, x := roundup(1, testPageSize), uintptr(testPageSize); g != x {
		t.Fatalf("roundup(1) = %d, want %d", g, x)
	}
	if g, x := roundup(testPageSize+1, testPageSize), uintptr(2*testPageSize); g != x {
		t.Fatalf("roundup(P+1) = %d, want %d", g, x)
	}
}

// Releasing the lowest-address extent back reinserts it at the head of
// the free list.
func TestScenarioHeadInsertAtLowestAddress(t *testing.T) {
	p := newTestPool()
	a := p.findFree(testPageSize)
	if a != testBase {
		t.Fatalf("findFree = %#x, want base %#x", uintptr(a), uintptr(testBase))
	}

	p.returnExtent(testBase, testPageSize)
	if g, x := p.freeNodes(), 1; g != x {
		t.Fatalf("freeNodeCount = %d, want %d", g, x)
	}
	if g, x := p.freeBytesTotal(), uintptr(testCapacity); g != x {
		t.Fatalf("freeBytes = %d, want %d", g, x)
	}
}

func TestFindFreeOnExhaustedPoolPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("findFree beyond capacity did not panic")
		}
	}()
	p := newTestPool()
	p.findFree(testCapacity + testPageSize)
}

// TestPoolPropertyRandomSequence drives randomized allocate/release
// sequences through the Pool and checks its free-list invariants hold
// after every step, using a mathutil.FC32-seeded sequence of sizes and
// choices.
func TestPoolPropertyRandomSequence(t *testing.T) {
	const capacity = 4096 * 256
	p := newPool(testBase, capacity, testPageSize, nil)

	rng, err := mathutil.NewFC32(1, 8, true)
	if err != nil {
		t.Fatal(err)
	}
	rng.Seed(1)

	type live struct {
		addr Address
		size uintptr
	}
	var allocs []live

	const rounds = 2000
	for i := 0; i < rounds; i++ {
		if len(allocs) == 0 || rng.Next()%2 == 0 {
			size := uintptr(rng.Next()) * testPageSize
			if !poolHasFit(p, size) {
				continue
			}
			addr := p.findFree(size)
			allocs = append(allocs, live{addr, size})
			checkPoolInvariants(t, p, capacity)
			continue
		}

		idx := int(rng.Next()) % len(allocs)
		a := allocs[idx]
		allocs[idx] = allocs[len(allocs)-1]
		allocs = allocs[:len(allocs)-1]
		p.returnExtent(a.addr, a.size)

		checkPoolInvariants(t, p, capacity)
	}

	for _, a := range allocs {
		p.returnExtent(a.addr, a.size)
	}
	checkPoolInvariants(t, p, capacity)

	if g, x := p.freeBytesTotal(), uintptr(capacity); g != x {
		t.Fatalf("after draining all allocations, freeBytes = %d, want %d", g, x)
	}
	if g, x := p.freeNodes(), 1; g != x {
		t.Fatalf("after draining all allocations, freeNodeCount = %d, want 1", g)
	}
}

// poolHasFit reports whether p currently holds a free extent of at least
// size, without mutating anything — used by the property test to decide
// whether a findFree call is expected to succeed before making it, since a
// real no-fit call is a fatal invariant violation, not a recoverable
// error.
func poolHasFit(p *Pool, size uintptr) bool {
	fits := false
	p.walkFree(func(e Extent) {
		if e.Size >= size {
			fits = true
		}
	})
	return fits
}

// checkPoolInvariants asserts the free list's ordering, disjointness and
// counter-consistency invariants against p's current state.
func checkPoolInvariants(t *testing.T, p *Pool, capacity uintptr) {
	t.Helper()

	var prev *Extent
	var sum uintptr
	count := 0
	p.walkFree(func(e Extent) {
		count++
		sum += e.Size
		if e.Address < p.base || uintptr(e.Address)+e.Size > uintptr(p.base)+capacity {
			t.Fatalf("free extent %+v lies outside reservation", e)
		}
		if prev != nil {
			if !(prev.End() < e.Address) {
				t.Fatalf("free list out of order or touching: %+v then %+v", *prev, e)
			}
		}
		ext := e
		prev = &ext
	})

	if count != p.freeNodes() {
		t.Fatalf("walked %d free nodes, freeNodeCount reports %d", count, p.freeNodes())
	}
	if sum != p.freeBytesTotal() {
		t.Fatalf("summed free bytes %d != freeBytesTotal() %d", sum, p.freeBytesTotal())
	}
	if g, x := p.freeBytesTotal()+p.allocatedBytesTotal(), capacity; g != x {
		t.Fatalf("freeBytes+allocatedBytes = %d, want capacity %d", g, x)
	}
	if p.freeNodes() < 1 {
		t.Fatalf("freeNodeCount = %d, want >= 1", p.freeNodes())
	}
}
