package sparseheap

import "fmt"

// Address is an absolute virtual address inside the sparse reservation
// (Config.Base is itself an Address). It is never dereferenced directly;
// conversion to a raw OS pointer happens only at the commit/decommit
// façade boundary.
type Address uintptr

// Extent is a half-open byte range [Address, Address+Size) within the
// reservation. Address is page-aligned and Size is a positive page
// multiple for every Extent that escapes this package.
type Extent struct {
	Address Address
	Size    uintptr
}

// End returns the exclusive upper bound of e.
func (e Extent) End() Address { return e.Address + Address(e.Size) }

// touches reports whether e's end equals o's start, i.e. the two extents
// are physical neighbours that must be merged rather than left adjacent.
func (e Extent) touches(o Extent) bool { return e.End() == o.Address }

// overlaps reports whether e and o share any address.
func (e Extent) overlaps(o Extent) bool {
	return e.Address < o.End() && o.Address < e.End()
}

func (e Extent) String() string {
	return fmt.Sprintf("[%#x,%#x)", uintptr(e.Address), uintptr(e.End()))
}

// roundup rounds n up to the nearest multiple of m. m must be a power of two.
func roundup(n, m uintptr) uintptr { return (n + m - 1) &^ (m - 1) }
