//go:build windows

package sparseheap

import "syscall"

const (
	memCommit     = 0x00001000
	memDecommit   = 0x00004000
	pageReadWrite = 0x04
)

var (
	kernel32   = syscall.NewLazyDLL("kernel32.dll")
	procVAlloc = kernel32.NewProc("VirtualAlloc")
	procVFree  = kernel32.NewProc("VirtualFree")
)

// windowsFacade commits by calling VirtualAlloc(MEM_COMMIT) on a sub-range
// of an already VirtualAlloc(MEM_RESERVE)'d region, and decommits by
// calling VirtualFree(MEM_DECOMMIT). Decommitting a sub-range with
// VirtualFree needs nothing beyond the address and size, so this platform
// never requires an identifier.
type windowsFacade struct{}

func newOSFacade() osFacade { return windowsFacade{} }

func (windowsFacade) commit(addr Address, size uintptr) (identifier, error) {
	r, _, err := procVAlloc.Call(uintptr(addr), size, memCommit, pageReadWrite)
	if r == 0 {
		return identifier{}, err
	}
	return identifier{}, nil
}

func (windowsFacade) decommit(addr Address, size uintptr, _ identifier) error {
	r, _, err := procVFree.Call(uintptr(addr), size, memDecommit)
	if r == 0 {
		return err
	}
	return nil
}

func (windowsFacade) requiresIdentifier() bool { return false }
