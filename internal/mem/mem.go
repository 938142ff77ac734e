// Package mem is the low-level patch primitive: it turns raw addresses into
// byte views, flips page protections so live code and data tables can be
// rewritten, and owns the executable buffers trampolines are built in.
package mem

import (
	"os"
	"unsafe"
)

// WordSize is the width of a function pointer / vtable slot.
const WordSize = int(unsafe.Sizeof(uintptr(0)))

var pageSize = uintptr(os.Getpagesize())

// Slice aliases the memory range [addr, addr+size) as a byte slice. The
// caller is responsible for the range being mapped and readable.
func Slice(addr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

// pageBounds widens [addr, addr+size) to page granularity.
func pageBounds(addr uintptr, size int) (start, length uintptr) {
	start = addr &^ (pageSize - 1)
	length = (addr + uintptr(size) + pageSize - 1 - start) &^ (pageSize - 1)
	return start, length
}

// Write copies data over the bytes at addr, making the pages writable first.
// The pages are left RWX so a later restore write does not fault.
func Write(addr uintptr, data []byte) error {
	if err := Unprotect(addr, len(data)); err != nil {
		return err
	}
	copy(Slice(addr, len(data)), data)
	return nil
}

// ReadWord loads one pointer-sized value from addr.
func ReadWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

// WriteWord stores one pointer-sized value at addr, making the page
// writable first. Slots are data, never executed, so the page is flipped
// to plain read-write. The store itself is a single aligned write.
func WriteWord(addr, val uintptr) error {
	if err := UnprotectData(addr, WordSize); err != nil {
		return err
	}
	*(*uintptr)(unsafe.Pointer(addr)) = val
	return nil
}
