//go:build windows

package mem

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// Unprotect makes the pages covering [addr, addr+size) readable, writable
// and executable.
func Unprotect(addr uintptr, size int) error {
	start, length := pageBounds(addr, size)
	var old uint32
	err := windows.VirtualProtect(start, length, windows.PAGE_EXECUTE_READWRITE, &old)
	return errors.Wrapf(err, "VirtualProtect rwx at %#x", start)
}

// UnprotectData makes the pages covering [addr, addr+size) readable and
// writable, for ranges that hold data rather than code.
func UnprotectData(addr uintptr, size int) error {
	start, length := pageBounds(addr, size)
	var old uint32
	err := windows.VirtualProtect(start, length, windows.PAGE_READWRITE, &old)
	return errors.Wrapf(err, "VirtualProtect rw at %#x", start)
}

// Protect returns the pages covering [addr, addr+size) to read-execute.
func Protect(addr uintptr, size int) error {
	start, length := pageBounds(addr, size)
	var old uint32
	err := windows.VirtualProtect(start, length, windows.PAGE_EXECUTE_READ, &old)
	return errors.Wrapf(err, "VirtualProtect rx at %#x", start)
}

// AllocExec reserves and commits an RWX buffer of at least size bytes.
func AllocExec(size int) (uintptr, []byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size),
		windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
	if err != nil {
		return 0, nil, errors.Wrap(err, "VirtualAlloc exec buffer")
	}
	return addr, unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

// FreeExec releases a buffer obtained from AllocExec.
func FreeExec(buf []byte) error {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	return errors.Wrap(windows.VirtualFree(addr, 0, windows.MEM_RELEASE), "VirtualFree exec buffer")
}
