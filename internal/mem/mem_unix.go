//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package mem

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Unprotect makes the pages covering [addr, addr+size) readable, writable
// and executable.
func Unprotect(addr uintptr, size int) error {
	start, length := pageBounds(addr, size)
	for i := uintptr(0); i < length; i += pageSize {
		page := Slice(start+i, int(pageSize))
		if err := unix.Mprotect(page, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
			return errors.Wrapf(err, "mprotect rwx at %#x", start+i)
		}
	}
	return nil
}

// UnprotectData makes the pages covering [addr, addr+size) readable and
// writable, for ranges that hold data rather than code.
func UnprotectData(addr uintptr, size int) error {
	start, length := pageBounds(addr, size)
	for i := uintptr(0); i < length; i += pageSize {
		page := Slice(start+i, int(pageSize))
		if err := unix.Mprotect(page, unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return errors.Wrapf(err, "mprotect rw at %#x", start+i)
		}
	}
	return nil
}

// Protect returns the pages covering [addr, addr+size) to read-execute.
func Protect(addr uintptr, size int) error {
	start, length := pageBounds(addr, size)
	for i := uintptr(0); i < length; i += pageSize {
		page := Slice(start+i, int(pageSize))
		if err := unix.Mprotect(page, unix.PROT_READ|unix.PROT_EXEC); err != nil {
			return errors.Wrapf(err, "mprotect rx at %#x", start+i)
		}
	}
	return nil
}

// AllocExec maps an anonymous RWX buffer of at least size bytes.
func AllocExec(size int) (uintptr, []byte, error) {
	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, nil, errors.Wrap(err, "mmap exec buffer")
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf))), buf, nil
}

// FreeExec releases a buffer obtained from AllocExec.
func FreeExec(buf []byte) error {
	return errors.Wrap(unix.Munmap(buf), "munmap exec buffer")
}
