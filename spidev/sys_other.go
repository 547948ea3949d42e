//go:build !linux

package spidev

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// spidev only exists on Linux. Everywhere else every call fails with ENOSYS, which maps to
// ErrNotSupported.
type unixSys struct{}

func (unixSys) Open(path string, flags int) (int, error) {
	return -1, unix.ENOSYS
}

func (unixSys) Close(fd int) error {
	return unix.ENOSYS
}

func (unixSys) Ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	return unix.ENOSYS
}
