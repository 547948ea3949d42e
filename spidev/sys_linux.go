//go:build linux

package spidev

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

type unixSys struct{}

func (unixSys) Open(path string, flags int) (int, error) {
	return unix.Open(path, flags|unix.O_CLOEXEC, 0)
}

func (unixSys) Close(fd int) error {
	return unix.Close(fd)
}

func (unixSys) Ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
