package spidev

import "unsafe"

// Sys is the set of primitive operations the engine needs from the OS. Implementations must
// behave like the corresponding system calls: on failure they return a syscall.Errno, or an error
// wrapping one, that describes the cause.
//
// A Sys is shared read-only by every Device opened with it and must not be mutated afterwards.
type Sys interface {
	Open(path string, flags int) (fd int, err error)
	Close(fd int) error
	Ioctl(fd int, req uintptr, arg unsafe.Pointer) error
}

// DefaultSys performs real system calls.
var DefaultSys Sys = unixSys{}

// sysValidator is implemented by a Sys assembled from optional parts, such as a table of
// function fields, that can be incomplete.
type sysValidator interface {
	Valid() bool
}

func sysValid(sys Sys) bool {
	if sys == nil {
		return false
	}
	if v, ok := sys.(sysValidator); ok {
		return v.Valid()
	}
	return true
}
