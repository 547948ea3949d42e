// Package inject provides test doubles whose behavior is set through function fields.
package inject

import (
	"unsafe"

	"go.viam.com/spimonkey/spidev"
)

// Sys is an injected spidev.Sys. Each call goes to the matching Func field if set, otherwise to the
// embedded Sys.
type Sys struct {
	spidev.Sys
	OpenFunc  func(path string, flags int) (int, error)
	CloseFunc func(fd int) error
	IoctlFunc func(fd int, req uintptr, arg unsafe.Pointer) error
}

// Open calls the injected OpenFunc or the real version.
func (s *Sys) Open(path string, flags int) (int, error) {
	if s.OpenFunc == nil {
		return s.Sys.Open(path, flags)
	}
	return s.OpenFunc(path, flags)
}

// Close calls the injected CloseFunc or the real version.
func (s *Sys) Close(fd int) error {
	if s.CloseFunc == nil {
		return s.Sys.Close(fd)
	}
	return s.CloseFunc(fd)
}

// Ioctl calls the injected IoctlFunc or the real version.
func (s *Sys) Ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	if s.IoctlFunc == nil {
		return s.Sys.Ioctl(fd, req, arg)
	}
	return s.IoctlFunc(fd, req, arg)
}

// Valid reports whether every call has somewhere to go. spidev refuses to use an incomplete Sys.
func (s *Sys) Valid() bool {
	if s == nil {
		return false
	}
	if s.Sys != nil {
		return true
	}
	return s.OpenFunc != nil && s.CloseFunc != nil && s.IoctlFunc != nil
}
