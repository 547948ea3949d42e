package spidev

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Code classifies a failure by kind. A Code is itself an error, so callers can test any error
// returned by this package with errors.Is(err, spidev.ErrState) and friends.
type Code int

// Error kinds. The numbering is stable.
const (
	OK              Code = 0
	ErrParam        Code = -1
	ErrNotSupported Code = -2
	ErrNoDevice     Code = -3
	ErrBus          Code = -4
	ErrTimeout      Code = -5
	ErrIO           Code = -6
	ErrState        Code = -7
	ErrConfig       Code = -8
	ErrNoMem        Code = -9
	ErrCRC          Code = -10
	ErrAgain        Code = -11
)

var codeText = map[Code]string{
	OK:              "ok",
	ErrParam:        "invalid argument",
	ErrNotSupported: "operation not supported",
	ErrNoDevice:     "no such device",
	ErrBus:          "bus error",
	ErrTimeout:      "timed out",
	ErrIO:           "i/o error",
	ErrState:        "invalid state",
	ErrConfig:       "invalid configuration",
	ErrNoMem:        "out of memory",
	ErrCRC:          "data integrity error",
	ErrAgain:        "resource temporarily unavailable",
}

func (c Code) Error() string {
	if text, ok := codeText[c]; ok {
		return "spidev: " + text
	}
	return fmt.Sprintf("spidev: error %d", int(c))
}

// Temporary reports whether retrying the same call may succeed.
func (c Code) Temporary() bool {
	return c == ErrAgain || c == ErrTimeout
}

// MapErrno translates an OS error number into an error kind. The table is fixed so behavior is
// the same on every platform sharing Linux errno numbering.
func MapErrno(errno syscall.Errno) Code {
	switch errno {
	case 0:
		return OK
	case unix.EINVAL, unix.ENOTDIR, unix.EISDIR:
		return ErrConfig
	case unix.ENOSYS, unix.ENOTTY, unix.EOPNOTSUPP:
		return ErrNotSupported
	case unix.ENODEV, unix.ENXIO:
		return ErrNoDevice
	case unix.ETIMEDOUT:
		return ErrTimeout
	case unix.EAGAIN, unix.EINTR, unix.EBUSY:
		return ErrAgain
	case unix.EIO, unix.EFAULT:
		return ErrIO
	case unix.ENOMEM:
		return ErrNoMem
	case unix.EACCES, unix.EPERM, unix.EBADF:
		return ErrState
	default:
		// EPROTO and everything unknown.
		return ErrBus
	}
}

// errnoOf digs the errno out of an error returned by a Sys implementation. An error that carries
// no errno is treated as EIO.
func errnoOf(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}

// Error is the record of a failed call: the kind, the OS error number captured at the failure
// (zero for validation failures) and where in this package it was detected.
type Error struct {
	Code  Code
	Errno syscall.Errno
	Op    string
	File  string
	Line  int
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code.Error())
	if e.Op != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.Op)
	}
	if e.Errno != 0 {
		sb.WriteString(": ")
		sb.WriteString(e.Errno.Error())
	}
	return sb.String()
}

// Unwrap returns the OS error, if any.
func (e *Error) Unwrap() error {
	if e.Errno == 0 {
		return nil
	}
	return e.Errno
}

// Is matches the error kind.
func (e *Error) Is(target error) bool {
	code, ok := target.(Code)
	return ok && code == e.Code
}

// Location returns "file:line" of the failure site.
func (e *Error) Location() string {
	return fmt.Sprintf("%s:%d", e.File, e.Line)
}

// newError builds an Error located at the function calling newError, or skip frames above it.
func newError(code Code, errno syscall.Errno, skip int) *Error {
	e := &Error{Code: code, Errno: errno}
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return e
	}
	e.File, e.Line = filepath.Base(file), line
	if fn := runtime.FuncForPC(pc); fn != nil {
		name := fn.Name()
		e.Op = name[strings.LastIndex(name, ".")+1:]
	}
	return e
}
