// Package fake implements a simulated spidev driver behind the spidev.Sys interface, with call
// counters and fault injection for tests.
package fake

import (
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"go.viam.com/spimonkey/spidev"
)

// Fd is the descriptor handed out by a successful Open.
const Fd = 3

// Driver defaults after New or Reset.
const (
	DefaultMode        uint32 = 0
	DefaultBitsPerWord uint8  = 8
	DefaultMaxSpeedHz  uint32 = 1000000
)

// Variant selects which mode ioctls the simulated driver understands.
type Variant int

const (
	// Both the 32-bit and the 8-bit mode requests work.
	Both Variant = iota
	// WideOnly rejects the legacy 8-bit mode requests.
	WideOnly
	// NarrowOnly rejects the 32-bit mode requests, like kernels predating SPI_IOC_RD_MODE32.
	NarrowOnly
)

// Stats counts ioctl calls by category. Message counts transfer descriptors, not calls.
type Stats struct {
	Total   uint64
	Read    uint64
	Write   uint64
	Message uint64
	Fail    uint64
}

// Sys is a simulated spidev device node. The zero value is not usable; call New.
type Sys struct {
	mu sync.Mutex

	fd          int
	mode        uint32
	bitsPerWord uint8
	maxSpeedHz  uint32

	variant    Variant
	speedLimit uint32
	loopback   bool

	failOpen  bool
	failClose bool
	failNext  map[uintptr]int
	failAll   bool
	failErrno syscall.Errno

	stats    Stats
	calls    map[uintptr]int
	messages [][]spidev.IOCTransfer
	opened   []string
}

var _ spidev.Sys = (*Sys)(nil)

// New returns a closed simulated device with default settings.
func New() *Sys {
	s := &Sys{}
	s.Reset()
	return s
}

// Reset restores defaults, clears fault injection and statistics and closes the device.
func (s *Sys) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fd = -1
	s.mode, s.bitsPerWord, s.maxSpeedHz = DefaultMode, DefaultBitsPerWord, DefaultMaxSpeedHz
	s.variant, s.speedLimit, s.loopback = Both, 0, false
	s.failOpen, s.failClose, s.failAll = false, false, false
	s.failNext = map[uintptr]int{}
	s.failErrno = unix.EIO
	s.stats = Stats{}
	s.calls = map[uintptr]int{}
	s.messages = nil
	s.opened = nil
}

// SetDefaults sets the driver state as if another process had configured it.
func (s *Sys) SetDefaults(mode uint32, bitsPerWord uint8, maxSpeedHz uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode, s.bitsPerWord, s.maxSpeedHz = mode, bitsPerWord, maxSpeedHz
}

// SetVariant chooses which mode requests are understood.
func (s *Sys) SetVariant(v Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variant = v
}

// SetSpeedLimit makes the driver clamp written speeds to hz, as a real controller rounds to the
// nearest divisor it supports. Zero disables clamping.
func (s *Sys) SetSpeedLimit(hz uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speedLimit = hz
}

// SetLoopback makes message transfers copy each tx buffer into its rx buffer, like MOSI wired to
// MISO. Rx-only transfers receive zeros.
func (s *Sys) SetLoopback(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopback = on
}

// SetFailOpen makes Open fail with EACCES.
func (s *Sys) SetFailOpen(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOpen = fail
}

// SetFailClose makes Close fail with the failure errno. The descriptor is released anyway.
func (s *Sys) SetFailClose(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failClose = fail
}

// FailNext fails the next call of each request in reqs. Naming a request twice fails its next two
// calls. Use IocMessage(n) to fail a transfer of n descriptors.
func (s *Sys) FailNext(reqs ...uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range reqs {
		s.failNext[req]++
	}
}

// SetFailIoctl fails every ioctl until turned off.
func (s *Sys) SetFailIoctl(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = fail
}

// SetFailErrno sets the errno used by injected ioctl and close failures. Default EIO.
func (s *Sys) SetFailErrno(errno syscall.Errno) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErrno = errno
}

// Stats returns a snapshot of the ioctl counters.
func (s *Sys) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ResetStats zeroes the counters and forgets recorded calls and messages.
func (s *Sys) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Stats{}
	s.calls = map[uintptr]int{}
	s.messages = nil
}

// Calls returns how many times req was issued since the last reset.
func (s *Sys) Calls(req uintptr) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[req]
}

// Messages returns a copy of every transfer array submitted since the last reset.
func (s *Sys) Messages() [][]spidev.IOCTransfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]spidev.IOCTransfer, len(s.messages))
	for i, msg := range s.messages {
		out[i] = append([]spidev.IOCTransfer(nil), msg...)
	}
	return out
}

// LastMessage returns the most recently submitted transfer array, or nil.
func (s *Sys) LastMessage() []spidev.IOCTransfer {
	msgs := s.Messages()
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// Opened returns every path passed to a successful Open.
func (s *Sys) Opened() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.opened...)
}

// IsOpen reports whether a descriptor is outstanding.
func (s *Sys) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd >= 0
}

// State returns the current driver settings.
func (s *Sys) State() (mode uint32, bitsPerWord uint8, maxSpeedHz uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.bitsPerWord, s.maxSpeedHz
}

// Open hands out Fd. Only one descriptor may be outstanding.
func (s *Sys) Open(path string, flags int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOpen {
		return -1, unix.EACCES
	}
	if s.fd >= 0 {
		return -1, unix.EBUSY
	}
	s.fd = Fd
	s.opened = append(s.opened, path)
	return s.fd, nil
}

// Close releases the descriptor.
func (s *Sys) Close(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 || fd != s.fd {
		return unix.EBADF
	}
	s.fd = -1
	if s.failClose {
		return s.failErrno
	}
	return nil
}

type category int

const (
	other category = iota
	read
	write
	message
)

func categorize(req uintptr) category {
	switch req {
	case spidev.IocRdMode32, spidev.IocRdMode, spidev.IocRdBitsPerWord, spidev.IocRdMaxSpeedHz:
		return read
	case spidev.IocWrMode32, spidev.IocWrMode, spidev.IocWrBitsPerWord, spidev.IocWrMaxSpeedHz:
		return write
	}
	if _, ok := spidev.MessageCount(req); ok {
		return message
	}
	return other
}

func (s *Sys) shouldFail(req uintptr) bool {
	if s.failAll {
		return true
	}
	if s.failNext[req] > 0 {
		s.failNext[req]--
		return true
	}
	return false
}

func (s *Sys) failed(errno syscall.Errno) error {
	s.stats.Fail++
	return errno
}

// Ioctl implements the spidev request set.
func (s *Sys) Ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cat := categorize(req)
	s.stats.Total++
	s.calls[req]++
	switch cat {
	case read:
		s.stats.Read++
	case write:
		s.stats.Write++
	case other, message:
	}

	if s.fd < 0 || fd != s.fd {
		return s.failed(unix.EBADF)
	}
	if s.shouldFail(req) {
		return s.failed(s.failErrno)
	}

	if cat == message {
		n, _ := spidev.MessageCount(req)
		if n <= 0 {
			return s.failed(unix.EINVAL)
		}
		s.stats.Message += uint64(n)
		trs := unsafe.Slice((*spidev.IOCTransfer)(arg), n)
		s.messages = append(s.messages, append([]spidev.IOCTransfer(nil), trs...))
		if s.loopback {
			loop(trs)
		}
		return nil
	}

	switch req {
	case spidev.IocRdMode32:
		if s.variant == NarrowOnly {
			return s.failed(unix.ENOTTY)
		}
		*(*uint32)(arg) = s.mode
	case spidev.IocRdMode:
		if s.variant == WideOnly {
			return s.failed(unix.ENOTTY)
		}
		*(*uint8)(arg) = uint8(s.mode)
	case spidev.IocRdBitsPerWord:
		*(*uint8)(arg) = s.bitsPerWord
	case spidev.IocRdMaxSpeedHz:
		*(*uint32)(arg) = s.maxSpeedHz
	case spidev.IocWrMode32:
		if s.variant == NarrowOnly {
			return s.failed(unix.ENOTTY)
		}
		s.mode = *(*uint32)(arg)
	case spidev.IocWrMode:
		if s.variant == WideOnly {
			return s.failed(unix.ENOTTY)
		}
		s.mode = uint32(*(*uint8)(arg))
	case spidev.IocWrBitsPerWord:
		s.bitsPerWord = *(*uint8)(arg)
	case spidev.IocWrMaxSpeedHz:
		hz := *(*uint32)(arg)
		if s.speedLimit != 0 && hz > s.speedLimit {
			hz = s.speedLimit
		}
		s.maxSpeedHz = hz
	default:
		return s.failed(unix.EINVAL)
	}
	return nil
}

// loop plays the driver's part of reading buffer addresses out of the descriptors. The caller keeps
// those buffers pinned for the length of the ioctl, which checkptr cannot see.
//
//go:nocheckptr
func loop(trs []spidev.IOCTransfer) {
	for _, tr := range trs {
		if tr.RxBuf == 0 {
			continue
		}
		rx := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(tr.RxBuf))), tr.Len)
		if tr.TxBuf == 0 {
			clear(rx)
			continue
		}
		copy(rx, unsafe.Slice((*byte)(unsafe.Pointer(uintptr(tr.TxBuf))), tr.Len))
	}
}
