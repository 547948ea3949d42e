// Package spidev drives SPI peripherals through the Linux spidev character device. A Device keeps
// a cached copy of the driver configuration that is verified against the driver after every
// write, and submits single or batched full-duplex transfers with one ioctl each.
//
// A Device is not safe for concurrent use.
package spidev

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"go.viam.com/spimonkey/logging"
)

const closedFd = -1

// Device is an open spidev device.
type Device struct {
	fd      int
	bus     uint8
	cs      uint8
	cfg     Config
	path    string
	lastErr *Error
	sys     Sys
	logger  logging.Logger
}

// DevicePath returns the spidev node for a bus and chip-select pair, e.g. "/dev/spidev1.2".
func DevicePath(bus, cs uint8) string {
	path := fmt.Sprintf("/dev/spidev%d.%d", bus, cs)
	if len(path) > PathMax-1 {
		path = path[:PathMax-1]
	}
	return path
}

// Open opens /dev/spidev<bus>.<cs> with the real system calls. See OpenWithSys.
func Open(bus, cs uint8, cfg *Config, logger logging.Logger) (*Device, error) {
	return OpenWithSys(bus, cs, cfg, DefaultSys, logger)
}

// OpenWithSys opens /dev/spidev<bus>.<cs> through sys, then sanitizes cfg (DefaultConfig if nil),
// writes it to the driver and caches what the driver reports back. The cached configuration may
// therefore differ from cfg.
//
// A nil sys means DefaultSys. Either a fully usable Device is returned or nil and an error, in
// which case the file descriptor has already been closed again.
func OpenWithSys(bus, cs uint8, cfg *Config, sys Sys, logger logging.Logger) (*Device, error) {
	if sys == nil {
		sys = DefaultSys
	}
	if !sysValid(sys) {
		return nil, newError(ErrParam, 0, 0)
	}
	if logger == nil {
		logger = logging.NewBlankLogger("spidev")
	}

	path := DevicePath(bus, cs)
	fd, err := sys.Open(path, unix.O_RDWR)
	if err != nil {
		errno := errnoOf(err)
		return nil, newError(MapErrno(errno), errno, 0)
	}

	d := &Device{
		fd:     fd,
		bus:    bus,
		cs:     cs,
		path:   path,
		sys:    sys,
		logger: logger,
	}
	want := DefaultConfig()
	if cfg != nil {
		want = *cfg
	}
	if err := d.setConfig(want); err != nil {
		//nolint:errcheck
		sys.Close(fd)
		return nil, err
	}

	logger.Debugw("opened spidev device", "path", path, "config", d.cfg)
	return d, nil
}

// Close closes the file descriptor. The Device is unusable afterwards even when the close system
// call fails, in which case the mapped error is returned.
func (d *Device) Close() error {
	if d == nil {
		return ErrParam
	}
	if d.fd < 0 {
		return d.record(newError(ErrState, 0, 0))
	}

	fd := d.fd
	d.fd = closedFd
	if !sysValid(d.sys) {
		d.logger.Warnw("cannot close spidev device, system calls unavailable; descriptor leaked", "path", d.path, "fd", fd)
		return d.ok()
	}
	if err := d.sys.Close(fd); err != nil {
		d.logger.Warnw("closing spidev device failed", "path", d.path, "error", err)
		return d.failErr(err)
	}
	return d.ok()
}

// Config returns the cached configuration. It reflects the driver as of the last successful
// write or refresh.
func (d *Device) Config() Config {
	return d.cfg
}

// ReadConfig queries the driver for its current settings without touching the cache. DelayUsecs
// and CSChange, which the driver does not know about, are taken from the cache.
func (d *Device) ReadConfig() (Config, error) {
	if err := d.checkState(); err != nil {
		return Config{}, err
	}
	actual, err := readConfig(d.sys, d.fd)
	if err != nil {
		return Config{}, d.failErr(err)
	}
	return d.cfg.withDriverState(actual), d.ok()
}

// SetConfig sanitizes cfg, writes it, reads it back and caches the result. On failure the cache
// keeps its previous value.
func (d *Device) SetConfig(cfg Config) error {
	if err := d.checkState(); err != nil {
		return err
	}
	return d.setConfig(cfg)
}

func (d *Device) setConfig(cfg Config) error {
	want := cfg.Sanitized()
	got, err := writeConfig(d.sys, d.fd, want)
	if err != nil {
		return d.failErr(err)
	}
	if got != want {
		d.logger.Debugw("driver adjusted configuration", "path", d.path, "requested", want, "applied", got)
	}
	d.cfg = got
	return d.ok()
}

// RefreshConfig re-reads the driver settings into the cache, for when something else may have
// changed them. DelayUsecs and CSChange are left alone.
func (d *Device) RefreshConfig() error {
	if err := d.checkState(); err != nil {
		return err
	}
	actual, err := readConfig(d.sys, d.fd)
	if err != nil {
		return d.failErr(err)
	}
	d.cfg = d.cfg.withDriverState(actual)
	return d.ok()
}

// SetSpeed changes only the clock speed. The driver may round it.
func (d *Device) SetSpeed(hz uint32) error {
	if err := d.checkState(); err != nil {
		return err
	}
	if hz == 0 {
		return d.fail(ErrParam, 0)
	}
	cfg := d.cfg
	cfg.SpeedHz = hz
	return d.setConfig(cfg)
}

// SetMode changes only the clock mode; bit order and chip-select polarity are kept.
func (d *Device) SetMode(mode Mode) error {
	if err := d.checkState(); err != nil {
		return err
	}
	cfg := d.cfg
	cfg.Mode = mode
	return d.setConfig(cfg)
}

// SetBitsPerWord changes only the word size.
func (d *Device) SetBitsPerWord(bpw uint8) error {
	if err := d.checkState(); err != nil {
		return err
	}
	cfg := d.cfg
	cfg.BitsPerWord = bpw
	return d.setConfig(cfg)
}

// Path returns the device node path.
func (d *Device) Path() string {
	return d.path
}

// CopyPath writes the NUL-terminated device path into dst, which must have room for the path and
// the terminator.
func (d *Device) CopyPath(dst []byte) error {
	if d == nil || len(dst) == 0 || len(d.path) >= len(dst) {
		return newError(ErrParam, 0, 0)
	}
	n := copy(dst, d.path)
	dst[n] = 0
	return nil
}

// Fd returns the raw file descriptor, or -1 once closed. Changing the device settings through it
// leaves the cached configuration stale until RefreshConfig is called.
func (d *Device) Fd() int {
	if d == nil {
		return closedFd
	}
	return d.fd
}

// Bus returns the bus number.
func (d *Device) Bus() uint8 {
	return d.bus
}

// ChipSelect returns the chip-select line.
func (d *Device) ChipSelect() uint8 {
	return d.cs
}

// LastError returns the record of the most recent failed call, or nil if the most recent call
// succeeded.
func (d *Device) LastError() *Error {
	return d.lastErr
}

func (d *Device) String() string {
	return d.path
}

// checkState rejects calls on a nil, closed or half-built Device.
func (d *Device) checkState() error {
	if d == nil {
		return ErrState
	}
	if !sysValid(d.sys) || d.fd < 0 {
		return d.record(newError(ErrState, 0, 1))
	}
	return nil
}

func (d *Device) fail(code Code, errno syscall.Errno) error {
	return d.record(newError(code, errno, 1))
}

// failErr maps an error returned by Sys.
func (d *Device) failErr(err error) error {
	errno := errnoOf(err)
	return d.record(newError(MapErrno(errno), errno, 1))
}

func (d *Device) record(e *Error) error {
	d.lastErr = e
	return e
}

func (d *Device) ok() error {
	d.lastErr = nil
	return nil
}
