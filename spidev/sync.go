package spidev

import "unsafe"

// The functions below talk to the driver. They return the raw Sys error; mapping to an error kind
// happens at the Device boundary.

// readMode tries the 32-bit request first and falls back to the legacy 8-bit one.
func readMode(sys Sys, fd int) (uint32, error) {
	var mode uint32
	if err := sys.Ioctl(fd, IocRdMode32, unsafe.Pointer(&mode)); err == nil {
		return mode, nil
	}
	var mode8 uint8
	if err := sys.Ioctl(fd, IocRdMode, unsafe.Pointer(&mode8)); err != nil {
		return 0, err
	}
	return uint32(mode8), nil
}

// writeMode tries the 32-bit request first and falls back to the legacy 8-bit one, which can only
// carry the low eight mode bits.
func writeMode(sys Sys, fd int, mode uint32) error {
	if err := sys.Ioctl(fd, IocWrMode32, unsafe.Pointer(&mode)); err == nil {
		return nil
	}
	mode8 := uint8(mode)
	return sys.Ioctl(fd, IocWrMode, unsafe.Pointer(&mode8))
}

// readDriverState returns the raw mode mask, bits-per-word (clamped) and speed. Nothing is
// returned unless all three reads succeed.
func readDriverState(sys Sys, fd int) (mode uint32, bpw uint8, hz uint32, err error) {
	if mode, err = readMode(sys, fd); err != nil {
		return 0, 0, 0, err
	}
	if err = sys.Ioctl(fd, IocRdBitsPerWord, unsafe.Pointer(&bpw)); err != nil {
		return 0, 0, 0, err
	}
	if err = sys.Ioctl(fd, IocRdMaxSpeedHz, unsafe.Pointer(&hz)); err != nil {
		return 0, 0, 0, err
	}
	return mode, clampBitsPerWord(bpw), hz, nil
}

// readConfig reads the driver-visible settings. Policy fields are zero.
func readConfig(sys Sys, fd int) (Config, error) {
	mode, bpw, hz, err := readDriverState(sys, fd)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Mode:         DecodeMode(mode),
		CSActiveHigh: mode&CSHigh != 0,
		LSBFirst:     mode&LSBFirst != 0,
		BitsPerWord:  bpw,
		SpeedHz:      hz,
	}, nil
}

// writeConfig writes mode, speed and bits-per-word in that order, stopping at the first failure.
// On success it reads the settings back and returns cfg with the driver-visible fields replaced by
// what the driver actually applied; the driver may have rounded or clamped the request.
func writeConfig(sys Sys, fd int, cfg Config) (Config, error) {
	if err := writeMode(sys, fd, ModeMask(cfg)); err != nil {
		return cfg, err
	}
	hz := cfg.SpeedHz
	if err := sys.Ioctl(fd, IocWrMaxSpeedHz, unsafe.Pointer(&hz)); err != nil {
		return cfg, err
	}
	bpw := cfg.BitsPerWord
	if err := sys.Ioctl(fd, IocWrBitsPerWord, unsafe.Pointer(&bpw)); err != nil {
		return cfg, err
	}

	actual, err := readConfig(sys, fd)
	if err != nil {
		return cfg, err
	}
	return cfg.withDriverState(actual), nil
}
