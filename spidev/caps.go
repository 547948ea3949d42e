package spidev

// Caps describes what the device reports it can do.
type Caps struct {
	MaxSpeedHz     uint32
	MinBitsPerWord uint8
	MaxBitsPerWord uint8
	// Features holds the driver mode bits (CSHigh, LSBFirst, ThreeWire, ...) currently reported.
	Features uint32
}

// Supports reports whether every bit in feature is set.
func (c Caps) Supports(feature uint32) bool {
	return c.Features&feature == feature
}

// Caps queries the driver. A driver that reports no speed gets DefaultMaxSpeedHz.
func (d *Device) Caps() (Caps, error) {
	if err := d.checkState(); err != nil {
		return Caps{}, err
	}
	mode, _, hz, err := readDriverState(d.sys, d.fd)
	if err != nil {
		return Caps{}, d.failErr(err)
	}
	if hz == 0 {
		hz = DefaultMaxSpeedHz
	}
	return Caps{
		MaxSpeedHz:     hz,
		MinBitsPerWord: MinBitsPerWord,
		MaxBitsPerWord: MaxBitsPerWord,
		Features:       mode & ModeUserMask,
	}, d.ok()
}
