package spidev

import "fmt"

// Mode bits as reported and accepted by the driver.
const (
	CPHA      uint32 = 0x01
	CPOL      uint32 = 0x02
	CSHigh    uint32 = 0x04
	LSBFirst  uint32 = 0x08
	ThreeWire uint32 = 0x10
	Loop      uint32 = 0x20
	NoCS      uint32 = 0x40
	Ready     uint32 = 0x80
	TxDual    uint32 = 0x100
	TxQuad    uint32 = 0x200
	RxDual    uint32 = 0x400
	RxQuad    uint32 = 0x800

	// ModeUserMask covers every mode bit userspace may see.
	ModeUserMask uint32 = 1<<16 - 1
)

// Mode is an SPI clock mode, the combination of clock polarity (CPOL) and phase (CPHA).
type Mode uint8

// The four canonical clock modes.
const (
	Mode0 Mode = iota // CPOL=0, CPHA=0
	Mode1             // CPOL=0, CPHA=1
	Mode2             // CPOL=1, CPHA=0
	Mode3             // CPOL=1, CPHA=1
)

var modeMasks = [4]uint32{0, CPHA, CPOL, CPOL | CPHA}

func (m Mode) String() string {
	return fmt.Sprintf("mode%d", uint8(m))
}

// EncodeMode returns the CPOL/CPHA bits for m.
//
// A mode outside Mode0..Mode3 encodes as Mode0 instead of failing. This matches what the driver
// does with garbage and is kept on purpose, even though it can hide a caller bug.
func EncodeMode(m Mode) uint32 {
	if m > Mode3 {
		return 0
	}
	return modeMasks[m]
}

// DecodeMode extracts the clock mode from a driver mode mask. Bits other than CPOL and CPHA are
// ignored.
func DecodeMode(mask uint32) Mode {
	bits := mask & (CPOL | CPHA)
	for m, modeMask := range modeMasks {
		if modeMask == bits {
			return Mode(m)
		}
	}
	return Mode0
}

// ModeMask returns the full driver mode mask for cfg: the clock mode plus the chip-select
// polarity and bit-order flags.
func ModeMask(cfg Config) uint32 {
	mask := EncodeMode(cfg.Mode)
	if cfg.CSActiveHigh {
		mask |= CSHigh
	}
	if cfg.LSBFirst {
		mask |= LSBFirst
	}
	return mask
}
