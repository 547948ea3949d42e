package spidev

import (
	"math"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Port exposes a Device as a periph.io spi.PortCloser so drivers written against periph can use
// it. Connect goes through SetConfig, so the settings periph asks for are verified and cached like
// any other.
type Port struct {
	dev *Device
}

var (
	_ spi.PortCloser = (*Port)(nil)
	_ spi.Conn       = (*Conn)(nil)
)

// NewPort wraps dev. Closing the Port closes dev.
func NewPort(dev *Device) *Port {
	return &Port{dev: dev}
}

func (p *Port) String() string {
	return p.dev.String()
}

// Close closes the underlying Device.
func (p *Port) Close() error {
	return p.dev.Close()
}

// LimitSpeed sets the device clock.
func (p *Port) LimitSpeed(f physic.Frequency) error {
	hz, err := frequencyToHz(f)
	if err != nil {
		return err
	}
	return p.dev.SetSpeed(hz)
}

// Connect applies the clock, mode and word size. A zero frequency keeps the current speed.
// Half-duplex and no-chip-select modes are not supported by this engine.
func (p *Port) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if mode&(spi.HalfDuplex|spi.NoCS) != 0 {
		return nil, ErrNotSupported
	}
	if bits <= 0 || bits > math.MaxUint8 {
		return nil, ErrParam
	}
	cfg := p.dev.Config()
	if f != 0 {
		hz, err := frequencyToHz(f)
		if err != nil {
			return nil, err
		}
		cfg.SpeedHz = hz
	}
	cfg.Mode = Mode(mode & spi.Mode3)
	cfg.LSBFirst = mode&spi.LSBFirst != 0
	cfg.BitsPerWord = uint8(bits)
	if err := p.dev.SetConfig(cfg); err != nil {
		return nil, err
	}
	return &Conn{dev: p.dev}, nil
}

func frequencyToHz(f physic.Frequency) (uint32, error) {
	hz := f / physic.Hertz
	if hz <= 0 || hz > math.MaxUint32 {
		return 0, ErrParam
	}
	return uint32(hz), nil
}

// Conn is a connected Port.
type Conn struct {
	dev *Device
}

func (c *Conn) String() string {
	return c.dev.String()
}

// Halt is a no-op; transfers are synchronous.
func (c *Conn) Halt() error {
	return nil
}

// Duplex always reports full duplex.
func (c *Conn) Duplex() conn.Duplex {
	return conn.Full
}

// Tx does one transfer. Either w or r may be empty.
func (c *Conn) Tx(w, r []byte) error {
	return c.dev.Transfer(nilIfEmpty(w), nilIfEmpty(r))
}

// TxPackets sends the packets as one batch. A packet with KeepCS holds chip select asserted after
// it completes; otherwise chip select is released between packets.
func (c *Conn) TxPackets(pkts []spi.Packet) error {
	xfers := make([]Transfer, len(pkts))
	for i, pkt := range pkts {
		last := i == len(pkts)-1
		// spidev's cs_change flips meaning on the last transfer of a message.
		csChange := !pkt.KeepCS
		if last {
			csChange = pkt.KeepCS
		}
		xfers[i] = Transfer{
			Tx:          nilIfEmpty(pkt.W),
			Rx:          nilIfEmpty(pkt.R),
			BitsPerWord: pkt.BitsPerWord,
			CSChange:    csChange,
		}
	}
	return c.dev.Batch(xfers)
}

func nilIfEmpty(buf []byte) []byte {
	if len(buf) == 0 {
		return nil
	}
	return buf
}
