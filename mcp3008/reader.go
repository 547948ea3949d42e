// Package mcp3008 reads the Microchip MCP3008 8-channel 10-bit ADC over a shared SPI bus.
package mcp3008

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/spimonkey/buses"
)

const (
	// Channels is the number of single-ended inputs.
	Channels = 8
	// MaxValue is the largest sample the converter returns.
	MaxValue = 1<<10 - 1

	baud = 1000000
	mode = 0
)

// Reader reads one channel of an MCP3008 on Bus at ChipSelect.
type Reader struct {
	Bus        buses.SPI
	Channel    int
	ChipSelect string
}

// Read returns a 10-bit sample.
func (r *Reader) Read(ctx context.Context) (int, error) {
	if r.Channel < 0 || r.Channel >= Channels {
		return 0, errors.Errorf("mcp3008 channel %d out of range [0, %d)", r.Channel, Channels)
	}
	tx := []byte{
		1,                      // start bit
		byte(8|r.Channel) << 4, // single-ended, channel select
		0,                      // clocks out the low byte
	}

	rx, err := buses.Transact(ctx, r.Bus, baud, r.ChipSelect, mode, tx)
	if err != nil {
		return 0, errors.Wrap(err, "mcp3008 read")
	}
	if len(rx) != len(tx) {
		return 0, errors.Errorf("mcp3008 read: got %d bytes, want %d", len(rx), len(tx))
	}
	return int(rx[1]&0x03)<<8 | int(rx[2]), nil
}
