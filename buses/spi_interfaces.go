// Package buses offers shareable SPI buses on top of the spidev engine.
package buses

import (
	"context"

	"go.uber.org/multierr"
)

// SPI is one bus number shared by every chip select behind it.
type SPI interface {
	// OpenHandle waits for exclusive use of the bus. The handle must be closed to let other users
	// in.
	OpenHandle() (SPIHandle, error)
	Close(ctx context.Context) error
}

// SPIHandle is exclusive use of an SPI bus, held until Close.
type SPIHandle interface {
	// Xfer clocks tx out to the device at chipSelect and returns the len(tx) bytes clocked in
	// while chip select is asserted. Reads send a command followed by filler bytes.
	Xfer(ctx context.Context, baud uint, chipSelect string, mode uint, tx []byte) ([]byte, error)

	// Close releases the bus.
	Close() error
}

// Transact opens a handle on bus, performs one transfer and releases the bus again.
func Transact(ctx context.Context, bus SPI, baud uint, chipSelect string, mode uint, tx []byte) (rx []byte, err error) {
	handle, err := bus.OpenHandle()
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, handle.Close())
	}()
	return handle.Xfer(ctx, baud, chipSelect, mode, tx)
}
