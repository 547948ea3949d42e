package buses

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"go.viam.com/spimonkey/logging"
	"go.viam.com/spimonkey/spidev"
)

// NewSPI returns a shareable handle to SPI bus number bus. Each transfer opens
// /dev/spidev<bus>.<chipSelect> through sys, which may be nil for the real system calls.
func NewSPI(bus uint8, sys spidev.Sys, logger logging.Logger) SPI {
	if logger == nil {
		logger = logging.NewBlankLogger("spi")
	}
	return &spiBus{bus: bus, sys: sys, logger: logger}
}

type spiBus struct {
	mu     sync.Mutex
	bus    uint8
	sys    spidev.Sys
	logger logging.Logger
}

type spiHandle struct {
	bus      *spiBus
	isClosed bool
}

func (sb *spiBus) OpenHandle() (SPIHandle, error) {
	sb.mu.Lock()
	return &spiHandle{bus: sb, isClosed: false}, nil
}

func (sb *spiBus) Close(ctx context.Context) error {
	return nil
}

func (sh *spiHandle) Xfer(ctx context.Context, baud uint, chipSelect string, mode uint, tx []byte) (rx []byte, err error) {
	if sh.isClosed {
		return nil, errors.New("can't use Xfer() on an already closed SPIHandle")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cs, err := strconv.ParseUint(chipSelect, 10, 8)
	if err != nil {
		return nil, errors.Wrapf(err, "bad chip select %q", chipSelect)
	}

	dev, err := spidev.OpenWithSys(sh.bus.bus, uint8(cs), nil, sh.bus.sys, sh.bus.logger)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", spidev.DevicePath(sh.bus.bus, uint8(cs)))
	}
	port := spidev.NewPort(dev)
	defer func() {
		err = multierr.Combine(err, port.Close())
	}()
	conn, err := port.Connect(physic.Hertz*physic.Frequency(baud), spi.Mode(mode), 8)
	if err != nil {
		return nil, errors.Wrapf(err, "configuring %s", dev)
	}
	sh.bus.logger.CDebugw(ctx, "spi transfer", "device", dev.Path(), "baud", baud, "mode", mode, "len", len(tx))
	rx = make([]byte, len(tx))
	return rx, conn.Tx(tx, rx)
}

func (sh *spiHandle) Close() error {
	if sh.isClosed {
		return errors.New("SPIHandle already closed")
	}
	sh.isClosed = true
	sh.bus.mu.Unlock()
	return nil
}
