package spidev

import (
	"math"
	"runtime"
	"unsafe"
)

// Transfer describes one segment of a batch. At least one of Tx and Rx must be set; if both are,
// they must be the same length. Tx-only transfers discard what is clocked in and Rx-only transfers
// clock out zeros.
//
// SpeedHz and BitsPerWord override the device configuration for this segment; zero inherits it.
// CSChange deasserts chip select after this segment, or, on the last segment of a batch, keeps it
// asserted after the batch.
type Transfer struct {
	Tx          []byte
	Rx          []byte
	SpeedHz     uint32
	BitsPerWord uint8
	DelayUsecs  uint16
	CSChange    bool
}

// transferLen validates a tx/rx pair and returns the transfer length.
func transferLen(tx, rx []byte) (uint32, bool) {
	if tx == nil && rx == nil {
		return 0, false
	}
	if tx != nil && rx != nil && len(tx) != len(rx) {
		return 0, false
	}
	n := max(len(tx), len(rx))
	if n == 0 || uint64(n) > math.MaxUint32 {
		return 0, false
	}
	return uint32(n), true
}

// bufAddr pins buf for the duration of the ioctl and returns its address as the kernel wants it.
func bufAddr(pinner *runtime.Pinner, buf []byte) uint64 {
	if len(buf) == 0 {
		return 0
	}
	pinner.Pin(&buf[0])
	return uint64(uintptr(unsafe.Pointer(&buf[0])))
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Transfer clocks len(tx) or len(rx) bytes in one chip-select assertion, sending tx and receiving
// into rx. Either may be nil for a half-duplex transfer. The cached speed, word size, delay and
// chip-select policy apply. The cached configuration is never modified.
func (d *Device) Transfer(tx, rx []byte) error {
	if err := d.checkState(); err != nil {
		return err
	}
	n, ok := transferLen(tx, rx)
	if !ok {
		return d.fail(ErrParam, 0)
	}

	var pinner runtime.Pinner
	defer pinner.Unpin()
	tr := IOCTransfer{
		TxBuf:       bufAddr(&pinner, tx),
		RxBuf:       bufAddr(&pinner, rx),
		Len:         n,
		SpeedHz:     d.cfg.SpeedHz,
		BitsPerWord: d.cfg.BitsPerWord,
		DelayUsecs:  d.cfg.DelayUsecs,
		CSChange:    boolToU8(d.cfg.CSChange),
	}
	if err := d.sys.Ioctl(d.fd, IocMessage(1), unsafe.Pointer(&tr)); err != nil {
		return d.failErr(err)
	}
	return d.ok()
}

// Write sends tx and discards what is received.
func (d *Device) Write(tx []byte) error {
	if err := d.checkState(); err != nil {
		return err
	}
	if len(tx) == 0 {
		return d.fail(ErrParam, 0)
	}
	return d.Transfer(tx, nil)
}

// Read fills rx while sending zeros.
func (d *Device) Read(rx []byte) error {
	if err := d.checkState(); err != nil {
		return err
	}
	if len(rx) == 0 {
		return d.fail(ErrParam, 0)
	}
	return d.Transfer(nil, rx)
}

// Batch submits 1 to MaxBatch transfers in a single ioctl. Chip select stays asserted across the
// whole batch unless a transfer sets CSChange. Every transfer is validated before anything is
// sent; the first invalid one fails the whole batch.
func (d *Device) Batch(xfers []Transfer) error {
	if err := d.checkState(); err != nil {
		return err
	}
	count := len(xfers)
	if count == 0 || count > MaxBatch {
		return d.fail(ErrParam, 0)
	}

	// the array escapes through Sys whatever its size, so it is sized to the batch
	trs := make([]IOCTransfer, count)

	var pinner runtime.Pinner
	defer pinner.Unpin()
	for i := range xfers {
		x := &xfers[i]
		n, ok := transferLen(x.Tx, x.Rx)
		if !ok {
			return d.fail(ErrParam, 0)
		}
		trs[i] = IOCTransfer{
			TxBuf:       bufAddr(&pinner, x.Tx),
			RxBuf:       bufAddr(&pinner, x.Rx),
			Len:         n,
			SpeedHz:     inherit(x.SpeedHz, d.cfg.SpeedHz),
			BitsPerWord: inherit(x.BitsPerWord, d.cfg.BitsPerWord),
			DelayUsecs:  x.DelayUsecs,
			CSChange:    boolToU8(x.CSChange),
		}
	}

	if err := d.sys.Ioctl(d.fd, IocMessage(count), unsafe.Pointer(&trs[0])); err != nil {
		return d.failErr(err)
	}
	return d.ok()
}

// inherit returns override unless it is zero.
func inherit[T uint8 | uint32](override, current T) T {
	if override != 0 {
		return override
	}
	return current
}
