package spidev

import "unsafe"

// See Linux "include/uapi/linux/spi/spidev.h" and "Documentation/spi/spidev.rst".

// Request codes understood by the spidev driver.
const (
	IocRdMode        = 0x80016b01 // _IOR('k', 1, __u8)
	IocWrMode        = 0x40016b01 // _IOW('k', 1, __u8)
	IocRdLSBFirst    = 0x80016b02
	IocWrLSBFirst    = 0x40016b02
	IocRdBitsPerWord = 0x80016b03 // _IOR('k', 3, __u8)
	IocWrBitsPerWord = 0x40016b03 // _IOW('k', 3, __u8)
	IocRdMaxSpeedHz  = 0x80046b04 // _IOR('k', 4, __u32)
	IocWrMaxSpeedHz  = 0x40046b04 // _IOW('k', 4, __u32)
	IocRdMode32      = 0x80046b05 // _IOR('k', 5, __u32)
	IocWrMode32      = 0x40046b05 // _IOW('k', 5, __u32)
)

const (
	iocMessageBase = 0x40006b00 // _IOW('k', 0, char[0])
	iocSizeShift   = 16
	iocSizeBits    = 14
	iocSizeMask    = 1<<iocSizeBits - 1
)

// IOCTransfer mirrors struct spi_ioc_transfer. Multiple such transfers may be chained together in
// a single SPI_IOC_MESSAGE ioctl call.
type IOCTransfer struct {
	TxBuf          uint64
	RxBuf          uint64
	Len            uint32
	SpeedHz        uint32
	DelayUsecs     uint16
	BitsPerWord    uint8
	CSChange       uint8
	TxNBits        uint8
	RxNBits        uint8
	WordDelayUsecs uint8
	Pad            uint8
}

// IOCTransferSize is the size the kernel expects for one transfer descriptor.
const IOCTransferSize = int(unsafe.Sizeof(IOCTransfer{}))

// IocMessage returns the SPI_IOC_MESSAGE(n) request code. Like the kernel macro, a size that does
// not fit in the request's size field encodes as zero.
func IocMessage(n int) uintptr {
	size := n * IOCTransferSize
	if n < 0 || size > iocSizeMask {
		size = 0
	}
	return uintptr(iocMessageBase | size<<iocSizeShift)
}

// MessageCount reports whether req is an SPI_IOC_MESSAGE request and, if so, how many transfer
// descriptors it carries. A request whose size is not a multiple of the descriptor size is
// reported as a message with ok set and n of -1.
func MessageCount(req uintptr) (n int, ok bool) {
	if req&^(iocSizeMask<<iocSizeShift) != iocMessageBase {
		return 0, false
	}
	size := int(req>>iocSizeShift) & iocSizeMask
	if size%IOCTransferSize != 0 {
		return -1, true
	}
	return size / IOCTransferSize, true
}
