package mcp3008_test

import (
	"context"
	"errors"
	"testing"

	"go.viam.com/test"

	"go.viam.com/spimonkey/buses"
	"go.viam.com/spimonkey/mcp3008"
	"go.viam.com/spimonkey/spidev/fake"
	"go.viam.com/spimonkey/testutils/inject"
)

func TestRead(t *testing.T) {
	ctx := context.Background()

	var gotTx []byte
	var gotCS string
	var gotBaud, gotMode uint
	closed := 0
	handle := &inject.SPIHandle{
		XferFunc: func(ctx context.Context, baud uint, chipSelect string, mode uint, tx []byte) ([]byte, error) {
			gotTx, gotCS, gotBaud, gotMode = tx, chipSelect, baud, mode
			return []byte{0xff, 0xfe, 0x34}, nil
		},
		CloseFunc: func() error {
			closed++
			return nil
		},
	}
	bus := &inject.SPI{
		OpenHandleFunc: func() (buses.SPIHandle, error) {
			return handle, nil
		},
	}

	reader := &mcp3008.Reader{Bus: bus, Channel: 5, ChipSelect: "1"}
	value, err := reader.Read(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, value, test.ShouldEqual, 0x234)
	test.That(t, gotTx, test.ShouldResemble, []byte{0x01, 0xd0, 0x00})
	test.That(t, gotCS, test.ShouldEqual, "1")
	test.That(t, gotBaud, test.ShouldEqual, 1000000)
	test.That(t, gotMode, test.ShouldEqual, 0)
	test.That(t, closed, test.ShouldEqual, 1)

	t.Run("channel range", func(t *testing.T) {
		for _, ch := range []int{-1, mcp3008.Channels} {
			_, err := (&mcp3008.Reader{Bus: bus, Channel: ch}).Read(ctx)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, "out of range")
		}
		test.That(t, closed, test.ShouldEqual, 1)
	})

	t.Run("transfer error still closes", func(t *testing.T) {
		handle.XferFunc = func(ctx context.Context, baud uint, chipSelect string, mode uint, tx []byte) ([]byte, error) {
			return nil, errors.New("bus fault")
		}
		handle.CloseFunc = func() error {
			closed++
			return errors.New("close fault")
		}
		_, err := reader.Read(ctx)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "bus fault")
		test.That(t, err.Error(), test.ShouldContainSubstring, "close fault")
		test.That(t, closed, test.ShouldEqual, 2)
	})

	t.Run("short reply", func(t *testing.T) {
		handle.XferFunc = func(ctx context.Context, baud uint, chipSelect string, mode uint, tx []byte) ([]byte, error) {
			return []byte{0}, nil
		}
		handle.CloseFunc = nil
		handle.SPIHandle = &inject.SPIHandle{CloseFunc: func() error { return nil }}
		_, err := reader.Read(ctx)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "got 1 bytes")
	})
}

func TestReadOverSpidev(t *testing.T) {
	sys := fake.New()
	sys.SetLoopback(true)
	reader := &mcp3008.Reader{Bus: buses.NewSPI(0, sys, nil), Channel: 7, ChipSelect: "0"}

	// with MOSI looped to MISO the reply is the request, whose data bits are zero
	value, err := reader.Read(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, value, test.ShouldEqual, 0)

	msg := sys.LastMessage()
	test.That(t, len(msg), test.ShouldEqual, 1)
	test.That(t, msg[0].Len, test.ShouldEqual, 3)
	test.That(t, msg[0].SpeedHz, test.ShouldEqual, 1000000)
	test.That(t, sys.IsOpen(), test.ShouldBeFalse)
}
