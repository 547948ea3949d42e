package spidev_test

import (
	"errors"
	"testing"
	"unsafe"

	"go.viam.com/test"
	"golang.org/x/sys/unix"

	"go.viam.com/spimonkey/logging"
	"go.viam.com/spimonkey/spidev"
	"go.viam.com/spimonkey/spidev/fake"
	"go.viam.com/spimonkey/testutils/inject"
)

func openFake(t *testing.T, cfg *spidev.Config) (*spidev.Device, *fake.Sys) {
	t.Helper()
	sys := fake.New()
	dev, err := spidev.OpenWithSys(1, 2, cfg, sys, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	sys.ResetStats()
	return dev, sys
}

func TestOpen(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("default config", func(t *testing.T) {
		sys := fake.New()
		dev, err := spidev.OpenWithSys(1, 2, nil, sys, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dev.Config(), test.ShouldResemble, spidev.DefaultConfig())
		test.That(t, dev.Path(), test.ShouldEqual, "/dev/spidev1.2")
		test.That(t, dev.String(), test.ShouldEqual, "/dev/spidev1.2")
		test.That(t, dev.Bus(), test.ShouldEqual, 1)
		test.That(t, dev.ChipSelect(), test.ShouldEqual, 2)
		test.That(t, dev.Fd(), test.ShouldEqual, fake.Fd)
		test.That(t, dev.LastError(), test.ShouldBeNil)
		test.That(t, sys.Opened(), test.ShouldResemble, []string{"/dev/spidev1.2"})

		// mode, speed and bpw written, then all three read back
		stats := sys.Stats()
		test.That(t, stats.Write, test.ShouldEqual, 3)
		test.That(t, stats.Read, test.ShouldEqual, 3)
		test.That(t, dev.Close(), test.ShouldBeNil)
	})

	t.Run("requested config", func(t *testing.T) {
		sys := fake.New()
		cfg := spidev.Config{
			Mode:         spidev.Mode3,
			SpeedHz:      4000000,
			BitsPerWord:  16,
			LSBFirst:     true,
			CSActiveHigh: true,
			DelayUsecs:   5,
			CSChange:     true,
		}
		dev, err := spidev.OpenWithSys(0, 0, &cfg, sys, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dev.Config(), test.ShouldResemble, cfg)

		mode, bpw, hz := sys.State()
		test.That(t, mode, test.ShouldEqual, spidev.CPOL|spidev.CPHA|spidev.CSHigh|spidev.LSBFirst)
		test.That(t, bpw, test.ShouldEqual, 16)
		test.That(t, hz, test.ShouldEqual, 4000000)
		test.That(t, dev.Close(), test.ShouldBeNil)
	})

	t.Run("incomplete sys issues no calls", func(t *testing.T) {
		var calls int
		sys := &inject.Sys{
			OpenFunc: func(path string, flags int) (int, error) {
				calls++
				return 3, nil
			},
		}
		dev, err := spidev.OpenWithSys(0, 0, nil, sys, logger)
		test.That(t, dev, test.ShouldBeNil)
		test.That(t, errors.Is(err, spidev.ErrParam), test.ShouldBeTrue)
		test.That(t, calls, test.ShouldEqual, 0)
	})

	t.Run("open failure", func(t *testing.T) {
		sys := fake.New()
		sys.SetFailOpen(true)
		dev, err := spidev.OpenWithSys(0, 0, nil, sys, logger)
		test.That(t, dev, test.ShouldBeNil)
		test.That(t, errors.Is(err, spidev.ErrState), test.ShouldBeTrue)
		test.That(t, errors.Is(err, unix.EACCES), test.ShouldBeTrue)
		test.That(t, sys.Stats().Total, test.ShouldEqual, 0)
	})

	t.Run("busy", func(t *testing.T) {
		sys := fake.New()
		dev, err := spidev.OpenWithSys(0, 0, nil, sys, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = spidev.OpenWithSys(0, 0, nil, sys, logger)
		test.That(t, errors.Is(err, spidev.ErrAgain), test.ShouldBeTrue)
		test.That(t, dev.Close(), test.ShouldBeNil)
	})

	t.Run("config failure closes the descriptor", func(t *testing.T) {
		sys := fake.New()
		sys.FailNext(spidev.IocWrMaxSpeedHz)
		dev, err := spidev.OpenWithSys(0, 0, nil, sys, logger)
		test.That(t, dev, test.ShouldBeNil)
		test.That(t, errors.Is(err, spidev.ErrIO), test.ShouldBeTrue)
		test.That(t, sys.IsOpen(), test.ShouldBeFalse)
	})

	t.Run("open flags", func(t *testing.T) {
		var gotPath string
		var gotFlags int
		sys := &inject.Sys{
			Sys: fake.New(),
			OpenFunc: func(path string, flags int) (int, error) {
				gotPath, gotFlags = path, flags
				return -1, unix.ENOENT
			},
		}
		_, err := spidev.OpenWithSys(3, 4, nil, sys, logger)
		test.That(t, errors.Is(err, spidev.ErrBus), test.ShouldBeTrue)
		test.That(t, gotPath, test.ShouldEqual, "/dev/spidev3.4")
		test.That(t, gotFlags&unix.O_ACCMODE, test.ShouldEqual, unix.O_RDWR)
	})
}

func TestConfigSync(t *testing.T) {
	t.Run("read config is sanitized", func(t *testing.T) {
		dev, sys := openFake(t, nil)
		defer dev.Close()

		sys.SetDefaults(spidev.CPOL|spidev.LSBFirst|spidev.ThreeWire, 40, 750000)
		cfg, err := dev.ReadConfig()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.Mode, test.ShouldEqual, spidev.Mode2)
		test.That(t, cfg.LSBFirst, test.ShouldBeTrue)
		test.That(t, cfg.BitsPerWord, test.ShouldEqual, spidev.MaxBitsPerWord)
		test.That(t, cfg.SpeedHz, test.ShouldEqual, 750000)

		// ReadConfig leaves the cache alone
		test.That(t, dev.Config(), test.ShouldResemble, spidev.DefaultConfig())

		sys.SetDefaults(0, 2, 750000)
		cfg, err = dev.ReadConfig()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.BitsPerWord, test.ShouldEqual, spidev.MinBitsPerWord)
		test.That(t, cfg.SpeedHz, test.ShouldBeGreaterThan, 0)
	})

	t.Run("zero config gets a speed", func(t *testing.T) {
		dev, _ := openFake(t, nil)
		defer dev.Close()

		test.That(t, dev.SetConfig(spidev.Config{}), test.ShouldBeNil)
		test.That(t, dev.Config().SpeedHz, test.ShouldEqual, spidev.DefaultSpeedHz)
		test.That(t, dev.Config().BitsPerWord, test.ShouldEqual, spidev.MinBitsPerWord)
	})

	t.Run("driver rounding is cached", func(t *testing.T) {
		dev, sys := openFake(t, &spidev.Config{SpeedHz: 100000, BitsPerWord: 8, DelayUsecs: 3, CSChange: true})
		defer dev.Close()
		sys.SetSpeedLimit(500000)

		test.That(t, dev.SetSpeed(2000000), test.ShouldBeNil)
		cfg := dev.Config()
		test.That(t, cfg.SpeedHz, test.ShouldEqual, 500000)
		test.That(t, cfg.DelayUsecs, test.ShouldEqual, 3)
		test.That(t, cfg.CSChange, test.ShouldBeTrue)
	})

	t.Run("write failure leaves cache unchanged", func(t *testing.T) {
		dev, sys := openFake(t, nil)
		defer dev.Close()
		before := dev.Config()

		sys.FailNext(spidev.IocWrMaxSpeedHz)
		err := dev.SetSpeed(2000000)
		test.That(t, errors.Is(err, spidev.ErrIO), test.ShouldBeTrue)
		test.That(t, dev.Config(), test.ShouldResemble, before)
		test.That(t, dev.LastError(), test.ShouldNotBeNil)
		test.That(t, dev.LastError().Errno, test.ShouldEqual, unix.EIO)

		sys.FailNext(spidev.IocWrMode32, spidev.IocWrMode)
		err = dev.SetMode(spidev.Mode1)
		test.That(t, errors.Is(err, spidev.ErrIO), test.ShouldBeTrue)
		test.That(t, dev.Config(), test.ShouldResemble, before)

		sys.FailNext(spidev.IocRdBitsPerWord)
		err = dev.SetBitsPerWord(16)
		test.That(t, errors.Is(err, spidev.ErrIO), test.ShouldBeTrue)
		test.That(t, dev.Config(), test.ShouldResemble, before)

		// the error record clears on the next success
		test.That(t, dev.SetBitsPerWord(16), test.ShouldBeNil)
		test.That(t, dev.LastError(), test.ShouldBeNil)
		test.That(t, dev.Config().BitsPerWord, test.ShouldEqual, 16)
	})

	t.Run("set speed rejects zero", func(t *testing.T) {
		dev, sys := openFake(t, nil)
		defer dev.Close()

		err := dev.SetSpeed(0)
		test.That(t, errors.Is(err, spidev.ErrParam), test.ShouldBeTrue)
		test.That(t, sys.Stats().Total, test.ShouldEqual, 0)
	})

	t.Run("single field setters keep the rest", func(t *testing.T) {
		dev, _ := openFake(t, &spidev.Config{Mode: spidev.Mode2, SpeedHz: 300000, BitsPerWord: 8, LSBFirst: true})
		defer dev.Close()

		test.That(t, dev.SetMode(spidev.Mode1), test.ShouldBeNil)
		test.That(t, dev.SetBitsPerWord(12), test.ShouldBeNil)
		test.That(t, dev.Config(), test.ShouldResemble, spidev.Config{
			Mode:        spidev.Mode1,
			SpeedHz:     300000,
			BitsPerWord: 12,
			LSBFirst:    true,
		})
	})

	t.Run("refresh picks up outside changes", func(t *testing.T) {
		dev, sys := openFake(t, &spidev.Config{SpeedHz: 300000, BitsPerWord: 8, DelayUsecs: 9})
		defer dev.Close()

		sys.SetDefaults(spidev.CPHA|spidev.CSHigh, 16, 800000)
		test.That(t, dev.RefreshConfig(), test.ShouldBeNil)
		test.That(t, dev.Config(), test.ShouldResemble, spidev.Config{
			Mode:         spidev.Mode1,
			SpeedHz:      800000,
			BitsPerWord:  16,
			CSActiveHigh: true,
			DelayUsecs:   9,
		})

		sys.FailNext(spidev.IocRdMaxSpeedHz)
		test.That(t, errors.Is(dev.RefreshConfig(), spidev.ErrIO), test.ShouldBeTrue)
		test.That(t, dev.Config().SpeedHz, test.ShouldEqual, 800000)
	})

	for _, variant := range []struct {
		name    string
		variant fake.Variant
		write   uintptr
		read    uintptr
	}{
		{"wide only", fake.WideOnly, spidev.IocWrMode32, spidev.IocRdMode32},
		{"narrow only", fake.NarrowOnly, spidev.IocWrMode, spidev.IocRdMode},
	} {
		t.Run(variant.name, func(t *testing.T) {
			sys := fake.New()
			sys.SetVariant(variant.variant)
			cfg := spidev.Config{Mode: spidev.Mode3, SpeedHz: 1000000, BitsPerWord: 8, LSBFirst: true}
			dev, err := spidev.OpenWithSys(0, 1, &cfg, sys, logging.NewTestLogger(t))
			test.That(t, err, test.ShouldBeNil)
			defer dev.Close()

			test.That(t, dev.Config(), test.ShouldResemble, cfg)
			test.That(t, sys.Calls(variant.write), test.ShouldEqual, 1)
			test.That(t, sys.Calls(variant.read), test.ShouldEqual, 1)

			got, err := dev.ReadConfig()
			test.That(t, err, test.ShouldBeNil)
			test.That(t, got, test.ShouldResemble, cfg)

			test.That(t, dev.SetMode(spidev.Mode2), test.ShouldBeNil)
			mode, _, _ := sys.State()
			test.That(t, mode, test.ShouldEqual, spidev.CPOL|spidev.LSBFirst)
		})
	}

	t.Run("mode fails on both widths", func(t *testing.T) {
		dev, sys := openFake(t, nil)
		defer dev.Close()

		sys.FailNext(spidev.IocRdMode32, spidev.IocRdMode)
		_, err := dev.ReadConfig()
		test.That(t, errors.Is(err, spidev.ErrIO), test.ShouldBeTrue)
	})

	t.Run("unsupported driver", func(t *testing.T) {
		sys := &inject.Sys{
			Sys: fake.New(),
			IoctlFunc: func(fd int, req uintptr, arg unsafe.Pointer) error {
				return unix.ENOTTY
			},
		}
		_, err := spidev.OpenWithSys(0, 0, nil, sys, logging.NewTestLogger(t))
		test.That(t, errors.Is(err, spidev.ErrNotSupported), test.ShouldBeTrue)
	})
}

func TestClose(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		dev, sys := openFake(t, nil)
		test.That(t, dev.Close(), test.ShouldBeNil)
		test.That(t, dev.Fd(), test.ShouldEqual, -1)
		test.That(t, sys.IsOpen(), test.ShouldBeFalse)
	})

	t.Run("failure", func(t *testing.T) {
		dev, sys := openFake(t, nil)
		sys.SetFailClose(true)
		err := dev.Close()
		test.That(t, errors.Is(err, spidev.ErrIO), test.ShouldBeTrue)
		test.That(t, dev.Fd(), test.ShouldEqual, -1)
		test.That(t, dev.LastError().Code, test.ShouldEqual, spidev.ErrIO)
	})

	t.Run("incomplete sys", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		sim := fake.New()
		sys := &inject.Sys{OpenFunc: sim.Open, CloseFunc: sim.Close, IoctlFunc: sim.Ioctl}
		dev, err := spidev.OpenWithSys(0, 3, nil, sys, logger)
		test.That(t, err, test.ShouldBeNil)

		sys.CloseFunc = nil
		test.That(t, dev.Close(), test.ShouldBeNil)
		test.That(t, dev.Fd(), test.ShouldEqual, -1)
		test.That(t, sim.IsOpen(), test.ShouldBeTrue)

		leaked := logs.FilterMessageSnippet("descriptor leaked").All()
		test.That(t, len(leaked), test.ShouldEqual, 1)
		test.That(t, leaked[0].ContextMap()["path"], test.ShouldEqual, "/dev/spidev0.3")
		test.That(t, leaked[0].ContextMap()["fd"], test.ShouldEqual, fake.Fd)
	})

	t.Run("twice", func(t *testing.T) {
		dev, _ := openFake(t, nil)
		test.That(t, dev.Close(), test.ShouldBeNil)
		err := dev.Close()
		test.That(t, errors.Is(err, spidev.ErrState), test.ShouldBeTrue)
	})

	t.Run("use after close", func(t *testing.T) {
		dev, sys := openFake(t, nil)
		test.That(t, dev.Close(), test.ShouldBeNil)

		test.That(t, errors.Is(dev.Transfer([]byte{1}, nil), spidev.ErrState), test.ShouldBeTrue)
		test.That(t, errors.Is(dev.SetSpeed(1000), spidev.ErrState), test.ShouldBeTrue)
		_, err := dev.ReadConfig()
		test.That(t, errors.Is(err, spidev.ErrState), test.ShouldBeTrue)
		_, err = dev.Caps()
		test.That(t, errors.Is(err, spidev.ErrState), test.ShouldBeTrue)
		test.That(t, sys.Stats().Total, test.ShouldEqual, 0)
	})

	t.Run("nil device", func(t *testing.T) {
		var dev *spidev.Device
		test.That(t, dev.Close(), test.ShouldEqual, spidev.ErrParam)
		test.That(t, errors.Is(dev.Transfer([]byte{1}, nil), spidev.ErrState), test.ShouldBeTrue)
		test.That(t, errors.Is(dev.CopyPath(make([]byte, 32)), spidev.ErrParam), test.ShouldBeTrue)
		test.That(t, dev.Fd(), test.ShouldEqual, -1)
	})
}

func TestCopyPath(t *testing.T) {
	dev, _ := openFake(t, nil)
	defer dev.Close()

	path := "/dev/spidev1.2"
	test.That(t, spidev.DevicePath(1, 2), test.ShouldEqual, path)

	err := dev.CopyPath(make([]byte, len(path)))
	test.That(t, errors.Is(err, spidev.ErrParam), test.ShouldBeTrue)

	buf := make([]byte, len(path)+1)
	test.That(t, dev.CopyPath(buf), test.ShouldBeNil)
	test.That(t, string(buf[:len(path)]), test.ShouldEqual, path)
	test.That(t, buf[len(path)], test.ShouldEqual, 0)

	test.That(t, spidev.DevicePath(255, 255), test.ShouldEqual, "/dev/spidev255.255")
}

func TestCaps(t *testing.T) {
	dev, sys := openFake(t, &spidev.Config{Mode: spidev.Mode1, SpeedHz: 2000000, BitsPerWord: 8, CSActiveHigh: true})
	defer dev.Close()

	caps, err := dev.Caps()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, caps.MaxSpeedHz, test.ShouldEqual, 2000000)
	test.That(t, caps.MinBitsPerWord, test.ShouldEqual, spidev.MinBitsPerWord)
	test.That(t, caps.MaxBitsPerWord, test.ShouldEqual, spidev.MaxBitsPerWord)
	test.That(t, caps.Supports(spidev.CSHigh), test.ShouldBeTrue)
	test.That(t, caps.Supports(spidev.CSHigh|spidev.CPHA), test.ShouldBeTrue)
	test.That(t, caps.Supports(spidev.LSBFirst), test.ShouldBeFalse)

	sys.SetDefaults(spidev.TxDual|1<<20, 8, 0)
	caps, err = dev.Caps()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, caps.MaxSpeedHz, test.ShouldEqual, spidev.DefaultMaxSpeedHz)
	test.That(t, caps.Features, test.ShouldEqual, spidev.TxDual)

	sys.SetFailIoctl(true)
	_, err = dev.Caps()
	test.That(t, errors.Is(err, spidev.ErrIO), test.ShouldBeTrue)
	sys.SetFailIoctl(false)
}
