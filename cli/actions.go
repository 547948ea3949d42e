package cli

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/spimonkey/buses"
	"go.viam.com/spimonkey/config"
	"go.viam.com/spimonkey/logging"
	"go.viam.com/spimonkey/mcp3008"
	"go.viam.com/spimonkey/spidev"
	"go.viam.com/spimonkey/spidev/fake"
)

// appState is built by the Before hook and shared by every action of one run.
type appState struct {
	sys     spidev.Sys
	logger  logging.Logger
	logFile *logging.FileAppender
	conf    *config.Config
}

func (s *appState) before(c *cli.Context) error {
	logger := logging.NewBlankLogger("spimonkey")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	logger.SetLevel(logging.WARN)
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	}
	if path := c.String(flagLogFile); path != "" {
		s.logFile = logging.NewFileAppender(path, logFileMaxSizeMB)
		logger.AddAppender(s.logFile)
	}
	s.logger = logger

	if c.Bool(flagSimulate) {
		sim := fake.New()
		sim.SetLoopback(true)
		s.sys = sim
	}

	s.conf = &config.Config{}
	if path := c.String(flagConfig); path != "" {
		conf, err := config.Read(path, logger)
		if err != nil {
			return errors.Wrapf(err, "reading config %s", path)
		}
		s.conf = conf
	}
	return nil
}

func (s *appState) after(c *cli.Context) error {
	if s.logger == nil {
		return nil
	}
	err := s.logger.Sync()
	if s.logFile != nil {
		err = multierr.Combine(err, s.logFile.Close())
	}
	return err
}

// target is the device a command works on.
type target struct {
	bus, cs uint8
	cfg     *spidev.Config
}

func (s *appState) resolve(c *cli.Context) (target, error) {
	if name := c.String(flagDevice); name != "" {
		spi, ok := s.conf.ByName(name)
		if !ok {
			return target{}, errors.Errorf("no device named %q in the config", name)
		}
		cfg := spi.DeviceConfig()
		return target{bus: *spi.Bus, cs: *spi.ChipSelect, cfg: &cfg}, nil
	}
	bus, cs := c.Uint(flagBus), c.Uint(flagCS)
	if bus > 255 || cs > 255 {
		return target{}, errors.Errorf("bus %d and chip select %d must be at most 255", bus, cs)
	}
	return target{bus: uint8(bus), cs: uint8(cs)}, nil
}

func (s *appState) open(c *cli.Context) (*spidev.Device, error) {
	t, err := s.resolve(c)
	if err != nil {
		return nil, err
	}
	dev, err := spidev.OpenWithSys(t.bus, t.cs, t.cfg, s.sys, s.logger)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", spidev.DevicePath(t.bus, t.cs))
	}
	return dev, nil
}

func (s *appState) listAction(c *cli.Context) error {
	if len(s.conf.SPIs) == 0 {
		printf(c.App.Writer, "no devices configured")
		return nil
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Name", "Path", "Mode", "Speed (Hz)", "Bits/Word"})
	for _, spi := range s.conf.SPIs {
		cfg := spi.DeviceConfig()
		t.AppendRow(table.Row{
			spi.Name,
			spidev.DevicePath(*spi.Bus, *spi.ChipSelect),
			cfg.Mode,
			cfg.SpeedHz,
			cfg.BitsPerWord,
		})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

func (s *appState) infoAction(c *cli.Context) (err error) {
	dev, err := s.open(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, dev.Close())
	}()

	caps, err := dev.Caps()
	if err != nil {
		return errors.Wrap(err, "querying capabilities")
	}
	t := configTable(dev.Config())
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Max speed (Hz)", caps.MaxSpeedHz},
		{"Bits per word", fmt.Sprintf("%d-%d", caps.MinBitsPerWord, caps.MaxBitsPerWord)},
		{"Mode bits", fmt.Sprintf("%#x", caps.Features)},
		{"3-wire", caps.Supports(spidev.ThreeWire)},
		{"Loopback", caps.Supports(spidev.Loop)},
	})
	printf(c.App.Writer, "%s", dev)
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

func (s *appState) setAction(c *cli.Context) (err error) {
	dev, err := s.open(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, dev.Close())
	}()

	cfg := dev.Config()
	if c.IsSet(flagSpeed) {
		speed := c.Uint(flagSpeed)
		if speed == 0 || uint64(speed) > uint64(^uint32(0)) {
			return errors.Errorf("speed %d out of range", speed)
		}
		cfg.SpeedHz = uint32(speed)
	}
	if c.IsSet(flagMode) {
		mode := c.Uint(flagMode)
		if mode > uint(spidev.Mode3) {
			return errors.Errorf("mode %d out of range [0, 3]", mode)
		}
		cfg.Mode = spidev.Mode(mode)
	}
	if c.IsSet(flagBPW) {
		bpw := c.Uint(flagBPW)
		if bpw < uint(spidev.MinBitsPerWord) || bpw > uint(spidev.MaxBitsPerWord) {
			return errors.Errorf("bits per word %d out of range [%d, %d]", bpw, spidev.MinBitsPerWord, spidev.MaxBitsPerWord)
		}
		cfg.BitsPerWord = uint8(bpw)
	}
	if c.IsSet(flagLSBFirst) {
		cfg.LSBFirst = c.Bool(flagLSBFirst)
	}
	if c.IsSet(flagCSHigh) {
		cfg.CSActiveHigh = c.Bool(flagCSHigh)
	}

	if err := dev.SetConfig(cfg); err != nil {
		return errors.Wrap(err, "applying settings")
	}
	applied := dev.Config()
	if applied.SpeedHz != cfg.SpeedHz {
		printf(c.App.ErrWriter, "driver adjusted speed from %d to %d Hz", cfg.SpeedHz, applied.SpeedHz)
	}
	printf(c.App.Writer, "%s", configTable(applied).Render())
	return nil
}

func (s *appState) xferAction(c *cli.Context) (err error) {
	if c.NArg() == 0 {
		return errors.New("nothing to send; give one or more hex strings")
	}
	txs := make([][]byte, c.NArg())
	for i, arg := range c.Args().Slice() {
		tx, err := parseHex(arg)
		if err != nil {
			return err
		}
		txs[i] = tx
	}

	dev, err := s.open(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, dev.Close())
	}()

	rxs := make([][]byte, len(txs))
	for i, tx := range txs {
		rxs[i] = make([]byte, len(tx))
	}
	if c.Bool(flagBatch) {
		xfers := make([]spidev.Transfer, len(txs))
		for i := range txs {
			xfers[i] = spidev.Transfer{Tx: txs[i], Rx: rxs[i]}
		}
		if err := dev.Batch(xfers); err != nil {
			return errors.Wrap(err, "batch transfer")
		}
	} else {
		for i := range txs {
			if err := dev.Transfer(txs[i], rxs[i]); err != nil {
				return errors.Wrapf(err, "transfer %d", i)
			}
		}
	}
	for _, rx := range rxs {
		printf(c.App.Writer, "%s", hex.EncodeToString(rx))
	}
	return nil
}

func (s *appState) adcAction(c *cli.Context) error {
	t, err := s.resolve(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	if c.Bool(flagTrace) {
		ctx = logging.EnableDebugMode(ctx)
	}
	reader := &mcp3008.Reader{
		Bus:        buses.NewSPI(t.bus, s.sys, s.logger),
		Channel:    c.Int(flagChannel),
		ChipSelect: strconv.Itoa(int(t.cs)),
	}
	value, err := reader.Read(ctx)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%d (%.1f%%)", value, 100*float64(value)/mcp3008.MaxValue)
	return nil
}

func configTable(cfg spidev.Config) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRows([]table.Row{
		{"Mode", cfg.Mode},
		{"Speed (Hz)", cfg.SpeedHz},
		{"Bits per word", cfg.BitsPerWord},
		{"LSB first", cfg.LSBFirst},
		{"CS active high", cfg.CSActiveHigh},
		{"Delay (us)", cfg.DelayUsecs},
		{"CS change", cfg.CSChange},
	})
	return t
}

// parseHex accepts "deadbeef", "de:ad:be:ef", "de ad be ef" and an optional 0x prefix.
func parseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(":", "", " ", "", "_", "").Replace(strings.TrimPrefix(strings.ToLower(s), "0x"))
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, errors.Wrapf(err, "bad hex %q", s)
	}
	if len(buf) == 0 {
		return nil, errors.Errorf("empty transfer %q", s)
	}
	return buf, nil
}
