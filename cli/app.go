// Package cli contains the spimonkey command line tool for inspecting and driving spidev devices.
package cli

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/spimonkey/spidev"
)

const (
	// Global flags.
	flagDebug    = "debug"
	flagLogFile  = "log-file"
	flagConfig   = "config"
	flagSimulate = "simulate"

	// Device selection.
	flagDevice = "device"
	flagBus    = "bus"
	flagCS     = "cs"

	// Settings.
	flagSpeed    = "speed"
	flagMode     = "mode"
	flagBPW      = "bpw"
	flagLSBFirst = "lsb-first"
	flagCSHigh   = "cs-high"

	flagBatch   = "batch"
	flagTrace   = "trace"
	flagChannel = "channel"

	logFileMaxSizeMB = 10
)

var deviceFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    flagDevice,
		Aliases: []string{"d"},
		Usage:   "name of a device from the config file",
	},
	&cli.UintFlag{
		Name:  flagBus,
		Usage: "spidev bus number, when no --device is given",
	},
	&cli.UintFlag{
		Name:  flagCS,
		Usage: "spidev chip select, when no --device is given",
	},
}

func withDeviceFlags(flags ...cli.Flag) []cli.Flag {
	return append(append([]cli.Flag{}, deviceFlags...), flags...)
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter set to errOut. A nil
// sys uses the real system calls unless --simulate is given.
func NewApp(out, errOut io.Writer, sys spidev.Sys) *cli.App {
	state := &appState{sys: sys}
	return &cli.App{
		Name:            "spimonkey",
		Usage:           "inspect and drive Linux spidev devices",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load device configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated at 10MB",
			},
			&cli.BoolFlag{
				Name:   flagSimulate,
				Hidden: true,
				Usage:  "use a simulated loopback device instead of /dev",
			},
		},
		Before: state.before,
		After:  state.after,
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "list the devices in the config file",
				Action: state.listAction,
			},
			{
				Name:   "info",
				Usage:  "print the configuration and capabilities of a device",
				Flags:  deviceFlags,
				Action: state.infoAction,
			},
			{
				Name:  "set",
				Usage: "change device settings and print what the driver applied",
				Flags: withDeviceFlags(
					&cli.UintFlag{
						Name:  flagSpeed,
						Usage: "clock speed in Hz",
					},
					&cli.UintFlag{
						Name:  flagMode,
						Usage: "clock mode, 0 to 3",
					},
					&cli.UintFlag{
						Name:  flagBPW,
						Usage: "bits per word, 8 to 32",
					},
					&cli.BoolFlag{
						Name:  flagLSBFirst,
						Usage: "send the least significant bit first",
					},
					&cli.BoolFlag{
						Name:  flagCSHigh,
						Usage: "chip select is active high",
					},
				),
				Action: state.setAction,
			},
			{
				Name:      "xfer",
				Usage:     "send hex bytes and print what was received",
				UsageText: "spimonkey xfer [--device NAME | --bus N --cs N] [--batch] <hex> [hex...]",
				Flags: withDeviceFlags(
					&cli.BoolFlag{
						Name:  flagBatch,
						Usage: "send every argument in one message, keeping chip select asserted",
					},
				),
				Action: state.xferAction,
			},
			{
				Name:  "adc",
				Usage: "read one channel of an MCP3008 ADC",
				Flags: withDeviceFlags(
					&cli.IntFlag{
						Name:     flagChannel,
						Usage:    "input channel, 0 to 7",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  flagTrace,
						Usage: "log every bus transfer regardless of the log level",
					},
				),
				Action: state.adcAction,
			},
		},
	}
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}
