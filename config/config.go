// Package config defines the spimonkey configuration file: a list of named spidev devices and
// the settings to open each one with.
package config

import (
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/spimonkey/spidev"
)

// Config is the top-level configuration.
type Config struct {
	SPIs []SPIConfig `json:"spis,omitempty"`

	// ConfigFilePath is where the config was read from, if anywhere.
	ConfigFilePath string `json:"-"`
}

// SPIConfig names one spidev device, /dev/spidev<Bus>.<ChipSelect>.
type SPIConfig struct {
	Name       string `json:"name"`
	Bus        *uint8 `json:"bus"`
	ChipSelect *uint8 `json:"chip_select"`

	// Config is applied when the device is opened. Omitted means spidev.DefaultConfig.
	Config *spidev.Config `json:"config,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *SPIConfig) Validate(path string) error {
	if config.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if config.Bus == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "bus")
	}
	if config.ChipSelect == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "chip_select")
	}
	if config.Config != nil {
		if config.Config.Mode > spidev.Mode3 {
			return utils.NewConfigValidationError(path, errors.Errorf("mode %d out of range [0, 3]", config.Config.Mode))
		}
		if bpw := config.Config.BitsPerWord; bpw != 0 && (bpw < spidev.MinBitsPerWord || bpw > spidev.MaxBitsPerWord) {
			return utils.NewConfigValidationError(path, errors.Errorf(
				"bits_per_word %d out of range [%d, %d]", bpw, spidev.MinBitsPerWord, spidev.MaxBitsPerWord))
		}
	}
	return nil
}

// DeviceConfig returns the settings to open the device with.
func (config *SPIConfig) DeviceConfig() spidev.Config {
	if config.Config == nil {
		return spidev.DefaultConfig()
	}
	return *config.Config
}

// Validate checks every SPI entry and rejects duplicate names.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.SPIs))
	for idx, spi := range c.SPIs {
		path := fmt.Sprintf("%s.%d", "spis", idx)
		if err := spi.Validate(path); err != nil {
			return err
		}
		if _, ok := seen[spi.Name]; ok {
			return utils.NewConfigValidationError(path, errors.Errorf("duplicate SPI name %q", spi.Name))
		}
		seen[spi.Name] = struct{}{}
	}
	return nil
}

// ByName returns the SPI entry with the given name.
func (c *Config) ByName(name string) (SPIConfig, bool) {
	for _, spi := range c.SPIs {
		if spi.Name == name {
			return spi, true
		}
	}
	return SPIConfig{}, false
}

// Names returns the SPI entry names in file order.
func (c *Config) Names() []string {
	if len(c.SPIs) == 0 {
		return nil
	}
	names := make([]string, 0, len(c.SPIs))
	for _, spi := range c.SPIs {
		names = append(names, spi.Name)
	}
	return names
}
