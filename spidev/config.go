package spidev

// Configuration defaults and limits.
const (
	// DefaultSpeedHz replaces a zero speed during sanitization.
	DefaultSpeedHz uint32 = 5000000
	// DefaultMaxSpeedHz is reported as the speed ceiling when the driver reports none.
	DefaultMaxSpeedHz uint32 = 25000000

	MinBitsPerWord uint8 = 8
	MaxBitsPerWord uint8 = 32

	// PathMax bounds the device path, including a terminating NUL for CopyPath.
	PathMax = 32
	// MaxBatch is the largest number of transfers accepted by Device.Batch.
	MaxBatch = 256
)

// Config holds the settings of an spidev device. SpeedHz, BitsPerWord, Mode, LSBFirst and
// CSActiveHigh are mirrored by the driver; DelayUsecs and CSChange are policy applied to every
// single transfer and are never reported by the driver.
type Config struct {
	Mode         Mode   `json:"mode"`
	SpeedHz      uint32 `json:"speed_hz"`
	BitsPerWord  uint8  `json:"bits_per_word"`
	LSBFirst     bool   `json:"lsb_first,omitempty"`
	CSActiveHigh bool   `json:"cs_active_high,omitempty"`
	DelayUsecs   uint16 `json:"delay_usecs,omitempty"`
	CSChange     bool   `json:"cs_change,omitempty"`
}

// DefaultConfig is applied when a device is opened without a configuration.
func DefaultConfig() Config {
	return Config{
		Mode:        Mode0,
		SpeedHz:     1000000,
		BitsPerWord: 8,
	}
}

// Sanitized returns a copy of cfg that is safe to hand to the driver: an unknown mode becomes
// Mode0, bits-per-word is clamped into [MinBitsPerWord, MaxBitsPerWord] and a zero speed becomes
// DefaultSpeedHz.
func (cfg Config) Sanitized() Config {
	if cfg.Mode > Mode3 {
		cfg.Mode = Mode0
	}
	cfg.BitsPerWord = clampBitsPerWord(cfg.BitsPerWord)
	if cfg.SpeedHz == 0 {
		cfg.SpeedHz = DefaultSpeedHz
	}
	return cfg
}

func clampBitsPerWord(bpw uint8) uint8 {
	if bpw < MinBitsPerWord {
		return MinBitsPerWord
	}
	if bpw > MaxBitsPerWord {
		return MaxBitsPerWord
	}
	return bpw
}

// withDriverState overwrites the fields the driver reports with those of actual and keeps the
// policy fields of cfg.
func (cfg Config) withDriverState(actual Config) Config {
	cfg.Mode = actual.Mode
	cfg.SpeedHz = actual.SpeedHz
	cfg.BitsPerWord = actual.BitsPerWord
	cfg.LSBFirst = actual.LSBFirst
	cfg.CSActiveHigh = actual.CSActiveHigh
	return cfg
}
