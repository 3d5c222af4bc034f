// Package audio turns raw PCM payloads into self-describing WAV containers.
//
// The package is a pure format transform: no resampling, no channel conversion.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// Upstream generation contract: 16-bit signed little-endian mono at 24 kHz.
const (
	DEFAULT_SAMPLE_RATE = 24000
	DEFAULT_BIT_DEPTH   = 16
	DEFAULT_CHANNELS    = 1
)

// Constants for supported bit depths.
const (
	BIT_DEPTH_8  = 8
	BIT_DEPTH_16 = 16
	BIT_DEPTH_24 = 24
	BIT_DEPTH_32 = 32
)

// Constants for format validation limits.
const (
	MAX_SAMPLE_RATE = 192000
	MAX_CHANNELS    = 8
	bitsPerByte     = 8
)

// Constants for error message formats.
const (
	ERR_FMT_SAMPLE_RATE_RANGE = "%w: sample rate must be between 1 and %d Hz, got %d"
	ERR_FMT_BIT_DEPTH_VALUES  = "%w: bit depth must be 8, 16, 24, or 32, got %d"
	ERR_FMT_CHANNELS_RANGE    = "%w: channels must be between 1 and %d, got %d"
)

// ErrInvalidFormat indicates that sample rate, channel count or bit depth is unusable.
var ErrInvalidFormat = errors.New("invalid audio format")

// Format describes linear PCM samples.
type Format struct {
	SampleRate    int `json:"sampleRate"    toml:"sample_rate"     yaml:"sampleRate"`
	Channels      int `json:"channels"      toml:"channels"        yaml:"channels"`
	BitsPerSample int `json:"bitsPerSample" toml:"bits_per_sample" yaml:"bitsPerSample"`
}

// DefaultFormat returns the format produced by the generation backend.
func DefaultFormat() Format {
	return Format{
		SampleRate:    DEFAULT_SAMPLE_RATE,
		Channels:      DEFAULT_CHANNELS,
		BitsPerSample: DEFAULT_BIT_DEPTH,
	}
}

// Validate checks that the format can be written into a PCM container.
func (f Format) Validate() error {
	sampleRateErr := validateSampleRate(f.SampleRate)
	if sampleRateErr != nil {
		return sampleRateErr
	}

	bitDepthErr := validateBitDepth(f.BitsPerSample)
	if bitDepthErr != nil {
		return bitDepthErr
	}

	channelsErr := validateChannels(f.Channels)
	if channelsErr != nil {
		return channelsErr
	}

	return nil
}

// BytesPerSample is the width of one sample of one channel.
func (f Format) BytesPerSample() int {
	return f.BitsPerSample / bitsPerByte
}

// BlockAlign is the width of one frame: channels × bitsPerSample/8.
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / bitsPerByte
}

// ByteRate is sampleRate × channels × bitsPerSample/8.
func (f Format) ByteRate() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / bitsPerByte
}

// Duration returns the play time of pcmLength bytes in this format.
func (f Format) Duration(pcmLength int) time.Duration {
	byteRate := f.ByteRate()
	if byteRate <= 0 {
		return 0
	}

	return time.Duration(int64(pcmLength) * int64(time.Second) / int64(byteRate))
}

func validateSampleRate(sampleRate int) error {
	if sampleRate <= 0 || sampleRate > MAX_SAMPLE_RATE {
		return fmt.Errorf(ERR_FMT_SAMPLE_RATE_RANGE, ErrInvalidFormat, MAX_SAMPLE_RATE, sampleRate)
	}

	return nil
}

func validateBitDepth(bitDepth int) error {
	switch bitDepth {
	case BIT_DEPTH_8, BIT_DEPTH_16, BIT_DEPTH_24, BIT_DEPTH_32:
		return nil
	default:
		return fmt.Errorf(ERR_FMT_BIT_DEPTH_VALUES, ErrInvalidFormat, bitDepth)
	}
}

func validateChannels(channels int) error {
	if channels <= 0 || channels > MAX_CHANNELS {
		return fmt.Errorf(ERR_FMT_CHANNELS_RANGE, ErrInvalidFormat, MAX_CHANNELS, channels)
	}

	return nil
}
