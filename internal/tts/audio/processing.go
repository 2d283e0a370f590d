// Package audio decodes synthesized WAV files and re-encodes them into a
// compressed format.
//
// NOTE: decoding is done fully in memory; piper output for a single request is
// small enough that streaming brings nothing.
package audio

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/book-expert/piper-studio/internal/core"
	"github.com/go-audio/wav"
)

// Constants for supported bit depths.
const (
	BIT_DEPTH_8  = 8
	BIT_DEPTH_16 = 16
	BIT_DEPTH_24 = 24
	BIT_DEPTH_32 = 32
)

// Constants for quality validation limits.
const (
	MAX_SAMPLE_RATE = 192000
	MAX_CHANNELS    = 8
)

// Constants for error messages and formats.
const (
	ERR_FMT_SAMPLE_RATE_RANGE = "%w: sample rate must be between 1 and %d Hz, got %d"
	ERR_FMT_BIT_DEPTH_VALUES  = "%w: bit depth must be 8, 16, 24, or 32, got %d"
	ERR_FMT_CHANNELS_RANGE    = "%w: channels must be between 1 and %d, got %d"
	ERR_FMT_BITRATE           = "%w: bitrate must look like 128k, got %q"
)

// Common errors for the audio package.
var (
	ErrInvalidQuality = errors.New("invalid quality settings")
	ErrInvalidWAV     = errors.New("not a valid WAV file")
	ErrNoSamples      = errors.New("WAV file contains no samples")
)

var bitratePattern = regexp.MustCompile(`^[1-9][0-9]{0,2}k$`)

// LoadPCM decodes the WAV at path fully into memory as interleaved 16-bit PCM.
func LoadPCM(path string) (*core.PCM, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV file %s: %w", path, err)
	}

	if buffer == nil || len(buffer.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSamples, path)
	}

	sampleRate := int(decoder.SampleRate)
	channels := int(decoder.NumChans)
	bitDepth := int(decoder.BitDepth)

	err = validateFormat(sampleRate, bitDepth, channels)
	if err != nil {
		return nil, err
	}

	return &core.PCM{
		Samples:    toInt16(buffer.Data, bitDepth),
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}

// ValidateBitrate checks an encoder bitrate such as "128k".
func ValidateBitrate(bitrate string) error {
	if !bitratePattern.MatchString(bitrate) {
		return fmt.Errorf(ERR_FMT_BITRATE, ErrInvalidQuality, bitrate)
	}

	return nil
}

func validateFormat(sampleRate, bitDepth, channels int) error {
	if sampleRate <= 0 || sampleRate > MAX_SAMPLE_RATE {
		return fmt.Errorf(ERR_FMT_SAMPLE_RATE_RANGE, ErrInvalidQuality, MAX_SAMPLE_RATE, sampleRate)
	}

	switch bitDepth {
	case BIT_DEPTH_8, BIT_DEPTH_16, BIT_DEPTH_24, BIT_DEPTH_32:
	default:
		return fmt.Errorf(ERR_FMT_BIT_DEPTH_VALUES, ErrInvalidQuality, bitDepth)
	}

	if channels <= 0 || channels > MAX_CHANNELS {
		return fmt.Errorf(ERR_FMT_CHANNELS_RANGE, ErrInvalidQuality, MAX_CHANNELS, channels)
	}

	return nil
}

// toInt16 rescales decoded samples to 16 bits. 8-bit WAV data is unsigned.
func toInt16(data []int, bitDepth int) []int16 {
	samples := make([]int16, len(data))

	for i, value := range data {
		switch bitDepth {
		case BIT_DEPTH_8:
			samples[i] = int16((value - 128) << 8)
		case BIT_DEPTH_24:
			samples[i] = int16(value >> 8)
		case BIT_DEPTH_32:
			samples[i] = int16(value >> 16)
		default:
			samples[i] = int16(value)
		}
	}

	return samples
}

// WAVDuration returns the play time of the WAV at path, counted from its
// decoded sample frames. The RIFF size in the header also covers header chunks,
// so it overstates the audio length.
func WAVDuration(path string) (time.Duration, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return 0, fmt.Errorf("failed to decode WAV file %s: %w", path, err)
	}

	if buffer == nil || decoder.SampleRate == 0 || decoder.NumChans == 0 {
		return 0, nil
	}

	frames := len(buffer.Data) / int(decoder.NumChans)

	return time.Duration(frames) * time.Second / time.Duration(decoder.SampleRate), nil
}
