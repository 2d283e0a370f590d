package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/piper-studio/internal/core"
	"github.com/hajimehoshi/go-mp3"
)

// Static errors.
var (
	ErrEncoderUnavailable = errors.New("audio encoder not available")
	ErrEncoderFailed      = errors.New("audio encoder failed")
	ErrInvalidMP3         = errors.New("not a decodable MP3 file")
)

const (
	logFmtEncoding = "Encoding %d samples (%d Hz, %d ch) to %s"
	bytesPerSample = 2

	// go-mp3 always decodes to 16-bit stereo.
	decodedFrameBytes = 4
)

// FFmpegEncoder implements core.Encoder by piping raw PCM into ffmpeg.
type FFmpegEncoder struct {
	executable string
	bitrate    string
	log        *logger.Logger
}

// NewFFmpegEncoder creates an MP3 encoder backed by the ffmpeg executable.
func NewFFmpegEncoder(executable, bitrate string, log *logger.Logger) (*FFmpegEncoder, error) {
	err := ValidateBitrate(bitrate)
	if err != nil {
		return nil, err
	}

	return &FFmpegEncoder{
		executable: executable,
		bitrate:    bitrate,
		log:        log,
	}, nil
}

// Encode writes pcm as MP3 to dst. The output format is forced, so dst may
// carry any extension.
func (e *FFmpegEncoder) Encode(ctx context.Context, pcm *core.PCM, dst string) error {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "s16le",
		"-ar", strconv.Itoa(pcm.SampleRate),
		"-ac", strconv.Itoa(pcm.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", e.bitrate,
		"-f", "mp3",
		dst,
	}

	// #nosec G204 -- the executable comes from configuration, arguments are passed without a shell
	cmd := exec.CommandContext(ctx, e.executable, args...)
	cmd.Stdin = bytes.NewReader(pcmBytes(pcm.Samples))

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	e.log.Info(logFmtEncoding, len(pcm.Samples), pcm.SampleRate, pcm.Channels, dst)

	runErr := cmd.Run()
	if runErr == nil {
		return nil
	}

	if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrEncoderUnavailable, e.executable)
	}

	return fmt.Errorf("%w: %w: %s", ErrEncoderFailed, runErr, strings.TrimSpace(stderr.String()))
}

// VerifyMP3 decodes the frame headers of the MP3 at path and returns its duration.
func VerifyMP3(path string) (time.Duration, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer file.Close()

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidMP3, err)
	}

	length := decoder.Length()
	if length <= 0 || decoder.SampleRate() <= 0 {
		return 0, fmt.Errorf("%w: %s has no audio frames", ErrInvalidMP3, path)
	}

	frames := length / decodedFrameBytes

	return time.Duration(frames) * time.Second / time.Duration(decoder.SampleRate()), nil
}

func pcmBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*bytesPerSample)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(data[i*bytesPerSample:], uint16(sample))
	}

	return data
}
