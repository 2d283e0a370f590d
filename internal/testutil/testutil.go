// Package testutil builds fixtures shared by the package tests: loggers, WAV
// files and stand-in executables for piper and ffmpeg.
package testutil

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// Fixture audio parameters, matching a medium-quality piper voice.
const (
	SampleRate = 22050
	BitDepth   = 16
	Channels   = 1
)

// Silent MP3 fixture parameters: MPEG-1 Layer III, 128 kbit/s, 44.1 kHz.
const (
	MP3SampleRate   = 44100
	MP3FrameSamples = 1152
	mp3FrameBytes   = 417
)

var silentMP3Header = []byte{0xFF, 0xFB, 0x90, 0x64}

const (
	pcmFormat   = 1
	toneHz      = 440.0
	amplitude   = 8000.0
	scriptPerms = 0o755
)

// NewLogger returns a logger writing into a per-test directory.
func NewLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	return testLogger
}

// Tone returns n mono samples of a 440 Hz sine wave.
func Tone(n int) []int {
	samples := make([]int, n)
	for i := range samples {
		samples[i] = int(amplitude * math.Sin(2*math.Pi*toneHz*float64(i)/SampleRate))
	}

	return samples
}

// WriteWAV writes a 16-bit mono WAV file containing samples.
func WriteWAV(t *testing.T, path string, samples []int) {
	t.Helper()

	file, err := os.Create(path)
	require.NoError(t, err)

	encoder := wav.NewEncoder(file, SampleRate, BitDepth, Channels, pcmFormat)
	require.NoError(t, encoder.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: Channels, SampleRate: SampleRate},
		Data:           samples,
		SourceBitDepth: BitDepth,
	}))
	require.NoError(t, encoder.Close())
	require.NoError(t, file.Close())
}

// SilentMP3 returns frames back-to-back silent MPEG-1 Layer III frames.
func SilentMP3(frames int) []byte {
	frame := make([]byte, mp3FrameBytes)
	copy(frame, silentMP3Header)

	return bytes.Repeat(frame, frames)
}

// WriteScript writes an executable shell script and returns its path.
//
// Tests that execute scripts must not run in parallel with tests that write
// them: a concurrent fork can inherit the write descriptor and make exec fail
// with ETXTBSY.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), scriptPerms))

	return path
}

// FakePiper is a stand-in for the piper executable. It records its arguments
// and stdin, then copies a fixture WAV to the --output_file path.
type FakePiper struct {
	Path      string
	ArgsFile  string
	StdinFile string
	Fixture   string
}

// NewFakePiper creates a FakePiper whose fixture holds a short tone.
func NewFakePiper(t *testing.T) *FakePiper {
	t.Helper()

	dir := t.TempDir()
	fake := &FakePiper{
		ArgsFile:  filepath.Join(dir, "args.txt"),
		StdinFile: filepath.Join(dir, "stdin.txt"),
		Fixture:   filepath.Join(dir, "fixture.wav"),
	}
	WriteWAV(t, fake.Fixture, Tone(SampleRate/10))

	body := fmt.Sprintf(`printf '%%s\n' "$@" > %q
cat > %q
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output_file) out="$2"; shift ;;
  esac
  shift
done
cp %q "$out"
`, fake.ArgsFile, fake.StdinFile, fake.Fixture)
	fake.Path = WriteScript(t, dir, "piper", body)

	return fake
}

// Args returns the recorded command-line arguments.
func (f *FakePiper) Args(t *testing.T) []string {
	t.Helper()

	data, err := os.ReadFile(f.ArgsFile)
	require.NoError(t, err)

	return splitLines(string(data))
}

// Stdin returns the recorded standard input.
func (f *FakePiper) Stdin(t *testing.T) string {
	t.Helper()

	data, err := os.ReadFile(f.StdinFile)
	require.NoError(t, err)

	return string(data)
}

// FailingPiper returns an executable that prints stderr and exits with code.
func FailingPiper(t *testing.T, stderr string, code int) string {
	t.Helper()

	body := fmt.Sprintf("cat > /dev/null\nprintf '%%s\\n' %q >&2\nexit %d\n", stderr, code)

	return WriteScript(t, t.TempDir(), "piper", body)
}

// FakeFFmpeg is a stand-in for ffmpeg. It records its arguments, drains stdin
// and writes a fixed payload to its last argument, the output path.
type FakeFFmpeg struct {
	Path     string
	ArgsFile string
}

// NewFakeFFmpeg creates a FakeFFmpeg that writes payload.
func NewFakeFFmpeg(t *testing.T, payload string) *FakeFFmpeg {
	t.Helper()

	dir := t.TempDir()
	fake := &FakeFFmpeg{ArgsFile: filepath.Join(dir, "args.txt")}

	body := fmt.Sprintf(`printf '%%s\n' "$@" > %q
for last in "$@"; do :; done
cat > /dev/null
printf '%%s' %q > "$last"
`, fake.ArgsFile, payload)
	fake.Path = WriteScript(t, dir, "ffmpeg", body)

	return fake
}

// Args returns the recorded command-line arguments.
func (f *FakeFFmpeg) Args(t *testing.T) []string {
	t.Helper()

	data, err := os.ReadFile(f.ArgsFile)
	require.NoError(t, err)

	return splitLines(string(data))
}

// FailingFFmpeg returns an executable that writes a partial file and then fails.
func FailingFFmpeg(t *testing.T, stderr string) string {
	t.Helper()

	body := fmt.Sprintf(`for last in "$@"; do :; done
cat > /dev/null
printf 'partial' > "$last"
printf '%%s\n' %q >&2
exit 1
`, stderr)

	return WriteScript(t, t.TempDir(), "ffmpeg", body)
}

func splitLines(text string) []string {
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
