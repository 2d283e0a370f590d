package audio_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/piper-studio/internal/core"
	"github.com/book-expert/piper-studio/internal/testutil"
	"github.com/book-expert/piper-studio/internal/tts/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPCM(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tone.wav")
	samples := testutil.Tone(1000)
	testutil.WriteWAV(t, path, samples)

	pcm, err := audio.LoadPCM(path)
	require.NoError(t, err)

	assert.Equal(t, testutil.SampleRate, pcm.SampleRate)
	assert.Equal(t, testutil.Channels, pcm.Channels)
	require.Len(t, pcm.Samples, len(samples))

	for i, sample := range samples {
		assert.Equal(t, int16(sample), pcm.Samples[i])
	}
}

func TestLoadPCM_InvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not RIFF data"), 0o600))

	_, err := audio.LoadPCM(path)
	require.ErrorIs(t, err, audio.ErrInvalidWAV)
}

func TestLoadPCM_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := audio.LoadPCM(filepath.Join(t.TempDir(), "missing.wav"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateBitrate(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"64k", "128k", "320k"} {
		require.NoError(t, audio.ValidateBitrate(ok), ok)
	}

	for _, bad := range []string{"", "128", "0k", "128kbps", "-1k"} {
		require.ErrorIs(t, audio.ValidateBitrate(bad), audio.ErrInvalidQuality, bad)
	}
}

func TestVerifyMP3_RejectsNonMP3(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.mp3")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	_, err := audio.VerifyMP3(empty)
	require.ErrorIs(t, err, audio.ErrInvalidMP3)
}

func TestFFmpegEncoder_Encode(t *testing.T) {
	ffmpeg := testutil.NewFakeFFmpeg(t, "encoded")

	encoder, err := audio.NewFFmpegEncoder(ffmpeg.Path, "96k", testutil.NewLogger(t))
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "out.mp3.part")
	pcm := &core.PCM{Samples: []int16{1, -1, 2, -2}, SampleRate: testutil.SampleRate, Channels: 2}

	require.NoError(t, encoder.Encode(context.Background(), pcm, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "encoded", string(data))

	args := ffmpeg.Args(t)
	assertFlag(t, args, "-ar", "22050")
	assertFlag(t, args, "-ac", "2")
	assertFlag(t, args, "-i", "pipe:0")
	assertFlag(t, args, "-codec:a", "libmp3lame")
	assertFlag(t, args, "-b:a", "96k")
	assertFlag(t, args, "-f", "s16le")
	assert.Less(t, indexOf(args, "-f"), indexOf(args, "-i"), "raw input format precedes the input")
	assert.Equal(t, []string{"-f", "mp3", dst}, args[len(args)-3:], "output format is forced on the part file")
}

func indexOf(args []string, flag string) int {
	for i, arg := range args {
		if arg == flag {
			return i
		}
	}

	return -1
}

func assertFlag(t *testing.T, args []string, flag, value string) {
	t.Helper()

	i := indexOf(args, flag)
	require.GreaterOrEqual(t, i, 0, "missing %s in %v", flag, args)
	require.Less(t, i+1, len(args), "no value for %s", flag)
	assert.Equal(t, value, args[i+1], flag)
}

func TestVerifyMP3_SilentFrames(t *testing.T) {
	t.Parallel()

	const frames = 40

	path := filepath.Join(t.TempDir(), "silence.mp3")
	require.NoError(t, os.WriteFile(path, testutil.SilentMP3(frames), 0o600))

	duration, err := audio.VerifyMP3(path)
	require.NoError(t, err)

	expected := time.Duration(frames*testutil.MP3FrameSamples) * time.Second / testutil.MP3SampleRate
	assert.Equal(t, expected, duration)
	assert.InDelta(t, 1.0449, duration.Seconds(), 0.001)
}

func TestWAVDuration_CountsSamplesOnly(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		samples  int
		expected time.Duration
	}{
		{"one second", testutil.SampleRate, time.Second},
		{"tenth of a second", testutil.SampleRate / 10, 100 * time.Millisecond},
		{"ten samples", 10, 10 * time.Second / testutil.SampleRate},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "tone.wav")
			testutil.WriteWAV(t, path, testutil.Tone(tc.samples))

			duration, err := audio.WAVDuration(path)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, duration)
		})
	}
}

func TestWAVDuration_InvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not RIFF data"), 0o600))

	_, err := audio.WAVDuration(path)
	require.ErrorIs(t, err, audio.ErrInvalidWAV)
}

func TestFFmpegEncoder_Failure(t *testing.T) {
	encoder, err := audio.NewFFmpegEncoder(testutil.FailingFFmpeg(t, "Unknown encoder 'libmp3lame'"), "128k", testutil.NewLogger(t))
	require.NoError(t, err)

	pcm := &core.PCM{Samples: []int16{0}, SampleRate: testutil.SampleRate, Channels: 1}

	err = encoder.Encode(context.Background(), pcm, filepath.Join(t.TempDir(), "out.mp3"))
	require.ErrorIs(t, err, audio.ErrEncoderFailed)
	assert.Contains(t, err.Error(), "Unknown encoder")
}

func TestFFmpegEncoder_Unavailable(t *testing.T) {
	t.Parallel()

	encoder, err := audio.NewFFmpegEncoder(filepath.Join(t.TempDir(), "ffmpeg"), "128k", testutil.NewLogger(t))
	require.NoError(t, err)

	pcm := &core.PCM{Samples: []int16{0}, SampleRate: testutil.SampleRate, Channels: 1}

	err = encoder.Encode(context.Background(), pcm, filepath.Join(t.TempDir(), "out.mp3"))
	require.ErrorIs(t, err, audio.ErrEncoderUnavailable)
}

func TestNewFFmpegEncoder_RejectsBitrate(t *testing.T) {
	t.Parallel()

	_, err := audio.NewFFmpegEncoder("ffmpeg", "loud", testutil.NewLogger(t))
	require.ErrorIs(t, err, audio.ErrInvalidQuality)
}
