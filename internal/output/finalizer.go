package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/piper-studio/internal/core"
	"github.com/book-expert/piper-studio/internal/fileutil"
	"github.com/book-expert/piper-studio/internal/tts/audio"
)

const partialSuffix = ".part"

// ErrEmptyOutput is returned when the encoder exits cleanly but writes nothing.
var ErrEmptyOutput = errors.New("encoder produced an empty file")

const (
	logFmtConverted      = "Converted %s -> %s (%s, %s)"
	logFmtKeptWAV        = "Kept %s (%s)"
	logFmtRemoveFailed   = "Failed to remove '%s': %v"
	logFmtConvertFailed  = "Conversion of %s failed, keeping WAV: %v"
	logFmtDurationFailed = "Could not read duration of %s: %v"
)

// Finalizer turns the WAV written by the invoker into the artifact returned to
// the caller.
type Finalizer struct {
	encoder core.Encoder
	verify  bool
	log     *logger.Logger
}

// NewFinalizer creates a Finalizer. When verify is set, encoded MP3 files are
// decoded once before they replace the WAV.
func NewFinalizer(encoder core.Encoder, verify bool, log *logger.Logger) *Finalizer {
	return &Finalizer{
		encoder: encoder,
		verify:  verify,
		log:     log,
	}
}

// Finalize returns the WAV artifact unchanged, or converts it to MP3 and deletes
// the WAV. The WAV is deleted only after the MP3 is fully written. On a
// ConversionError the returned artifact still points at the intact WAV.
func (f *Finalizer) Finalize(ctx context.Context, wavPath string, wantMP3 bool) (core.Artifact, error) {
	wavArtifact := f.wavArtifact(wavPath)

	if !wantMP3 {
		f.log.Info(logFmtKeptWAV, wavPath, fileutil.FormatFileSize(wavArtifact.Size))

		return wavArtifact, nil
	}

	artifact, err := f.convert(ctx, wavPath)
	if err != nil {
		f.log.Error(logFmtConvertFailed, wavPath, err)

		return wavArtifact, &core.ConversionError{Err: err}
	}

	removeErr := os.Remove(wavPath)
	if removeErr != nil {
		f.log.Warn(logFmtRemoveFailed, wavPath, removeErr)
	}

	f.log.Info(logFmtConverted, wavPath, artifact.FinalPath,
		fileutil.FormatFileSize(artifact.Size), fileutil.FormatDuration(artifact.Duration))

	return artifact, nil
}

func (f *Finalizer) convert(ctx context.Context, wavPath string) (core.Artifact, error) {
	pcm, err := audio.LoadPCM(wavPath)
	if err != nil {
		return core.Artifact{}, err
	}

	mp3Path := fileutil.ReplaceExtension(wavPath, core.FormatMP3.Extension())
	partPath := mp3Path + partialSuffix

	artifact, err := f.encode(ctx, pcm, partPath)
	if err != nil {
		f.discard(partPath)

		return core.Artifact{}, err
	}

	err = os.Rename(partPath, mp3Path)
	if err != nil {
		f.discard(partPath)

		return core.Artifact{}, fmt.Errorf("failed to move encoded file into place: %w", err)
	}

	artifact.WAVPath = wavPath
	artifact.FinalPath = mp3Path

	return artifact, nil
}

func (f *Finalizer) encode(ctx context.Context, pcm *core.PCM, partPath string) (core.Artifact, error) {
	err := f.encoder.Encode(ctx, pcm, partPath)
	if err != nil {
		return core.Artifact{}, err
	}

	info, err := os.Stat(partPath)
	if err != nil {
		return core.Artifact{}, fmt.Errorf("encoded file missing: %w", err)
	}

	if info.Size() == 0 {
		return core.Artifact{}, ErrEmptyOutput
	}

	var duration time.Duration

	if f.verify {
		duration, err = audio.VerifyMP3(partPath)
		if err != nil {
			return core.Artifact{}, err
		}
	} else if pcm.SampleRate > 0 && pcm.Channels > 0 {
		frames := len(pcm.Samples) / pcm.Channels
		duration = time.Duration(frames) * time.Second / time.Duration(pcm.SampleRate)
	}

	return core.Artifact{
		Format:   core.FormatMP3,
		Size:     info.Size(),
		Duration: duration,
	}, nil
}

func (f *Finalizer) wavArtifact(wavPath string) core.Artifact {
	artifact := core.Artifact{
		WAVPath:   wavPath,
		FinalPath: wavPath,
		Format:    core.FormatWAV,
	}

	info, err := os.Stat(wavPath)
	if err == nil {
		artifact.Size = info.Size()
	}

	duration, err := audio.WAVDuration(wavPath)
	if err != nil {
		f.log.Warn(logFmtDurationFailed, wavPath, err)
	} else {
		artifact.Duration = duration
	}

	return artifact
}

func (f *Finalizer) discard(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		f.log.Warn(logFmtRemoveFailed, path, removeErr)
	}
}
