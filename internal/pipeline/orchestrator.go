// Package pipeline composes voice lookup, synthesis and output finalization into
// the single call used by every front end.
package pipeline

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/piper-studio/internal/core"
	"github.com/book-expert/piper-studio/internal/output"
)

const (
	logFmtRequest      = "Synthesizing %d characters with %s (length %v, noise %v, mp3 %t)"
	logFmtDone         = "Synthesis complete: %s"
	logFmtDegraded     = "Returning WAV fallback %s"
	logFmtDiscardEmpty = "Failed to remove '%s' after engine failure: %v"
)

// VoiceSource lists voices and resolves a voice name to its model path.
type VoiceSource interface {
	List() ([]core.VoicePair, *core.Notice)
	Resolve(name string) (string, error)
}

// Result is what a front end renders. An empty Playback or Download means
// "nothing to show"; the caller decides how to clear its widgets.
type Result struct {
	Playback string         `json:"playback,omitempty"`
	Download string         `json:"download,omitempty"`
	Artifact *core.Artifact `json:"artifact,omitempty"`
	Notices  []core.Notice  `json:"notices,omitempty"`
}

// Empty reports whether the request produced no audio at all.
func (r Result) Empty() bool {
	return r.Download == ""
}

// Err returns the error behind the first ERROR notice, if any.
func (r Result) Err() error {
	for _, notice := range r.Notices {
		if notice.Severity == core.SeverityError {
			return notice.Err
		}
	}

	return nil
}

// Orchestrator runs one synchronous request at a time per call. It keeps no
// state between calls; concurrent calls spawn independent processes and write
// independent files.
type Orchestrator struct {
	voices    VoiceSource
	invoker   core.Invoker
	namer     *output.Namer
	finalizer *output.Finalizer
	filter    func(string) string
	now       func() time.Time
	log       *logger.Logger
}

// New creates an Orchestrator.
func New(
	voices VoiceSource,
	invoker core.Invoker,
	namer *output.Namer,
	finalizer *output.Finalizer,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		voices:    voices,
		invoker:   invoker,
		namer:     namer,
		finalizer: finalizer,
		now:       time.Now,
		log:       log,
	}
}

// WithTextFilter rewrites request text before validation. It is used for
// optional normalization.
func (o *Orchestrator) WithTextFilter(filter func(string) string) *Orchestrator {
	o.filter = filter

	return o
}

// Voices returns the current voice listing and any warning about it.
func (o *Orchestrator) Voices() ([]core.VoicePair, *core.Notice) {
	return o.voices.List()
}

// Synthesize validates req, runs the TTS executable, finalizes the output and
// returns the playback reference and download path. Errors never escape: they
// are reported as notices alongside an empty or degraded result.
func (o *Orchestrator) Synthesize(ctx context.Context, req core.Request) Result {
	if o.filter != nil {
		req.Text = o.filter(req.Text)
	}

	err := req.Validate()
	if err != nil {
		return o.reject(err)
	}

	modelPath, err := o.voices.Resolve(req.Voice)
	if err != nil {
		return o.reject(err)
	}

	wavPath, err := o.namer.Reserve()
	if err != nil {
		return o.fail(err)
	}

	o.log.Info(logFmtRequest, len([]rune(req.Text)), req.Voice, req.LengthScale, req.NoiseScale, req.WantMP3)

	err = o.invoker.Invoke(ctx, core.Invocation{
		ModelPath:   modelPath,
		Text:        req.Text,
		LengthScale: req.LengthScale,
		NoiseScale:  req.NoiseScale,
		OutputPath:  wavPath,
	})
	if err != nil {
		o.discard(wavPath)

		return o.fail(err)
	}

	artifact, err := o.finalizer.Finalize(ctx, wavPath, req.WantMP3)
	if err != nil {
		o.log.Warn(logFmtDegraded, artifact.FinalPath)

		result := o.fail(err)
		result.Playback = artifact.FinalPath
		result.Download = artifact.FinalPath
		result.Artifact = &artifact

		return result
	}

	o.log.Info(logFmtDone, artifact.FinalPath)

	return Result{
		Playback: output.PlaybackReference(artifact.FinalPath, o.now()),
		Download: artifact.FinalPath,
		Artifact: &artifact,
		Notices:  nil,
	}
}

// reject reports a request problem as a WARNING, or a deployment problem found
// while checking it as an ERROR.
func (o *Orchestrator) reject(err error) Result {
	if !errors.Is(err, core.ErrValidation) {
		return o.fail(err)
	}

	notice := core.NewWarning(err.Error(), err)
	o.log.Warn("%s", notice.Message)

	return Result{Notices: []core.Notice{notice}}
}

func (o *Orchestrator) fail(err error) Result {
	notice := core.NewFailure(err)
	o.log.Error("%s", notice.Message)

	return Result{Notices: []core.Notice{notice}}
}

// discard removes the reserved WAV after a failed run; its contents are not
// trustworthy.
func (o *Orchestrator) discard(wavPath string) {
	removeErr := os.Remove(wavPath)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		o.log.Warn(logFmtDiscardEmpty, wavPath, removeErr)
	}
}
