// Package worker provides a NATS worker that turns text-processed events into
// synthesized audio.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/piper-studio/internal/core"
	"github.com/book-expert/piper-studio/internal/pipeline"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	logFmtSubscribed = "Worker listening on '%s'"
	logFmtJob        = "Workflow %s page %v/%v: synthesizing with %s"
	logFmtUploaded   = "Workflow %s: uploaded %s as %s"
)

var (
	// ErrNoVoice indicates that the event names no voice and none is configured or listed.
	ErrNoVoice = errors.New("no voice in event, no default voice configured and no voices listed")
	// ErrNoAudio indicates that the pipeline finished without producing a file.
	ErrNoAudio = errors.New("synthesis produced no audio")
)

// Synthesizer is the part of the pipeline the worker drives.
type Synthesizer interface {
	Voices() ([]core.VoicePair, *core.Notice)
	Synthesize(ctx context.Context, req core.Request) pipeline.Result
}

// Settings are the request defaults applied to every job.
type Settings struct {
	DefaultVoice string
	LengthScale  float64
	NoiseScale   float64
	WantMP3      bool
	// JobTimeout bounds one job end to end; zero means no bound.
	JobTimeout time.Duration
}

// NatsWorker listens for text-processed events on a NATS subject.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	textStore      core.ObjectStore
	audioStore     core.ObjectStore
	synthesizer    Synthesizer
	settings       Settings
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	textStore core.ObjectStore,
	audioStore core.ObjectStore,
	synthesizer Synthesizer,
	settings Settings,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		textStore:      textStore,
		audioStore:     audioStore,
		synthesizer:    synthesizer,
		settings:       settings,
		log:            log,
	}
}

// Run subscribes and blocks until ctx is cancelled, then drains.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info(logFmtSubscribed, w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := w.jobContext()
	defer cancel()

	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		w.log.Error("Failed to unmarshal event: %v", err)

		return
	}

	audioKey, err := w.process(ctx, &event)
	if err != nil {
		w.log.Error("Failed to synthesize workflow %s: %v", event.Header.WorkflowID, err)

		return
	}

	reply := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = respond(msg, reply)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

func (w *NatsWorker) jobContext() (context.Context, context.CancelFunc) {
	if w.settings.JobTimeout <= 0 {
		return context.WithCancel(context.Background())
	}

	return context.WithTimeout(context.Background(), w.settings.JobTimeout)
}

// process downloads the text, synthesizes it and uploads the final artifact.
func (w *NatsWorker) process(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	req, err := w.request(event)
	if err != nil {
		return "", err
	}

	text, err := w.textStore.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text for key '%s': %w", event.TextKey, err)
	}

	req.Text = string(text)

	w.log.Info(logFmtJob, event.Header.WorkflowID, event.PageNumber, event.TotalPages, req.Voice)

	result := w.synthesizer.Synthesize(ctx, req)

	// A degraded result still carries a usable WAV; only an empty one is fatal.
	if result.Empty() {
		return "", noAudio(result)
	}

	for _, notice := range result.Notices {
		w.log.Warn("Workflow %s: %s", event.Header.WorkflowID, notice.String())
	}

	audioKey := uuid.NewString() + filepath.Ext(result.Download)

	err = w.audioStore.UploadFile(ctx, audioKey, result.Download)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio for key '%s': %w", audioKey, err)
	}

	w.log.Info(logFmtUploaded, event.Header.WorkflowID, result.Download, audioKey)

	return audioKey, nil
}

// request maps an event onto a pipeline request using the configured defaults.
func (w *NatsWorker) request(event *events.TextProcessedEvent) (core.Request, error) {
	voice := strings.TrimSpace(event.Voice)
	if voice == "" {
		voice = w.settings.DefaultVoice
	}

	if voice == "" {
		pairs, _ := w.synthesizer.Voices()
		if len(pairs) > 0 {
			voice = pairs[0].ModelFile
		}
	}

	if voice == "" {
		return core.Request{}, ErrNoVoice
	}

	if !strings.HasSuffix(voice, core.ModelSuffix) {
		voice += core.ModelSuffix
	}

	return core.Request{
		Voice:       voice,
		Text:        "",
		LengthScale: w.settings.LengthScale,
		NoiseScale:  w.settings.NoiseScale,
		WantMP3:     w.settings.WantMP3,
	}, nil
}

func noAudio(result pipeline.Result) error {
	for _, notice := range result.Notices {
		if notice.Err != nil {
			return fmt.Errorf("%w: %w", ErrNoAudio, notice.Err)
		}
	}

	return ErrNoAudio
}

func respond(msg *nats.Msg, reply *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}
