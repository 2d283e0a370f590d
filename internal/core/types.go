package core

import (
	"path/filepath"
	"strings"
	"time"
)

// Voice file suffixes.
const (
	ModelSuffix  = ".onnx"
	ConfigSuffix = ".json"
)

// Shaping parameter bounds.
const (
	MinLengthScale = 0.5
	MaxLengthScale = 2.0
	MinNoiseScale  = 0.1
	MaxNoiseScale  = 2.0
)

// Format is the container format of a synthesized artifact.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// Extension returns the file extension for the format, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// VoicePair is an acoustic model together with its companion config file.
// Both files exist on disk at the time the pair is listed.
type VoicePair struct {
	ModelFile  string `json:"model_file"`
	ConfigFile string `json:"config_file"`
}

// NewVoicePair derives the pair for a model file name.
func NewVoicePair(modelFile string) VoicePair {
	return VoicePair{
		ModelFile:  modelFile,
		ConfigFile: modelFile + ConfigSuffix,
	}
}

// Request is one user synthesis action. It is consumed once.
type Request struct {
	Voice       string  `json:"voice"`
	Text        string  `json:"text"`
	LengthScale float64 `json:"length_scale"`
	NoiseScale  float64 `json:"noise_scale"`
	WantMP3     bool    `json:"want_mp3"`
}

// Validate checks the request before any file is touched or process spawned.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" || r.Voice == "" {
		return &ValidationError{Field: "text", Reason: msgEnterTextAndVoice}
	}

	if r.Voice != filepath.Base(r.Voice) || strings.ContainsAny(r.Voice, `/\`) {
		return &ValidationError{Field: "voice", Reason: "voice must be a plain file name, got " + r.Voice}
	}

	if r.LengthScale < MinLengthScale || r.LengthScale > MaxLengthScale {
		return &ValidationError{
			Field:  "length_scale",
			Reason: rangeReason("length scale", r.LengthScale, MinLengthScale, MaxLengthScale),
		}
	}

	if r.NoiseScale < MinNoiseScale || r.NoiseScale > MaxNoiseScale {
		return &ValidationError{
			Field:  "noise_scale",
			Reason: rangeReason("noise scale", r.NoiseScale, MinNoiseScale, MaxNoiseScale),
		}
	}

	return nil
}

// Artifact is the audio file produced for one request.
type Artifact struct {
	WAVPath   string        `json:"wav_path"`
	FinalPath string        `json:"final_path"`
	Format    Format        `json:"format"`
	Size      int64         `json:"size"`
	Duration  time.Duration `json:"duration,omitempty"`
}
