// Package core defines the domain types, error taxonomy and collaborator
// interfaces of the synthesis pipeline.
package core

import "context"

// ObjectStore is a key-value blob store shared with remote producers and
// consumers of synthesis jobs.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	UploadFile(ctx context.Context, key, path string) error
}

// Invocation holds everything the external TTS executable needs for one run.
type Invocation struct {
	ModelPath   string
	Text        string
	LengthScale float64
	NoiseScale  float64
	OutputPath  string
}

// Invoker runs the external TTS executable. On success OutputPath holds a WAV file.
// On failure the state of OutputPath is unspecified.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) error
}

// PCM is decoded, interleaved 16-bit audio held fully in memory.
type PCM struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Encoder re-encodes decoded audio into a compressed file at dst.
type Encoder interface {
	Encode(ctx context.Context, pcm *PCM, dst string) error
}
