package core

import (
	"errors"
	"fmt"
	"strconv"
)

// Taxonomy sentinels. Every typed error below unwraps to exactly one of them.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("invalid synthesis request")
	ErrEngineFailure = errors.New("synthesis engine failure")
	ErrEncodeFailed  = errors.New("audio conversion failed")
)

const (
	msgEnterTextAndVoice = "please enter text and select a voice"

	errFmtExecutableNotFound = "piper executable not found at path '%s'; please ensure it is correct"
	errFmtEngineFailure      = "error in piper (exit code %d): %s"
	errFmtConversion         = "error converting to MP3: %v; please ensure the ffmpeg system tool is installed"
)

// ValidationError rejects a request before any resource is used.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ConfigurationError reports a deployment problem such as a missing voices directory.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return e.Reason
	}

	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() []error {
	return []error{ErrConfiguration, e.Err}
}

// ExecutableNotFoundError means the configured TTS executable could not be started.
// It is a configuration problem, not a bad input.
type ExecutableNotFoundError struct {
	Path string
	Err  error
}

func (e *ExecutableNotFoundError) Error() string {
	return fmt.Sprintf(errFmtExecutableNotFound, e.Path)
}

func (e *ExecutableNotFoundError) Unwrap() []error {
	return []error{ErrConfiguration, e.Err}
}

// EngineFailureError carries the diagnostic text of a failed TTS run.
type EngineFailureError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *EngineFailureError) Error() string {
	return fmt.Sprintf(errFmtEngineFailure, e.ExitCode, e.Stderr)
}

func (e *EngineFailureError) Unwrap() []error {
	return []error{ErrEngineFailure, e.Err}
}

// ConversionError is returned when the compressed re-encode fails. The WAV is kept.
type ConversionError struct {
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf(errFmtConversion, e.Err)
}

func (e *ConversionError) Unwrap() []error {
	return []error{ErrEncodeFailed, e.Err}
}

func rangeReason(name string, value, low, high float64) string {
	return fmt.Sprintf("%s must be between %s and %s, got %s",
		name,
		strconv.FormatFloat(low, 'f', -1, 64),
		strconv.FormatFloat(high, 'f', -1, 64),
		strconv.FormatFloat(value, 'f', -1, 64),
	)
}
