// Package tts runs the external piper executable that turns text into a WAV file.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/piper-studio/internal/core"
)

// Piper command-line flags.
const (
	flagModel       = "--model"
	flagOutputFile  = "--output_file"
	flagLengthScale = "--length_scale"
	flagNoiseScale  = "--noise_scale"
)

// waitDelay bounds how long Wait blocks on the child's pipes after it was killed.
const waitDelay = 5 * time.Second

// Static errors.
var (
	ErrTextEmpty       = errors.New("text cannot be empty")
	ErrModelPathEmpty  = errors.New("model path cannot be empty")
	ErrOutputPathEmpty = errors.New("output path cannot be empty")
	ErrTimedOut        = errors.New("piper did not finish in time")
)

const (
	logFmtInvoking  = "Running %s for model %s -> %s"
	logFmtFinished  = "Piper finished in %s: %s"
	logFmtFailed    = "Piper failed (exit code %d): %s"
	logFmtStdout    = "Piper output: %s"
	errFmtTimeout   = "%w after %s"
	errFmtStartFail = "failed to start piper: %w"
)

// PiperInvoker implements core.Invoker by spawning the piper binary once per call.
// It holds no mutable state, so concurrent calls run independent processes.
type PiperInvoker struct {
	executable string
	timeout    time.Duration
	log        *logger.Logger
}

// New creates a PiperInvoker. A zero timeout waits for the child indefinitely.
func New(executable string, timeout time.Duration, log *logger.Logger) *PiperInvoker {
	return &PiperInvoker{
		executable: executable,
		timeout:    timeout,
		log:        log,
	}
}

// Executable returns the configured executable path.
func (p *PiperInvoker) Executable() string {
	return p.executable
}

// Args builds the piper argument list for an invocation.
func Args(inv core.Invocation) []string {
	return []string{
		flagModel, inv.ModelPath,
		flagOutputFile, inv.OutputPath,
		flagLengthScale, formatScale(inv.LengthScale),
		flagNoiseScale, formatScale(inv.NoiseScale),
	}
}

// Invoke writes the text to piper's stdin, closes it, and waits for the process
// to exit while capturing stdout and stderr in full. There are no retries.
func (p *PiperInvoker) Invoke(ctx context.Context, inv core.Invocation) error {
	inputErr := validateInvocation(inv)
	if inputErr != nil {
		return inputErr
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	// #nosec G204 -- the executable comes from configuration, arguments are passed without a shell
	cmd := exec.CommandContext(ctx, p.executable, Args(inv)...)
	cmd.Stdin = strings.NewReader(inv.Text)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.log.Info(logFmtInvoking, p.executable, inv.ModelPath, inv.OutputPath)

	started := time.Now()

	runErr := cmd.Run()
	if runErr != nil {
		return p.classify(ctx, runErr, stderr.String())
	}

	p.log.Info(logFmtFinished, time.Since(started).Round(time.Millisecond), inv.OutputPath)

	if out := strings.TrimSpace(stdout.String()); out != "" {
		p.log.Info(logFmtStdout, out)
	}

	return nil
}

// classify maps a failed run onto the error taxonomy.
func (p *PiperInvoker) classify(ctx context.Context, runErr error, stderr string) error {
	diagnostic := strings.TrimSpace(stderr)

	var exitErr *exec.ExitError

	switch {
	case errors.Is(runErr, exec.ErrNotFound), errors.Is(runErr, fs.ErrNotExist), errors.Is(runErr, fs.ErrPermission):
		return &core.ExecutableNotFoundError{Path: p.executable, Err: runErr}

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		timeoutErr := fmt.Errorf(errFmtTimeout, ErrTimedOut, p.timeout)
		if diagnostic == "" {
			diagnostic = timeoutErr.Error()
		}

		return &core.EngineFailureError{ExitCode: exitCode(runErr), Stderr: diagnostic, Err: timeoutErr}

	case errors.As(runErr, &exitErr):
		p.log.Error(logFmtFailed, exitErr.ExitCode(), diagnostic)

		return &core.EngineFailureError{ExitCode: exitErr.ExitCode(), Stderr: diagnostic, Err: runErr}

	default:
		return &core.EngineFailureError{ExitCode: -1, Stderr: diagnostic, Err: fmt.Errorf(errFmtStartFail, runErr)}
	}
}

func validateInvocation(inv core.Invocation) error {
	if inv.Text == "" {
		return ErrTextEmpty
	}

	if inv.ModelPath == "" {
		return ErrModelPathEmpty
	}

	if inv.OutputPath == "" {
		return ErrOutputPathEmpty
	}

	return nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}

// formatScale renders a float with the shortest decimal representation that
// round-trips, e.g. 0.667 -> "0.667" and 1 -> "1".
func formatScale(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
