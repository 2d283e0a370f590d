// Package tts_test tests the piper invoker against stand-in executables.
//
// These tests are not parallel: see testutil.WriteScript.
package tts_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/piper-studio/internal/core"
	"github.com/book-expert/piper-studio/internal/testutil"
	"github.com/book-expert/piper-studio/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInvocation(t *testing.T) core.Invocation {
	t.Helper()

	return core.Invocation{
		ModelPath:   "voices/alice.onnx",
		Text:        "Hello world",
		LengthScale: 1.0,
		NoiseScale:  0.667,
		OutputPath:  filepath.Join(t.TempDir(), "output_20250101_120000.wav"),
	}
}

func TestArgs(t *testing.T) {
	t.Parallel()

	inv := core.Invocation{
		ModelPath:   "voices/alice.onnx",
		Text:        "ignored",
		LengthScale: 1.0,
		NoiseScale:  0.667,
		OutputPath:  "output/out.wav",
	}

	assert.Equal(t, []string{
		"--model", "voices/alice.onnx",
		"--output_file", "output/out.wav",
		"--length_scale", "1",
		"--noise_scale", "0.667",
	}, tts.Args(inv))
}

func TestExecutable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "./piper/piper", tts.New("./piper/piper", 0, testutil.NewLogger(t)).Executable())
}

func TestInvoke_Success(t *testing.T) {
	fake := testutil.NewFakePiper(t)
	invoker := tts.New(fake.Path, time.Minute, testutil.NewLogger(t))
	inv := newInvocation(t)
	inv.Text = "Grüße, world"

	err := invoker.Invoke(context.Background(), inv)
	require.NoError(t, err)

	assert.Equal(t, tts.Args(inv), fake.Args(t))
	assert.Equal(t, "Grüße, world", fake.Stdin(t), "text must reach stdin as UTF-8")

	written, err := os.ReadFile(inv.OutputPath)
	require.NoError(t, err)

	expected, err := os.ReadFile(fake.Fixture)
	require.NoError(t, err)
	assert.Equal(t, expected, written)
}

func TestInvoke_EngineFailure(t *testing.T) {
	invoker := tts.New(testutil.FailingPiper(t, "unknown model format", 1), 0, testutil.NewLogger(t))

	err := invoker.Invoke(context.Background(), newInvocation(t))
	require.ErrorIs(t, err, core.ErrEngineFailure)

	var engineErr *core.EngineFailureError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, 1, engineErr.ExitCode)
	assert.Equal(t, "unknown model format", engineErr.Stderr)
	assert.Contains(t, err.Error(), "unknown model format")
}

func TestInvoke_ExecutableNotFound(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "piper", "piper")
	invoker := tts.New(missing, 0, testutil.NewLogger(t))

	err := invoker.Invoke(context.Background(), newInvocation(t))
	require.ErrorIs(t, err, core.ErrConfiguration)
	require.NotErrorIs(t, err, core.ErrEngineFailure)

	var notFound *core.ExecutableNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, missing, notFound.Path)
	assert.Contains(t, err.Error(), missing)
}

func TestInvoke_BareNameNotOnPath(t *testing.T) {
	t.Parallel()

	invoker := tts.New("piper-binary-that-does-not-exist", 0, testutil.NewLogger(t))

	err := invoker.Invoke(context.Background(), newInvocation(t))

	var notFound *core.ExecutableNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestInvoke_Timeout(t *testing.T) {
	hanging := testutil.WriteScript(t, t.TempDir(), "piper", "exec sleep 10\n")
	invoker := tts.New(hanging, 200*time.Millisecond, testutil.NewLogger(t))

	started := time.Now()
	err := invoker.Invoke(context.Background(), newInvocation(t))

	require.ErrorIs(t, err, core.ErrEngineFailure)
	require.ErrorIs(t, err, tts.ErrTimedOut)
	assert.Less(t, time.Since(started), 8*time.Second)
}

func TestInvoke_RejectsIncompleteInvocation(t *testing.T) {
	t.Parallel()

	invoker := tts.New("unused", 0, testutil.NewLogger(t))

	inv := newInvocation(t)
	inv.Text = ""
	require.ErrorIs(t, invoker.Invoke(context.Background(), inv), tts.ErrTextEmpty)

	inv = newInvocation(t)
	inv.ModelPath = ""
	require.ErrorIs(t, invoker.Invoke(context.Background(), inv), tts.ErrModelPathEmpty)

	inv = newInvocation(t)
	inv.OutputPath = ""
	require.ErrorIs(t, invoker.Invoke(context.Background(), inv), tts.ErrOutputPathEmpty)
}
