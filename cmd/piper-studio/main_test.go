package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/piper-studio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workspace struct {
	root       string
	configTOML string
	outputDir  string
}

func newWorkspace(t *testing.T, executable string) workspace {
	t.Helper()

	return newWorkspaceWithVoice(t, executable, "alice.onnx")
}

func newWorkspaceWithVoice(t *testing.T, executable, defaultVoice string) workspace {
	t.Helper()

	root := t.TempDir()
	voicesDir := filepath.Join(root, "voices")
	require.NoError(t, os.MkdirAll(voicesDir, 0o750))

	for _, name := range []string{"alice.onnx", "alice.onnx.json", "bob.onnx"} {
		require.NoError(t, os.WriteFile(filepath.Join(voicesDir, name), []byte(name), 0o600))
	}

	ws := workspace{root: root, outputDir: filepath.Join(root, "output")}

	content := fmt.Sprintf(`
[piper]
executable = %q
timeout_seconds = 60
length_scale = 1.0
noise_scale = 0.667
default_voice = %q

[paths]
voices_dir = %q
output_dir = %q
base_logs_dir = %q

[output]
save_as_mp3 = false
ffmpeg_executable = "ffmpeg"
mp3_bitrate = "128k"
verify_mp3 = true
`, executable, defaultVoice, voicesDir, ws.outputDir, filepath.Join(root, "logs"))

	ws.configTOML = filepath.Join(root, "piper-studio.toml")
	require.NoError(t, os.WriteFile(ws.configTOML, []byte(content), 0o600))

	return ws
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	root := newRootCommand()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.Execute()

	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	root := newRootCommand()

	names := make([]string, 0, len(root.Commands()))
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}

	assert.Subset(t, names, []string{"voices", "synthesize", "worker", "mcp"})
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestVoicesCommand(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "/nonexistent/piper")

	stdout, _, err := execute(t, "", "--config", ws.configTOML, "voices")
	require.NoError(t, err)
	assert.Equal(t, "alice.onnx\n", stdout)
	assert.DirExists(t, ws.outputDir)
}

func TestSynthesizeCommand_WritesWAV(t *testing.T) {
	fake := testutil.NewFakePiper(t)
	ws := newWorkspace(t, fake.Path)

	stdout, stderr, err := execute(t, "", "--config", ws.configTOML, "synthesize", "--text", "Hello world")
	require.NoError(t, err, stderr)

	assert.Contains(t, stdout, "Playback: ")
	assert.Contains(t, stdout, "?v=")
	assert.Equal(t, "Hello world", fake.Stdin(t))

	entries, err := os.ReadDir(ws.outputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".wav", filepath.Ext(entries[0].Name()))
}

func TestSynthesizeCommand_DefaultsToFirstListedVoice(t *testing.T) {
	fake := testutil.NewFakePiper(t)
	ws := newWorkspaceWithVoice(t, fake.Path, "")

	_, stderr, err := execute(t, "", "--config", ws.configTOML, "synthesize", "--text", "Hello world")
	require.NoError(t, err, stderr)
	assert.Contains(t, fake.Args(t), filepath.Join(ws.root, "voices", "alice.onnx"))
}

func TestSynthesizeCommand_ReadsStdin(t *testing.T) {
	fake := testutil.NewFakePiper(t)
	ws := newWorkspace(t, fake.Path)

	_, stderr, err := execute(t, "Über große Straßen\n", "--config", ws.configTOML,
		"synthesize", "--voice", "alice.onnx", "--text-file", "-", "--format", "wav")
	require.NoError(t, err, stderr)
	assert.Equal(t, "Über große Straßen\n", fake.Stdin(t))
}

func TestSynthesizeCommand_Rejections(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "/nonexistent/piper")

	t.Cleanup(func() {
		entries, err := os.ReadDir(ws.outputDir)
		if err == nil {
			assert.Empty(t, entries)
		}
	})

	testCases := []struct {
		name    string
		args    []string
		wantErr error
		stderr  string
	}{
		{"empty text", []string{"--text", "   "}, ErrNoAudio, "please enter text and select a voice"},
		{"unpaired voice", []string{"--text", "Hi", "--voice", "bob.onnx"}, ErrNoAudio, "WARNING"},
		{"length scale", []string{"--text", "Hi", "--length-scale", "3"}, ErrNoAudio, "length scale"},
		{"format", []string{"--text", "Hi", "--format", "ogg"}, ErrUnknownFormat, ""},
		{"text and file", []string{"--text", "Hi", "--text-file", "-"}, ErrTextAndFile, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			args := append([]string{"--config", ws.configTOML, "synthesize"}, tc.args...)

			_, stderr, err := execute(t, "", args...)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Contains(t, stderr, tc.stderr)
		})
	}
}

func TestSynthesizeCommand_MissingExecutable(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, filepath.Join(t.TempDir(), "piper", "piper"))

	_, stderr, err := execute(t, "", "--config", ws.configTOML, "synthesize", "--text", "Hello")
	require.ErrorIs(t, err, ErrNoAudio)
	assert.Contains(t, stderr, "piper executable not found")
}

func TestWorkerCommand_RequiresNATSURL(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "/nonexistent/piper")

	_, _, err := execute(t, "", "--config", ws.configTOML, "worker")
	require.ErrorIs(t, err, ErrNATSURLEmpty)
}
