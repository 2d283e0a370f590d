package mcpserver_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/piper-studio/internal/core"
	"github.com/book-expert/piper-studio/internal/mcpserver"
	"github.com/book-expert/piper-studio/internal/pipeline"
	"github.com/book-expert/piper-studio/internal/testutil"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPipeline struct {
	mu       sync.Mutex
	pairs    []core.VoicePair
	notice   *core.Notice
	result   pipeline.Result
	requests []core.Request
}

func (m *mockPipeline) Voices() ([]core.VoicePair, *core.Notice) {
	return m.pairs, m.notice
}

func (m *mockPipeline) Synthesize(_ context.Context, req core.Request) pipeline.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	return m.result
}

func (m *mockPipeline) seen() []core.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]core.Request(nil), m.requests...)
}

func connect(t *testing.T, p mcpserver.Pipeline) *sdk.ClientSession {
	t.Helper()

	ctx := context.Background()
	server := mcpserver.New(p, mcpserver.Defaults{LengthScale: 1.0, NoiseScale: 0.667, WantMP3: true}, "test", testutil.NewLogger(t))

	serverTransport, clientTransport := sdk.NewInMemoryTransports()

	serverSession, err := server.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "test"}, nil)

	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

func texts(t *testing.T, result *sdk.CallToolResult) []string {
	t.Helper()

	lines := make([]string, 0, len(result.Content))

	for _, content := range result.Content {
		text, ok := content.(*sdk.TextContent)
		require.True(t, ok, "unexpected content type %T", content)

		lines = append(lines, text.Text)
	}

	return lines
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	notice := core.NewWarning("no voice models found", nil)
	session := connect(t, &mockPipeline{
		pairs:  []core.VoicePair{core.NewVoicePair("alice.onnx")},
		notice: &notice,
	})

	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{Name: "list_voices", Arguments: map[string]any{}})
	require.NoError(t, err)

	assert.False(t, result.IsError)
	assert.Equal(t, []string{"Voices (1):", "- alice.onnx", "WARNING: no voice models found"}, texts(t, result))
}

func TestSynthesize_Success(t *testing.T) {
	t.Parallel()

	p := &mockPipeline{result: pipeline.Result{
		Playback: "output/output_20240101_120000.wav?v=1704110400.000000",
		Download: "output/output_20240101_120000.wav",
	}}
	session := connect(t, p)

	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name: "synthesize",
		Arguments: map[string]any{
			"text":         "Hello world",
			"voice":        "alice.onnx",
			"length_scale": 1.5,
			"format":       "wav",
		},
	})
	require.NoError(t, err)

	assert.False(t, result.IsError)
	assert.Equal(t, []string{
		"Playback: output/output_20240101_120000.wav?v=1704110400.000000",
		"Download: output/output_20240101_120000.wav",
	}, texts(t, result))

	requests := p.seen()
	require.Len(t, requests, 1)
	assert.Equal(t, core.Request{
		Voice:       "alice.onnx",
		Text:        "Hello world",
		LengthScale: 1.5,
		NoiseScale:  0.667,
		WantMP3:     false,
	}, requests[0])
}

func TestSynthesize_FailureIsToolError(t *testing.T) {
	t.Parallel()

	failure := core.NewFailure(&core.EngineFailureError{ExitCode: 1, Stderr: "unknown model format"})
	p := &mockPipeline{result: pipeline.Result{Notices: []core.Notice{failure}}}
	session := connect(t, p)

	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      "synthesize",
		Arguments: map[string]any{"text": "Hello", "voice": "alice.onnx"},
	})
	require.NoError(t, err)

	assert.True(t, result.IsError)

	lines := texts(t, result)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "ERROR: "))
	assert.Contains(t, lines[0], "unknown model format")

	requests := p.seen()
	require.Len(t, requests, 1)
	assert.True(t, requests[0].WantMP3, "format defaults to the configured one")
}

func TestSynthesize_RejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	p := &mockPipeline{}
	session := connect(t, p)

	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      "synthesize",
		Arguments: map[string]any{"text": "Hello", "voice": "alice.onnx", "format": "ogg"},
	})
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Empty(t, p.seen())
}
