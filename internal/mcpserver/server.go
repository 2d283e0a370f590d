// Package mcpserver exposes the synthesis pipeline as Model Context Protocol
// tools.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/piper-studio/internal/core"
	"github.com/book-expert/piper-studio/internal/pipeline"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	ServerName = "piper-studio"

	toolListVoices = "list_voices"
	toolSynthesize = "synthesize"
)

// Pipeline is the part of the orchestrator the tools call.
type Pipeline interface {
	Voices() ([]core.VoicePair, *core.Notice)
	Synthesize(ctx context.Context, req core.Request) pipeline.Result
}

// Defaults fill in the request fields a tool call leaves out.
type Defaults struct {
	LengthScale float64
	NoiseScale  float64
	WantMP3     bool
}

// SynthesizeArgs are the arguments of the synthesize tool.
type SynthesizeArgs struct {
	Text        string   `json:"text"                   jsonschema:"Text to speak"`
	Voice       string   `json:"voice"                  jsonschema:"Voice model file name, for example en_US-amy-medium.onnx"`
	LengthScale *float64 `json:"length_scale,omitempty" jsonschema:"Speaking rate between 0.5 and 2.0; higher is slower"`
	NoiseScale  *float64 `json:"noise_scale,omitempty"  jsonschema:"Variability between 0.1 and 2.0"`
	Format      string   `json:"format,omitempty"       jsonschema:"Output format: wav or mp3"`
}

// ListVoicesArgs are the arguments of the list_voices tool.
type ListVoicesArgs struct{}

// Server wraps an MCP server bound to one pipeline.
type Server struct {
	mcpServer *sdk.Server
	pipeline  Pipeline
	defaults  Defaults
	log       *logger.Logger
}

// New creates the server and registers its tools.
func New(p Pipeline, defaults Defaults, version string, log *logger.Logger) *Server {
	s := &Server{
		mcpServer: sdk.NewServer(&sdk.Implementation{Name: ServerName, Version: version}, nil),
		pipeline:  p,
		defaults:  defaults,
		log:       log,
	}

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        toolListVoices,
		Description: "List the voice models that have both a .onnx model and its .onnx.json config",
	}, s.handleListVoices)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        toolSynthesize,
		Description: "Synthesize speech from text and return the path of the saved audio file",
	}, s.handleSynthesize)

	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *sdk.Server {
	return s.mcpServer
}

// Run serves on stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	err := s.mcpServer.Run(ctx, &sdk.StdioTransport{})
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) handleListVoices(
	_ context.Context, _ *sdk.CallToolRequest, _ ListVoicesArgs,
) (*sdk.CallToolResult, any, error) {
	pairs, notice := s.pipeline.Voices()

	content := []sdk.Content{
		&sdk.TextContent{Text: fmt.Sprintf("Voices (%d):", len(pairs))},
	}

	for _, pair := range pairs {
		content = append(content, &sdk.TextContent{Text: "- " + pair.ModelFile})
	}

	if notice != nil {
		content = append(content, &sdk.TextContent{Text: notice.String()})
	}

	return &sdk.CallToolResult{Content: content}, nil, nil
}

func (s *Server) handleSynthesize(
	ctx context.Context, _ *sdk.CallToolRequest, args SynthesizeArgs,
) (*sdk.CallToolResult, any, error) {
	req, err := s.request(args)
	if err != nil {
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: core.NewWarning(err.Error(), err).String()}},
			IsError: true,
		}, nil, nil
	}

	s.log.Info("MCP synthesize: voice=%s characters=%d", req.Voice, len([]rune(req.Text)))

	result := s.pipeline.Synthesize(ctx, req)

	content := make([]sdk.Content, 0, len(result.Notices)+2)
	if !result.Empty() {
		content = append(content,
			&sdk.TextContent{Text: "Playback: " + result.Playback},
			&sdk.TextContent{Text: "Download: " + result.Download},
		)
	}

	for _, notice := range result.Notices {
		content = append(content, &sdk.TextContent{Text: notice.String()})
	}

	return &sdk.CallToolResult{Content: content, IsError: result.Empty()}, nil, nil
}

func (s *Server) request(args SynthesizeArgs) (core.Request, error) {
	req := core.Request{
		Voice:       args.Voice,
		Text:        args.Text,
		LengthScale: s.defaults.LengthScale,
		NoiseScale:  s.defaults.NoiseScale,
		WantMP3:     s.defaults.WantMP3,
	}

	if args.LengthScale != nil {
		req.LengthScale = *args.LengthScale
	}

	if args.NoiseScale != nil {
		req.NoiseScale = *args.NoiseScale
	}

	switch strings.ToLower(args.Format) {
	case "":
	case string(core.FormatMP3):
		req.WantMP3 = true
	case string(core.FormatWAV):
		req.WantMP3 = false
	default:
		return core.Request{}, &core.ValidationError{Field: "format", Reason: "format must be wav or mp3, got " + args.Format}
	}

	return req, nil
}
