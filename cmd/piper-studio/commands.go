package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/book-expert/piper-studio/internal/core"
	"github.com/book-expert/piper-studio/internal/mcpserver"
	"github.com/book-expert/piper-studio/internal/objectstore"
	"github.com/book-expert/piper-studio/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

// Static errors.
var (
	ErrNoAudio       = errors.New("no audio produced")
	ErrNATSURLEmpty  = errors.New("nats url is not configured")
	ErrTextAndFile   = errors.New("use either --text or --text-file, not both")
	ErrUnknownFormat = errors.New("format must be wav or mp3")
)

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "piper-studio",
		Short:         "Synthesize speech with a local piper installation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML or YAML config file")

	cmd.AddCommand(
		newVoicesCommand(&configPath),
		newSynthesizeCommand(&configPath),
		newWorkerCommand(&configPath),
		newMCPCommand(&configPath),
	)

	return cmd
}

func newVoicesCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List voice models with a complete model/config pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			pairs, notice := a.orchestrator.Voices()
			out := cmd.OutOrStdout()

			for _, pair := range pairs {
				fmt.Fprintln(out, pair.ModelFile)
			}

			if notice != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), notice.String())
			}

			return nil
		},
	}
}

type synthesizeFlags struct {
	voice       string
	text        string
	textFile    string
	format      string
	lengthScale float64
	noiseScale  float64
}

func newSynthesizeCommand(configPath *string) *cobra.Command {
	var flags synthesizeFlags

	cmd := &cobra.Command{
		Use:     "synthesize",
		Aliases: []string{"say"},
		Short:   "Synthesize text to a WAV or MP3 file in the output directory",
		Example: `piper-studio synthesize --voice en_US-amy-medium.onnx --text "Hello world"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			req, err := flags.request(cmd, a)
			if err != nil {
				return err
			}

			result := a.orchestrator.Synthesize(cmd.Context(), req)

			for _, notice := range result.Notices {
				fmt.Fprintln(cmd.ErrOrStderr(), notice.String())
			}

			if result.Empty() {
				return ErrNoAudio
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Playback: %s\nDownload: %s\n", result.Playback, result.Download)

			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.voice, "voice", "v", "", "Voice model file name (defaults to piper.default_voice, then the first listed voice)")
	cmd.Flags().StringVarP(&flags.text, "text", "t", "", "Text to speak")
	cmd.Flags().StringVarP(&flags.textFile, "text-file", "f", "", "Read the text from a file, or - for stdin")
	cmd.Flags().StringVar(&flags.format, "format", "", "Output format: wav or mp3 (defaults to output.save_as_mp3)")
	cmd.Flags().Float64Var(&flags.lengthScale, "length-scale", 0, "Speaking rate, 0.5 to 2.0 (defaults to piper.length_scale)")
	cmd.Flags().Float64Var(&flags.noiseScale, "noise-scale", 0, "Variability, 0.1 to 2.0 (defaults to piper.noise_scale)")

	return cmd
}

// request builds a pipeline request, filling unset flags from configuration.
// Range checks are left to the pipeline so every front end reports them alike.
func (f *synthesizeFlags) request(cmd *cobra.Command, a *app) (core.Request, error) {
	text, err := f.readText(cmd.InOrStdin())
	if err != nil {
		return core.Request{}, err
	}

	req := core.Request{
		Voice:       f.voice,
		Text:        text,
		LengthScale: a.cfg.Piper.LengthScale,
		NoiseScale:  a.cfg.Piper.NoiseScale,
		WantMP3:     a.cfg.Output.SaveAsMP3,
	}

	if req.Voice == "" {
		req.Voice = a.cfg.Piper.DefaultVoice
	}

	// Without any configured voice, the first listed voice is preselected.
	if req.Voice == "" {
		pairs, _ := a.orchestrator.Voices()
		if len(pairs) > 0 {
			req.Voice = pairs[0].ModelFile
		}
	}

	if cmd.Flags().Changed("length-scale") {
		req.LengthScale = f.lengthScale
	}

	if cmd.Flags().Changed("noise-scale") {
		req.NoiseScale = f.noiseScale
	}

	switch strings.ToLower(f.format) {
	case "":
	case string(core.FormatMP3):
		req.WantMP3 = true
	case string(core.FormatWAV):
		req.WantMP3 = false
	default:
		return core.Request{}, fmt.Errorf("%w, got %q", ErrUnknownFormat, f.format)
	}

	return req, nil
}

func (f *synthesizeFlags) readText(stdin io.Reader) (string, error) {
	if f.textFile == "" {
		return f.text, nil
	}

	if f.text != "" {
		return "", ErrTextAndFile
	}

	var (
		data []byte
		err  error
	)

	if f.textFile == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(filepath.Clean(f.textFile))
	}

	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}

	return string(data), nil
}

func newWorkerCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume text-processed events from NATS and publish synthesized audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runWorker(ctx, a)
		},
	}
}

func runWorker(ctx context.Context, a *app) error {
	natsCfg := a.cfg.NATS
	if natsCfg.URL == "" {
		return ErrNATSURLEmpty
	}

	natsConnection, err := nats.Connect(natsCfg.URL, nats.Name("piper-studio"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", natsCfg.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	textStore, err := objectstore.New(jetstreamContext, natsCfg.TextObjectStoreBucket)
	if err != nil {
		return err
	}

	audioStore, err := objectstore.New(jetstreamContext, natsCfg.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	w := worker.NewNatsWorker(
		natsConnection,
		natsCfg.TextProcessedSubject,
		textStore,
		audioStore,
		a.orchestrator,
		worker.Settings{
			DefaultVoice: a.cfg.Piper.DefaultVoice,
			LengthScale:  a.cfg.Piper.LengthScale,
			NoiseScale:   a.cfg.Piper.NoiseScale,
			WantMP3:      a.cfg.Output.SaveAsMP3,
			JobTimeout:   a.cfg.Timeout() * 2,
		},
		a.log,
	)

	a.log.System("Listening for jobs on subject: %s", natsCfg.TextProcessedSubject)

	return w.Run(ctx)
}

func newMCPCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve list_voices and synthesize as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			server := mcpserver.New(a.orchestrator, mcpserver.Defaults{
				LengthScale: a.cfg.Piper.LengthScale,
				NoiseScale:  a.cfg.Piper.NoiseScale,
				WantMP3:     a.cfg.Output.SaveAsMP3,
			}, version, a.log)

			return server.Run(cmd.Context())
		},
	}
}
