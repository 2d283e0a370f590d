// Package config provides the configuration structure for piper-studio.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/piper-studio/internal/core"
	"github.com/book-expert/piper-studio/internal/fileutil"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults mirror the layout of a standalone piper installation next to the binary.
const (
	DefaultExecutable       = "./piper/piper"
	DefaultVoicesDir        = "./voices/"
	DefaultOutputDir        = "./output/"
	DefaultLengthScale      = 1.0
	DefaultNoiseScale       = 0.667
	DefaultTimeoutSeconds   = 300
	DefaultFFmpegExecutable = "ffmpeg"
	DefaultMP3Bitrate       = "128k"
	DotEnvFile              = ".env"
)

// Static errors.
var (
	ErrExecutableEmpty   = errors.New("piper executable cannot be empty")
	ErrVoicesDirEmpty    = errors.New("voices directory cannot be empty")
	ErrOutputDirEmpty    = errors.New("output directory cannot be empty")
	ErrNegativeTimeout   = errors.New("timeout_seconds must be non-negative")
	ErrScaleOutOfRange   = errors.New("default scale out of range")
	ErrUnsupportedFormat = errors.New("unsupported config file format")
)

// PiperConfig holds the settings for the external TTS executable.
type PiperConfig struct {
	Executable     string  `toml:"executable"      yaml:"executable"      env:"PIPER_STUDIO_EXECUTABLE"`
	TimeoutSeconds int     `toml:"timeout_seconds" yaml:"timeout_seconds" env:"PIPER_STUDIO_TIMEOUT_SECONDS"`
	LengthScale    float64 `toml:"length_scale"    yaml:"length_scale"    env:"PIPER_STUDIO_LENGTH_SCALE"`
	NoiseScale     float64 `toml:"noise_scale"     yaml:"noise_scale"     env:"PIPER_STUDIO_NOISE_SCALE"`
	DefaultVoice   string  `toml:"default_voice"   yaml:"default_voice"   env:"PIPER_STUDIO_DEFAULT_VOICE"`
	NormalizeText  bool    `toml:"normalize_text"  yaml:"normalize_text"  env:"PIPER_STUDIO_NORMALIZE_TEXT"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	VoicesDir   string `toml:"voices_dir"    yaml:"voices_dir"    env:"PIPER_STUDIO_VOICES_DIR"`
	OutputDir   string `toml:"output_dir"    yaml:"output_dir"    env:"PIPER_STUDIO_OUTPUT_DIR"`
	BaseLogsDir string `toml:"base_logs_dir" yaml:"base_logs_dir" env:"PIPER_STUDIO_LOGS_DIR"`
}

// OutputConfig controls the compressed re-encode of synthesized audio.
type OutputConfig struct {
	SaveAsMP3        bool   `toml:"save_as_mp3"       yaml:"save_as_mp3"       env:"PIPER_STUDIO_SAVE_AS_MP3"`
	FFmpegExecutable string `toml:"ffmpeg_executable" yaml:"ffmpeg_executable" env:"PIPER_STUDIO_FFMPEG"`
	MP3Bitrate       string `toml:"mp3_bitrate"       yaml:"mp3_bitrate"       env:"PIPER_STUDIO_MP3_BITRATE"`
	VerifyMP3        bool   `toml:"verify_mp3"        yaml:"verify_mp3"        env:"PIPER_STUDIO_VERIFY_MP3"`
}

// NATSConfig holds the configuration for the optional NATS worker.
type NATSConfig struct {
	URL                    string `toml:"url"                       yaml:"url"                       env:"PIPER_STUDIO_NATS_URL"`
	TextProcessedSubject   string `toml:"text_processed_subject"    yaml:"text_processed_subject"    env:"PIPER_STUDIO_NATS_SUBJECT"`
	TextObjectStoreBucket  string `toml:"text_object_store_bucket"  yaml:"text_object_store_bucket"  env:"PIPER_STUDIO_NATS_TEXT_BUCKET"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket" yaml:"audio_object_store_bucket" env:"PIPER_STUDIO_NATS_AUDIO_BUCKET"`
}

// Config is the root configuration structure.
type Config struct {
	Piper  PiperConfig  `toml:"piper"  yaml:"piper"`
	Paths  PathsConfig  `toml:"paths"  yaml:"paths"`
	Output OutputConfig `toml:"output" yaml:"output"`
	NATS   NATSConfig   `toml:"nats"   yaml:"nats"`
}

// Default returns a configuration populated with the stock values.
func Default() *Config {
	return &Config{
		Piper: PiperConfig{
			Executable:     DefaultExecutable,
			TimeoutSeconds: DefaultTimeoutSeconds,
			LengthScale:    DefaultLengthScale,
			NoiseScale:     DefaultNoiseScale,
			DefaultVoice:   "",
			NormalizeText:  false,
		},
		Paths: PathsConfig{
			VoicesDir:   DefaultVoicesDir,
			OutputDir:   DefaultOutputDir,
			BaseLogsDir: os.TempDir(),
		},
		Output: OutputConfig{
			SaveAsMP3:        true,
			FFmpegExecutable: DefaultFFmpegExecutable,
			MP3Bitrate:       DefaultMP3Bitrate,
			VerifyMP3:        true,
		},
		NATS: NATSConfig{
			URL:                    "",
			TextProcessedSubject:   "text.processed",
			TextObjectStoreBucket:  "TEXT_FILES",
			AudioObjectStoreBucket: "AUDIO_FILES",
		},
	}
}

// Load discovers the project configuration through the central configurator,
// then applies the .env file and environment overrides.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Default()

	err := configurator.Load(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(cfg, DotEnvFile)
}

// LoadFile reads an explicit TOML or YAML file. A .env file next to it is honoured.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return finish(cfg, filepath.Join(filepath.Dir(path), DotEnvFile))
}

func finish(cfg *Config, dotEnvPath string) (*Config, error) {
	err := godotenv.Load(dotEnvPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", dotEnvPath, err)
	}

	err = env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration can drive the pipeline.
func (c *Config) Validate() error {
	if c.Piper.Executable == "" {
		return ErrExecutableEmpty
	}

	if c.Paths.VoicesDir == "" {
		return ErrVoicesDirEmpty
	}

	if c.Paths.OutputDir == "" {
		return ErrOutputDirEmpty
	}

	if c.Piper.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeTimeout, c.Piper.TimeoutSeconds)
	}

	if c.Piper.LengthScale < core.MinLengthScale || c.Piper.LengthScale > core.MaxLengthScale {
		return fmt.Errorf("%w: length_scale %v", ErrScaleOutOfRange, c.Piper.LengthScale)
	}

	if c.Piper.NoiseScale < core.MinNoiseScale || c.Piper.NoiseScale > core.MaxNoiseScale {
		return fmt.Errorf("%w: noise_scale %v", ErrScaleOutOfRange, c.Piper.NoiseScale)
	}

	return nil
}

// EnsureDirectories creates the output and log directories if they are absent.
// The voices directory is an external asset and is never created.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.BaseLogsDir} {
		if dir == "" {
			continue
		}

		err := fileutil.EnsureDir(dir)
		if err != nil {
			return err
		}
	}

	return nil
}

// Timeout returns the child process timeout. Zero means wait indefinitely.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Piper.TimeoutSeconds) * time.Second
}
