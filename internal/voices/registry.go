// Package voices discovers the voice models available to the TTS executable.
//
// A voice is listed only when both the acoustic model and its companion config
// file exist. The directory is rescanned on every call; nothing is cached.
package voices

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/piper-studio/internal/core"
	"github.com/book-expert/piper-studio/internal/fileutil"
)

const (
	msgDirNotFound   = "the voices directory %q was not found; please create it in the main project directory"
	msgNoValidPairs  = "no valid voice pairs (.onnx + .json) were found in the voices directory %q"
	msgDirUnreadable = "the voices directory %q could not be read"
	logFmtListed     = "Found %d voice(s) in %s"
	errFmtNotListed  = "voice %q is not available (model and config must both exist in %s)"
)

// Registry lists voice pairs found in a flat directory.
type Registry struct {
	dir string
	log *logger.Logger
}

// NewRegistry creates a registry over dir.
func NewRegistry(dir string, log *logger.Logger) *Registry {
	return &Registry{
		dir: dir,
		log: log,
	}
}

// List returns the valid voice pairs in directory enumeration order.
// Problems never fail the call: a missing directory or an empty result yields
// an empty list and a WARNING notice.
func (r *Registry) List() ([]core.VoicePair, *core.Notice) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, r.warn(r.readDirMessage(err), &core.ConfigurationError{Reason: "voices directory", Err: err})
	}

	pairs := make([]core.VoicePair, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, core.ModelSuffix) {
			continue
		}

		pair := core.NewVoicePair(name)

		hasConfig, statErr := fileutil.FileExists(filepath.Join(r.dir, pair.ConfigFile))
		if statErr != nil {
			r.log.Warn("Skipping voice %s: %v", name, statErr)

			continue
		}

		if hasConfig {
			pairs = append(pairs, pair)
		}
	}

	if len(pairs) == 0 {
		return pairs, r.warn(fmt.Sprintf(msgNoValidPairs, r.dir), nil)
	}

	r.log.Info(logFmtListed, len(pairs), r.dir)

	return pairs, nil
}

// Resolve returns the model path for name, provided the pair is complete.
func (r *Registry) Resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, core.ModelSuffix) {
		return "", &core.ValidationError{Field: "voice", Reason: fmt.Sprintf(errFmtNotListed, name, r.dir)}
	}

	pair := core.NewVoicePair(name)
	modelPath := filepath.Join(r.dir, pair.ModelFile)

	for _, path := range []string{modelPath, filepath.Join(r.dir, pair.ConfigFile)} {
		exists, err := fileutil.FileExists(path)
		if err != nil {
			return "", &core.ConfigurationError{Reason: "voices directory", Err: err}
		}

		if !exists {
			return "", &core.ValidationError{Field: "voice", Reason: fmt.Sprintf(errFmtNotListed, name, r.dir)}
		}
	}

	return modelPath, nil
}

func (r *Registry) readDirMessage(err error) string {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf(msgDirNotFound, r.dir)
	}

	return fmt.Sprintf(msgDirUnreadable, r.dir)
}

func (r *Registry) warn(message string, err error) *core.Notice {
	notice := core.NewWarning(message, err)
	r.log.Warn("%s", notice.Message)

	return &notice
}
