// Package output manages the files a synthesis request leaves behind: unique
// names in the shared output directory, the optional compressed re-encode, and
// the cache-busting reference handed to the player.
package output

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/piper-studio/internal/core"
	"github.com/book-expert/piper-studio/internal/fileutil"
	"github.com/google/uuid"
)

const (
	baseNamePrefix  = "output_"
	timestampLayout = "20060102_150405"
	maxReserveTries = 8
	filePermissions = 0o600
)

// ErrNoFreeName is returned when every candidate name is already taken.
var ErrNoFreeName = errors.New("could not reserve a unique output file name")

// Namer hands out output paths. Names are output_<YYYYMMDD_HHMMSS>; when a name
// is taken a random suffix is appended, so concurrent requests within the same
// second never share a file.
type Namer struct {
	dir    string
	now    func() time.Time
	suffix func() string
}

// NewNamer creates a Namer for dir using the wall clock.
func NewNamer(dir string) *Namer {
	return &Namer{
		dir:    dir,
		now:    time.Now,
		suffix: shortUUID,
	}
}

// WithClock replaces the time source.
func (n *Namer) WithClock(now func() time.Time) *Namer {
	n.now = now

	return n
}

// WithSuffix replaces the generator of the disambiguating suffix used after a
// name collision.
func (n *Namer) WithSuffix(suffix func() string) *Namer {
	n.suffix = suffix

	return n
}

// BaseName returns the timestamped base name for t.
func BaseName(t time.Time) string {
	return baseNamePrefix + t.Format(timestampLayout)
}

// Reserve atomically creates an empty <base>.wav and returns its path. A base
// whose .mp3 sibling already exists is skipped as well.
func (n *Namer) Reserve() (string, error) {
	base := BaseName(n.now())

	for attempt := range maxReserveTries {
		name := base
		if attempt > 0 {
			name = base + "_" + n.suffix()
		}

		wavPath := filepath.Join(n.dir, name+core.FormatWAV.Extension())

		taken, err := fileutil.FileExists(fileutil.ReplaceExtension(wavPath, core.FormatMP3.Extension()))
		if err != nil {
			return "", err
		}

		if taken {
			continue
		}

		file, err := os.OpenFile(wavPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePermissions)
		if errors.Is(err, fs.ErrExist) {
			continue
		}

		if err != nil {
			return "", fmt.Errorf("failed to reserve output file %s: %w", wavPath, err)
		}

		closeErr := file.Close()
		if closeErr != nil {
			return "", fmt.Errorf("failed to close output file %s: %w", wavPath, closeErr)
		}

		return wavPath, nil
	}

	return "", fmt.Errorf("%w for %s in %s", ErrNoFreeName, base, n.dir)
}

// PlaybackReference appends a changing query suffix to path so that a browser
// player reloads the file. The result is for display only, never for file I/O.
func PlaybackReference(path string, now time.Time) string {
	seconds := float64(now.UnixNano()) / float64(time.Second)

	return path + "?v=" + strconv.FormatFloat(seconds, 'f', 6, 64)
}

// StripPlaybackReference recovers the file path from a playback reference.
func StripPlaybackReference(reference string) string {
	path, _, _ := strings.Cut(reference, "?v=")

	return path
}

func shortUUID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}
