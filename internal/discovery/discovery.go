// Package discovery finds the clips a batch run will render.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

var (
	ErrInputDirMissing = errors.New("input directory not found")
	ErrNoCandidates    = errors.New("no qualifying videos found")
)

// Candidate is a discovered input clip.
type Candidate struct {
	Path string // absolute
	Size int64
}

// Options controls which files qualify.
type Options struct {
	Extension string // case-sensitive, with leading dot
	MaxBytes  int64  // <= 0 disables the size ceiling
	Logger    *slog.Logger
}

// Discover lists the regular files directly inside dir whose extension equals
// opts.Extension and whose size is at most opts.MaxBytes. The returned paths
// are absolute; their order follows the directory listing and is not a
// contract. A missing dir yields ErrInputDirMissing and an empty result
// yields ErrNoCandidates.
func Discover(dir string, opts Options) ([]Candidate, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve input directory %s: %w", dir, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputDirMissing, abs)
		}
		return nil, fmt.Errorf("cannot stat input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInputDirMissing, abs)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot read input directory: %w", err)
	}

	var found []Candidate
	for _, e := range entries {
		// Hidden entries include macOS AppleDouble files (._clip.mov).
		if strings.HasPrefix(e.Name(), ".") || filepath.Ext(e.Name()) != opts.Extension {
			continue
		}

		path := filepath.Join(abs, e.Name())
		fi, err := os.Stat(path)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}

		if opts.MaxBytes > 0 && fi.Size() > opts.MaxBytes {
			if opts.Logger != nil {
				opts.Logger.Info("skipping oversized video",
					"file", e.Name(),
					"size", humanize.IBytes(uint64(fi.Size())),
					"limit", humanize.IBytes(uint64(opts.MaxBytes)),
				)
			}
			continue
		}

		found = append(found, Candidate{Path: path, Size: fi.Size()})
	}

	if len(found) == 0 {
		if opts.MaxBytes > 0 {
			return nil, fmt.Errorf("%w: no %s files of at most %s in %s",
				ErrNoCandidates, opts.Extension, humanize.IBytes(uint64(opts.MaxBytes)), abs)
		}
		return nil, fmt.Errorf("%w: no %s files in %s", ErrNoCandidates, opts.Extension, abs)
	}

	if opts.Logger != nil {
		opts.Logger.Info("found videos to process", "count", len(found), "input_dir", abs)
	}
	return found, nil
}

// Paths returns the candidate paths in order.
func Paths(cs []Candidate) []string {
	paths := make([]string, len(cs))
	for i, c := range cs {
		paths[i] = c.Path
	}
	return paths
}
