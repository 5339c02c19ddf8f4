package mirror

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/keagan/kitchencam/internal/apperr"
	"github.com/keagan/kitchencam/internal/layout"
	"github.com/keagan/kitchencam/internal/metrics"
)

// Mirror creates a stills directory next to every compressed-video directory.
type Mirror struct {
	logger  zerolog.Logger
	metrics *metrics.Recorder
	marker  string
}

// New creates a mirror. marker names the file written into each new stills
// directory; empty writes none. rec may be nil.
func New(logger zerolog.Logger, rec *metrics.Recorder, marker string) *Mirror {
	return &Mirror{
		logger:  logger.With().Str("component", "mirror").Logger(),
		metrics: rec,
		marker:  marker,
	}
}

// Find walks root depth-first and returns, sorted, the directories strictly
// below it that sit under a compressed_videos segment and hold at least one
// .mp4.
func Find(root string) ([]string, error) {
	root = filepath.Clean(root)

	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if !layout.HasCompressedSegment(path) {
			return nil
		}

		has, err := hasVideo(path)
		if err != nil {
			return err
		}
		if has {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Filesystem("scan for compressed videos", root, err)
	}

	sort.Strings(dirs)
	return dirs, nil
}

func hasVideo(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Type().IsRegular() && layout.HasExt(e.Name(), layout.CompressedVideoExt) {
			return true, nil
		}
	}
	return false, nil
}

// Mirror ensures the stills directory for each compressed-video directory
// under root and returns the compressed-video directories. Existing stills
// directories are left untouched, so a second run creates nothing.
func (m *Mirror) Mirror(root string) ([]string, error) {
	dirs, err := Find(root)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, dir := range dirs {
		stills := layout.StillsDirFor(dir)

		if _, err := os.Stat(stills); err == nil {
			m.logger.Info().Str("dir", stills).Msg("already exists")
			m.metrics.MirrorDir(metrics.ResultSkipped)
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, apperr.Filesystem("stat stills directory", stills, err))
			m.metrics.MirrorDir(metrics.ResultFailed)
			continue
		}

		if err := m.create(stills); err != nil {
			m.logger.Error().Err(err).Str("dir", stills).Msg("failed to create stills directory")
			errs = append(errs, err)
			m.metrics.MirrorDir(metrics.ResultFailed)
			continue
		}
		m.logger.Info().Str("dir", stills).Str("source", dir).Msg("created stills directory")
		m.metrics.MirrorDir(metrics.ResultOK)
	}

	return dirs, errors.Join(errs...)
}

func (m *Mirror) create(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Filesystem("create stills directory", dir, err)
	}
	if m.marker == "" {
		return nil
	}
	marker := filepath.Join(dir, m.marker)
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return apperr.Filesystem("write marker", marker, err)
	}
	return nil
}
