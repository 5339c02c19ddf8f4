package transcode

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/kitchencam/internal/apperr"
	"github.com/keagan/kitchencam/internal/dirindex"
	"github.com/keagan/kitchencam/internal/layout"
	"github.com/keagan/kitchencam/internal/metrics"
	"github.com/keagan/kitchencam/pkg/util"
)

// Transcoder converts one raw video into a compressed one, blocking until
// done.
type Transcoder interface {
	Transcode(ctx context.Context, input, output string) error
}

// Sweeper compresses every raw video that has no compressed counterpart.
type Sweeper struct {
	logger     zerolog.Logger
	transcoder Transcoder
	index      dirindex.Index
	metrics    *metrics.Recorder
}

// Result lists what a sweep did, by raw file name.
type Result struct {
	OutputDir string
	Converted []string
	Skipped   []string
	Failed    []string
}

// New creates a sweeper. rec may be nil.
func New(logger zerolog.Logger, tr Transcoder, idx dirindex.Index, rec *metrics.Recorder) *Sweeper {
	return &Sweeper{
		logger:     logger.With().Str("component", "compress").Logger(),
		transcoder: tr,
		index:      idx,
		metrics:    rec,
	}
}

// Sweep transcodes each .h264 in rawDir into compressedDir unless the .mp4
// is already there. The compressed listing is taken once up front. A failed
// transcode leaves no output behind and does not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context, rawDir, compressedDir string) (*Result, error) {
	done, err := s.index.Files(compressedDir, layout.CompressedVideoExt)
	if err != nil {
		return nil, err
	}
	existing := dirindex.Set(done)

	raw, err := s.index.Files(rawDir, layout.RawVideoExt)
	if err != nil {
		return nil, err
	}

	result := &Result{OutputDir: compressedDir}
	var errs []error

	for _, name := range raw {
		if ctx.Err() != nil {
			break
		}

		outName := layout.CompressedName(name)
		if _, ok := existing[outName]; ok {
			s.logger.Info().Msgf("Skipping %s - already compressed", name)
			result.Skipped = append(result.Skipped, name)
			s.metrics.Transcode(metrics.ResultSkipped)
			continue
		}

		input := filepath.Join(rawDir, name)
		output := filepath.Join(compressedDir, outName)

		if err := s.transcodeOne(ctx, input, output); err != nil {
			result.Failed = append(result.Failed, name)
			s.metrics.Transcode(metrics.ResultFailed)
			errs = append(errs, err)
			continue
		}

		result.Converted = append(result.Converted, name)
		s.metrics.Transcode(metrics.ResultOK)
	}

	if cerr := ctx.Err(); cerr != nil {
		errs = append(errs, cerr)
	}

	s.logger.Info().
		Str("raw_dir", rawDir).
		Int("converted", len(result.Converted)).
		Int("skipped", len(result.Skipped)).
		Int("failed", len(result.Failed)).
		Msg("sweep complete")

	return result, errors.Join(errs...)
}

func (s *Sweeper) transcodeOne(ctx context.Context, input, output string) error {
	s.logger.Info().Str("input", input).Str("output", output).Msg("compressing")
	start := time.Now()

	if err := s.transcoder.Transcode(ctx, input, output); err != nil {
		if rmErr := util.RemoveIfExists(output); rmErr != nil {
			s.logger.Error().Err(rmErr).Str("output", output).Msg("failed to remove partial output")
			err = errors.Join(err, rmErr)
		}
		terr := apperr.Transcode("transcode", input, err)
		s.logger.Error().Err(terr).Str("output", output).Msg("compression failed")
		return terr
	}

	s.logger.Info().
		Str("output", output).
		Str("took", util.FormatDuration(time.Since(start))).
		Msg("compression complete")
	return nil
}

// SweepSibling compresses a standalone raw directory into the
// compressed_videos directory next to it, creating that directory first.
func (s *Sweeper) SweepSibling(ctx context.Context, inputDir string) (*Result, error) {
	out := SiblingDir(inputDir)
	if err := util.EnsureDir(out); err != nil {
		return nil, apperr.Filesystem("create compressed directory", out, err)
	}
	return s.Sweep(ctx, inputDir, out)
}

// SiblingDir is <parent of inputDir>/compressed_videos.
func SiblingDir(inputDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(inputDir)), layout.CompressedVideoDirName)
}
