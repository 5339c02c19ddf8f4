package sampler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/keagan/kitchencam/internal/apperr"
	"github.com/keagan/kitchencam/internal/dirindex"
	"github.com/keagan/kitchencam/internal/ffmpeg"
	"github.com/keagan/kitchencam/internal/layout"
	"github.com/keagan/kitchencam/internal/metrics"
)

// ErrStillsDirMissing is returned when the target stills directory has not
// been created. The sampler never creates it.
var ErrStillsDirMissing = errors.New("stills directory does not exist")

// Stream yields the frames of one video. Next returns io.EOF at a clean end
// of stream; any other error means the stream is unreadable from there on.
type Stream interface {
	FPS() float64
	Next() (image.Image, error)
	Close() error
}

// Source opens video streams.
type Source interface {
	Open(ctx context.Context, path string) (Stream, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, path string) (Stream, error)

func (f SourceFunc) Open(ctx context.Context, path string) (Stream, error) {
	return f(ctx, path)
}

// FFmpegSource decodes videos through ffmpeg.
func FFmpegSource(e *ffmpeg.Executor) Source {
	return SourceFunc(func(ctx context.Context, path string) (Stream, error) {
		s, err := e.OpenFrames(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// ImageWriter persists one sampled frame.
type ImageWriter interface {
	WriteFile(path string, img image.Image) error
}

// Sampler writes one still per fixed interval of each compressed video.
type Sampler struct {
	logger  zerolog.Logger
	source  Source
	writer  ImageWriter
	index   dirindex.Index
	metrics *metrics.Recorder
}

// Result describes one Sample call.
type Result struct {
	// Skipped is set when the stills directory already held images.
	Skipped bool
	Videos  []VideoResult
}

// Written counts stills written across all videos.
func (r *Result) Written() int {
	n := 0
	for _, v := range r.Videos {
		n += len(v.Written)
	}
	return n
}

// VideoResult is the outcome for one video.
type VideoResult struct {
	Video   string
	Frames  int
	Written []string
	Err     error
}

// New creates a sampler. rec may be nil.
func New(logger zerolog.Logger, src Source, w ImageWriter, idx dirindex.Index, rec *metrics.Recorder) *Sampler {
	return &Sampler{
		logger:  logger.With().Str("component", "stills").Logger(),
		source:  src,
		writer:  w,
		index:   idx,
		metrics: rec,
	}
}

// Sample walks every .mp4 in compressedDir and writes the frames whose index
// is a multiple of fps*intervalSeconds into stillsDir, named after the video
// and floor(index/fps). A stills directory that already holds images is
// skipped whole. intervalSeconds below one means one second.
//
// A corrupt video is reported and sampling moves on to the next one; the
// stills already written for it are kept.
func (s *Sampler) Sample(ctx context.Context, compressedDir, stillsDir string, intervalSeconds int) (*Result, error) {
	if intervalSeconds < 1 {
		intervalSeconds = 1
	}

	exists, err := s.index.Exists(stillsDir)
	if err != nil {
		return nil, err
	}
	if !exists {
		s.logger.Error().Str("dir", stillsDir).Msg("stills directory does not exist")
		return nil, apperr.Filesystem("sample", stillsDir, ErrStillsDirMissing)
	}

	images, err := s.index.Files(stillsDir, layout.ImageExts...)
	if err != nil {
		return nil, err
	}
	if len(images) > 0 {
		s.logger.Warn().
			Str("dir", stillsDir).
			Int("images", len(images)).
			Msg("stills directory already has images, skipping")
		return &Result{Skipped: true}, nil
	}

	videos, err := s.index.Files(compressedDir, layout.CompressedVideoExt)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var errs []error
	for _, name := range videos {
		if ctx.Err() != nil {
			break
		}

		vr := s.sampleVideo(ctx, filepath.Join(compressedDir, name), stillsDir, intervalSeconds)
		result.Videos = append(result.Videos, vr)

		if vr.Err != nil {
			s.metrics.VideoSampled(metrics.ResultFailed)
			s.logger.Error().
				Err(vr.Err).
				Str("video", vr.Video).
				Int("frames", vr.Frames).
				Int("written", len(vr.Written)).
				Msg("sampling failed")
			errs = append(errs, vr.Err)
			continue
		}

		s.metrics.VideoSampled(metrics.ResultOK)
		s.logger.Info().
			Str("video", vr.Video).
			Int("frames", vr.Frames).
			Int("written", len(vr.Written)).
			Msg("video sampled")
	}

	if cerr := ctx.Err(); cerr != nil && !errors.Is(errors.Join(errs...), cerr) {
		errs = append(errs, cerr)
	}
	return result, errors.Join(errs...)
}

func (s *Sampler) sampleVideo(ctx context.Context, path, stillsDir string, intervalSeconds int) (vr VideoResult) {
	vr.Video = path

	stream, err := s.source.Open(ctx, path)
	if err != nil {
		vr.Err = apperr.StreamDecode("open video", path, err)
		return vr
	}
	defer func() {
		if err := stream.Close(); err != nil {
			s.logger.Warn().Err(err).Str("video", path).Msg("failed to close stream")
		}
	}()

	fps := int(stream.FPS())
	if fps <= 0 {
		vr.Err = apperr.StreamDecode("read frame rate", path, fmt.Errorf("frame rate %v is below 1", stream.FPS()))
		return vr
	}
	step := fps * intervalSeconds
	base := filepath.Base(path)

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			vr.Err = err
			return vr
		}

		img, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return vr
		}
		if err != nil {
			vr.Err = apperr.StreamDecode("read frame", path, err)
			return vr
		}
		vr.Frames++

		if index%step != 0 {
			continue
		}

		out := filepath.Join(stillsDir, layout.SampledName(base, index/fps))
		if err := s.writer.WriteFile(out, img); err != nil {
			vr.Err = apperr.Filesystem("write still", out, err)
			return vr
		}
		vr.Written = append(vr.Written, out)
		s.metrics.FrameSampled()
		s.logger.Debug().Str("path", out).Int("frame", index).Msg("still written")
	}
}
