package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keagan/kitchencam/internal/apperr"
	"github.com/keagan/kitchencam/internal/camera"
	"github.com/keagan/kitchencam/internal/capture"
	"github.com/keagan/kitchencam/internal/config"
	"github.com/keagan/kitchencam/internal/dirindex"
	"github.com/keagan/kitchencam/internal/ffmpeg"
	"github.com/keagan/kitchencam/internal/imaging"
	"github.com/keagan/kitchencam/internal/layout"
	"github.com/keagan/kitchencam/internal/logging"
	"github.com/keagan/kitchencam/internal/metrics"
	"github.com/keagan/kitchencam/internal/mirror"
	"github.com/keagan/kitchencam/internal/sampler"
	"github.com/keagan/kitchencam/internal/transcode"
	"github.com/keagan/kitchencam/pkg/util"
)

// Pipeline wires the components into the capture and extract workflows
type Pipeline struct {
	logger  zerolog.Logger
	config  *config.Config
	metrics *metrics.Recorder
	deps    Deps

	sweeper *transcode.Sweeper
	mirror  *mirror.Mirror
	sampler *sampler.Sampler

	// ffmpegReady reports whether the transcoder and frame source can run;
	// nil when they were injected.
	ffmpegReady func() error
}

// New creates a pipeline backed by ffmpeg and the configured camera. The
// ffmpeg executor is located up front only for the ffmpeg camera; otherwise
// it is looked up the first time an operation needs it.
func New(logger zerolog.Logger, appCfg *config.Config, rec *metrics.Recorder) (*Pipeline, error) {
	executor := lazyExecutor(logger, ffmpeg.Options{
		BinaryPath: appCfg.FFmpeg.BinaryPath,
		ProbePath:  appCfg.FFmpeg.ProbePath,
		Threads:    appCfg.FFmpeg.Threads,
	})

	deps := Deps{
		Transcoder: &ffmpegTranscoder{
			executor: executor,
			opts: ffmpeg.TranscodeOptions{
				VideoCodec:     appCfg.FFmpeg.VideoCodec,
				AudioCodec:     appCfg.FFmpeg.AudioCodec,
				CRF:            appCfg.FFmpeg.CRF,
				Preset:         appCfg.FFmpeg.Preset,
				InputFrameRate: appCfg.Capture.FrameRate,
				ProgressFunc:   transcodeProgress(logging.WithComponent(logger, "compress")),
			},
		},
		Source: sampler.SourceFunc(func(ctx context.Context, path string) (sampler.Stream, error) {
			e, err := executor()
			if err != nil {
				return nil, err
			}
			return sampler.FFmpegSource(e).Open(ctx, path)
		}),
	}

	switch appCfg.Camera.Backend {
	case "simulated":
		deps.Camera = camera.NewDevice(&camera.Simulated{
			Width:   appCfg.Camera.Width,
			Height:  appCfg.Camera.Height,
			Encoder: imaging.Encoder{Quality: appCfg.Extract.JPEGQuality},
		})
	default:
		ffmpegExec, err := executor()
		if err != nil {
			return nil, err
		}
		deps.Camera = camera.NewDevice(camera.NewFFmpegBackend(logger, ffmpegExec, ffmpeg.DeviceOptions{
			Device:      appCfg.Camera.Device,
			InputFormat: appCfg.Camera.InputFormat,
			Width:       appCfg.Camera.Width,
			Height:      appCfg.Camera.Height,
		}, appCfg.FFmpeg.StillQScale))
	}

	p := NewWithDeps(logger, appCfg, rec, deps)
	p.ffmpegReady = func() error {
		_, err := executor()
		return err
	}
	return p, nil
}

// lazyExecutor locates ffmpeg once, on first call. A missing binary is a
// configuration error.
func lazyExecutor(logger zerolog.Logger, opts ffmpeg.Options) func() (*ffmpeg.Executor, error) {
	var (
		once sync.Once
		e    *ffmpeg.Executor
		err  error
	)
	return func() (*ffmpeg.Executor, error) {
		once.Do(func() {
			e, err = ffmpeg.New(logger, opts)
			if err != nil {
				err = apperr.Configuration("initialize ffmpeg", err)
			}
		})
		return e, err
	}
}

type ffmpegTranscoder struct {
	executor func() (*ffmpeg.Executor, error)
	opts     ffmpeg.TranscodeOptions
}

func (t *ffmpegTranscoder) Transcode(ctx context.Context, input, output string) error {
	e, err := t.executor()
	if err != nil {
		return err
	}
	return e.NewTranscoder(t.opts).Transcode(ctx, input, output)
}

// transcodeProgress logs each ffmpeg progress block at debug level.
func transcodeProgress(logger zerolog.Logger) ffmpeg.ProgressFunc {
	return func(p *ffmpeg.Progress) {
		logger.Debug().EmbedObject(p).Msg("transcode progress")
	}
}

// needFFmpeg fails fast when an operation would reach a missing ffmpeg.
func (p *Pipeline) needFFmpeg() error {
	if p.ffmpegReady == nil {
		return nil
	}
	return p.ffmpegReady()
}

// NewWithDeps creates a pipeline around explicit collaborators.
func NewWithDeps(logger zerolog.Logger, appCfg *config.Config, rec *metrics.Recorder, deps Deps) *Pipeline {
	if deps.Index == nil {
		deps.Index = dirindex.OS{}
	}
	if deps.Writer == nil {
		deps.Writer = imaging.Encoder{
			Quality:  appCfg.Extract.JPEGQuality,
			MaxWidth: appCfg.Extract.MaxWidth,
		}
	}

	return &Pipeline{
		logger:  logging.WithComponent(logger, "pipeline"),
		config:  appCfg,
		metrics: rec,
		deps:    deps,
		sweeper: transcode.New(logger, deps.Transcoder, deps.Index, rec),
		mirror:  mirror.New(logger, rec, appCfg.Extract.MarkerFile),
		sampler: sampler.New(logger, deps.Source, deps.Writer, deps.Index, rec),
	}
}

// Capture records one recipe run into the dated output tree, then
// compresses the day's raw videos when configured to.
func (p *Pipeline) Capture(ctx context.Context, rc layout.RunContext) (*CaptureResult, error) {
	if !p.config.HasRecipe(rc.Recipe) {
		return nil, apperr.Configuration("capture", fmt.Errorf("unknown recipe %q (want one of %v)", rc.Recipe, p.config.Recipes))
	}
	if rc.Format == layout.FormatVideo && p.config.Capture.CompressAfter {
		if err := p.needFFmpeg(); err != nil {
			return nil, err
		}
	}

	dirs := layout.DirsFor(p.config.Root, rc.DateStamp)
	if err := dirs.Ensure(); err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("recipe", rc.Recipe).
		Str("format", rc.Format.String()).
		Int("duration_seconds", rc.DurationSeconds).
		Str("date", rc.DateStamp).
		Msg("capture arguments")
	p.logger.Debug().
		Str("raw", dirs.RawVideo).
		Str("compressed", dirs.CompressedVideo).
		Str("stills", dirs.Stills).
		Msg("output directories")

	session := capture.New(p.logger, p.deps.Camera, p.deps.Index, p.metrics, capture.Options{
		Dirs:           dirs,
		SegmentSeconds: p.config.Capture.SegmentSeconds,
		FrameRate:      p.config.Capture.FrameRate,
		Bitrate:        p.config.Capture.Bitrate,
		Sleep:          p.deps.Sleep,
	})

	report, err := session.Run(ctx, rc)
	result := &CaptureResult{Dirs: dirs, Session: report}
	if report == nil {
		return result, err
	}
	errs := []error{err}

	if rc.Format == layout.FormatVideo && p.config.Capture.CompressAfter && ctx.Err() == nil {
		sweep, serr := p.sweeper.Sweep(ctx, dirs.RawVideo, dirs.CompressedVideo)
		result.Sweep = sweep
		errs = append(errs, serr)
	}

	p.logger.Info().
		Str("recipe", rc.Recipe).
		Int("segments", len(report.Segments)).
		Int("failed", report.Failed()).
		Int("stills", report.Stills()).
		Msg("capture finished")

	return result, errors.Join(errs...)
}

// Compress sweeps rawDir into compressedDir.
func (p *Pipeline) Compress(ctx context.Context, rawDir, compressedDir string) (*transcode.Result, error) {
	if err := p.needFFmpeg(); err != nil {
		return nil, err
	}
	return p.sweeper.Sweep(ctx, rawDir, compressedDir)
}

// CompressSibling sweeps a standalone raw directory into the
// compressed_videos directory next to it.
func (p *Pipeline) CompressSibling(ctx context.Context, inputDir string) (*transcode.Result, error) {
	if err := p.needFFmpeg(); err != nil {
		return nil, err
	}
	return p.sweeper.SweepSibling(ctx, inputDir)
}

// Extract compresses the configured source directory when it exists, then
// mirrors stills directories under the extract root and samples each one.
func (p *Pipeline) Extract(ctx context.Context) (*ExtractResult, error) {
	if err := p.needFFmpeg(); err != nil {
		return nil, err
	}

	result := &ExtractResult{}
	var errs []error

	if src := p.config.Extract.SourceDir; src != "" && util.DirExists(src) {
		p.logger.Info().Str("dir", src).Msg("compressing source directory")
		res, err := p.sweeper.SweepSibling(ctx, src)
		result.Compressed = res
		errs = append(errs, err)
	} else if src != "" {
		p.logger.Debug().Str("dir", src).Msg("source directory absent, nothing to compress")
	}

	dirs, err := p.mirror.Mirror(p.config.Extract.Root)
	errs = append(errs, err)

	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		stills := layout.StillsDirFor(dir)
		res, err := p.sampler.Sample(ctx, dir, stills, p.config.Extract.IntervalSeconds)
		result.Dirs = append(result.Dirs, DirSample{CompressedDir: dir, StillsDir: stills, Result: res})
		errs = append(errs, err)
	}

	if cerr := ctx.Err(); cerr != nil {
		errs = append(errs, cerr)
	}

	p.logger.Info().
		Int("directories", len(result.Dirs)).
		Int("stills", result.Written()).
		Msg("extraction finished")

	return result, errors.Join(errs...)
}
