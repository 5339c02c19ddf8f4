package capture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/kitchencam/internal/apperr"
	"github.com/keagan/kitchencam/internal/camera"
	"github.com/keagan/kitchencam/internal/dirindex"
	"github.com/keagan/kitchencam/internal/layout"
	"github.com/keagan/kitchencam/internal/metrics"
	"github.com/keagan/kitchencam/internal/sequence"
)

// Options configures a capture session.
type Options struct {
	Dirs           layout.OutputDirs
	SegmentSeconds int
	FrameRate      float64
	Bitrate        int
	// Sleep paces the stills; nil waits on the wall clock.
	Sleep SleepFunc
}

// SleepFunc pauses between stills. It returns early with ctx's error.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Session records one recipe run.
type Session struct {
	logger  zerolog.Logger
	camera  camera.Opener
	index   dirindex.Index
	metrics *metrics.Recorder
	opts    Options
	sleep   SleepFunc
}

// Report summarises a session.
type Report struct {
	Format     layout.Format
	StartIndex int
	Segments   []SegmentResult
}

// SegmentResult is the outcome of one segment (video) or one still (stills).
type SegmentResult struct {
	Index  int
	Path   string
	Stills int
	Err    error
}

// Failed counts segments that ended with an error.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Segments {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Stills counts every still written during the session.
func (r *Report) Stills() int {
	n := 0
	for _, s := range r.Segments {
		n += s.Stills
	}
	return n
}

// New creates a session. rec may be nil.
func New(logger zerolog.Logger, cam camera.Opener, idx dirindex.Index, rec *metrics.Recorder, opts Options) *Session {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Session{
		logger:  logger.With().Str("component", "capture").Logger(),
		camera:  cam,
		index:   idx,
		metrics: rec,
		opts:    opts,
		sleep:   sleep,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run captures rc.DurationSeconds of material. Per-segment camera failures
// are logged and the session moves on; they come back joined in the error
// alongside a complete report. Failing to list the output directory aborts
// before anything is captured.
func (s *Session) Run(ctx context.Context, rc layout.RunContext) (*Report, error) {
	switch rc.Format {
	case layout.FormatVideo:
		if s.opts.SegmentSeconds <= 0 {
			return nil, apperr.Configuration("capture", fmt.Errorf("segment length must be positive, got %d", s.opts.SegmentSeconds))
		}
		return s.runVideo(ctx, rc)
	case layout.FormatStills:
		return s.runStills(ctx, rc)
	default:
		return nil, apperr.Configuration("capture", fmt.Errorf("unknown format %q", rc.Format))
	}
}

func (s *Session) runVideo(ctx context.Context, rc layout.RunContext) (*Report, error) {
	template := layout.Template(rc.Recipe, rc.DateStamp, layout.RawVideoExt)
	start, err := sequence.Allocate(s.index, s.opts.Dirs.RawVideo, template)
	if err != nil {
		return nil, err
	}

	segments := rc.DurationSeconds / s.opts.SegmentSeconds
	report := &Report{Format: rc.Format, StartIndex: start}

	s.logger.Info().
		Str("recipe", rc.Recipe).
		Int("segments", segments).
		Int("segment_seconds", s.opts.SegmentSeconds).
		Int("start_index", start).
		Msg("starting video capture")

	var errs []error
	for i := 0; i < segments; i++ {
		if ctx.Err() != nil {
			break
		}

		file := layout.SequencedFile{Recipe: rc.Recipe, DateStamp: rc.DateStamp, Index: start + i, Ext: layout.RawVideoExt}
		res := s.recordSegment(ctx, file)
		report.Segments = append(report.Segments, res)

		if res.Err != nil {
			s.metrics.Segment(rc.Format.String(), metrics.ResultFailed)
			s.logger.Error().
				Err(res.Err).
				Str("recipe", rc.Recipe).
				Int("index", res.Index).
				Str("path", res.Path).
				Int("stills", res.Stills).
				Msg("segment failed")
			errs = append(errs, res.Err)
			continue
		}

		s.metrics.Segment(rc.Format.String(), metrics.ResultOK)
		s.logger.Info().
			Str("path", res.Path).
			Int("stills", res.Stills).
			Msg("segment complete")
	}

	return report, joinWithCancel(ctx, errs)
}

// joinWithCancel adds the context error unless a segment already reported it.
func joinWithCancel(ctx context.Context, errs []error) error {
	err := errors.Join(errs...)
	if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		err = errors.Join(err, cerr)
	}
	return err
}

// recordSegment owns the camera for one segment and always releases it.
func (s *Session) recordSegment(ctx context.Context, file layout.SequencedFile) (res SegmentResult) {
	res = SegmentResult{
		Index: file.Index,
		Path:  filepath.Join(s.opts.Dirs.RawVideo, file.Name()),
	}

	cam, err := s.camera.Open(ctx)
	if err != nil {
		res.Err = apperr.Hardware("open camera", res.Path, err)
		return res
	}
	defer func() {
		if err := cam.Close(); err != nil {
			res.Err = errors.Join(res.Err, apperr.Hardware("close camera", res.Path, err))
		}
	}()

	if err := cam.Configure(s.opts.FrameRate, s.opts.Bitrate); err != nil {
		res.Err = apperr.Hardware("configure camera", res.Path, err)
		return res
	}
	if err := cam.StartRecording(ctx, res.Path); err != nil {
		res.Err = apperr.Hardware("start recording", res.Path, err)
		return res
	}

	s.logger.Info().Str("path", res.Path).Msg("recording segment")

	var loopErr error
	for elapsed := 0; elapsed < s.opts.SegmentSeconds; elapsed++ {
		still := filepath.Join(s.opts.Dirs.Stills, file.StillName(elapsed))
		if err := cam.CaptureStill(ctx, still); err != nil {
			loopErr = apperr.Hardware("capture still", still, err)
			break
		}
		res.Stills++
		s.metrics.StillCaptured()
		s.logger.Debug().Str("path", still).Msg("still captured")

		if err := s.sleep(ctx, time.Second); err != nil {
			loopErr = err
			break
		}
	}

	if err := cam.StopRecording(); err != nil {
		loopErr = errors.Join(loopErr, apperr.Hardware("stop recording", res.Path, err))
	}
	res.Err = loopErr
	return res
}

func (s *Session) runStills(ctx context.Context, rc layout.RunContext) (*Report, error) {
	template := layout.Template(rc.Recipe, rc.DateStamp, layout.StillExt)
	start, err := sequence.Allocate(s.index, s.opts.Dirs.Stills, template)
	if err != nil {
		return nil, err
	}

	report := &Report{Format: rc.Format, StartIndex: start}

	s.logger.Info().
		Str("recipe", rc.Recipe).
		Int("stills", rc.DurationSeconds).
		Int("start_index", start).
		Msg("starting stills capture")

	var errs []error
	for i := 0; i < rc.DurationSeconds; i++ {
		if ctx.Err() != nil {
			break
		}

		file := layout.SequencedFile{Recipe: rc.Recipe, DateStamp: rc.DateStamp, Index: start + i, Ext: layout.StillExt}
		res := s.captureOne(ctx, file)
		report.Segments = append(report.Segments, res)

		if res.Err != nil {
			s.metrics.Segment(rc.Format.String(), metrics.ResultFailed)
			s.logger.Error().
				Err(res.Err).
				Str("recipe", rc.Recipe).
				Int("index", res.Index).
				Str("path", res.Path).
				Msg("still failed")
			errs = append(errs, res.Err)
		} else {
			s.metrics.Segment(rc.Format.String(), metrics.ResultOK)
			s.metrics.StillCaptured()
			s.logger.Debug().Str("path", res.Path).Msg("still captured")
		}

		if s.sleep(ctx, time.Second) != nil {
			break
		}
	}

	return report, joinWithCancel(ctx, errs)
}

func (s *Session) captureOne(ctx context.Context, file layout.SequencedFile) (res SegmentResult) {
	res = SegmentResult{
		Index: file.Index,
		Path:  filepath.Join(s.opts.Dirs.Stills, file.Name()),
	}

	cam, err := s.camera.Open(ctx)
	if err != nil {
		res.Err = apperr.Hardware("open camera", res.Path, err)
		return res
	}
	defer func() {
		if err := cam.Close(); err != nil {
			res.Err = errors.Join(res.Err, apperr.Hardware("close camera", res.Path, err))
		}
	}()

	if err := cam.CaptureStill(ctx, res.Path); err != nil {
		res.Err = apperr.Hardware("capture still", res.Path, err)
		return res
	}
	res.Stills = 1
	return res
}
