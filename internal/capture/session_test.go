package capture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/kitchencam/internal/apperr"
	"github.com/keagan/kitchencam/internal/camera"
	"github.com/keagan/kitchencam/internal/dirindex"
	"github.com/keagan/kitchencam/internal/layout"
	"github.com/keagan/kitchencam/internal/metrics"
)

var day = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

// fakeBackend hands out fakeCams and keeps them for inspection.
type fakeBackend struct {
	cams []*fakeCam
	// failStart makes StartRecording fail for the nth opened camera (0-based).
	failStart map[int]bool
	failStill map[int]bool
	openErr   error
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Open(ctx context.Context) (camera.Camera, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	n := len(b.cams)
	c := &fakeCam{failStart: b.failStart[n], failStill: b.failStill[n]}
	b.cams = append(b.cams, c)
	return c, nil
}

func (b *fakeBackend) stills() []string {
	var all []string
	for _, c := range b.cams {
		all = append(all, c.stills...)
	}
	return all
}

type fakeCam struct {
	frameRate float64
	bitrate   int
	recording []string
	stills    []string
	stopped   int
	closed    bool
	active    bool

	failStart bool
	failStill bool
}

func (c *fakeCam) Configure(frameRate float64, bitrate int) error {
	c.frameRate, c.bitrate = frameRate, bitrate
	return nil
}

func (c *fakeCam) StartRecording(ctx context.Context, path string) error {
	if c.failStart {
		return errors.New("device unplugged")
	}
	c.recording = append(c.recording, path)
	c.active = true
	return nil
}

func (c *fakeCam) CaptureStill(ctx context.Context, path string) error {
	if c.failStill {
		return errors.New("frame grab timed out")
	}
	c.stills = append(c.stills, path)
	return nil
}

func (c *fakeCam) StopRecording() error {
	if !c.active {
		return camera.ErrNotRecording
	}
	c.active = false
	c.stopped++
	return nil
}

func (c *fakeCam) Close() error {
	c.closed = true
	return nil
}

type fixture struct {
	backend *fakeBackend
	index   *dirindex.Mem
	dirs    layout.OutputDirs
	session *Session
	sleeps  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: &fakeBackend{},
		index:   dirindex.NewMem(),
		dirs:    layout.DirsFor("/rig", "20240101"),
	}
	for _, d := range f.dirs.All() {
		f.index.AddDir(d)
	}
	f.session = New(zerolog.Nop(), camera.NewDevice(f.backend), f.index, metrics.New(), Options{
		Dirs:           f.dirs,
		SegmentSeconds: 60,
		FrameRate:      25,
		Bitrate:        10000000,
	})
	f.session.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps++
		return ctx.Err()
	}
	return f
}

func runContext(t *testing.T, recipe string, format layout.Format, seconds int) layout.RunContext {
	t.Helper()
	rc, err := layout.NewRunContext(day, recipe, format, seconds)
	require.NoError(t, err)
	return rc
}

func TestVideoSessionTwoSegments(t *testing.T) {
	f := newFixture(t)

	report, err := f.session.Run(context.Background(), runContext(t, "bean_soup", layout.FormatVideo, 120))
	require.NoError(t, err)

	require.Len(t, report.Segments, 2)
	assert.Equal(t, 0, report.StartIndex)
	assert.Equal(t, filepath.Join(f.dirs.RawVideo, "bean_soup_20240101_0.h264"), report.Segments[0].Path)
	assert.Equal(t, filepath.Join(f.dirs.RawVideo, "bean_soup_20240101_1.h264"), report.Segments[1].Path)
	assert.Equal(t, 120, report.Stills())
	assert.Equal(t, 0, report.Failed())

	stills := f.backend.stills()
	require.Len(t, stills, 120)
	assert.Equal(t, filepath.Join(f.dirs.Stills, "bean_soup_20240101_0_0.jpg"), stills[0])
	assert.Equal(t, filepath.Join(f.dirs.Stills, "bean_soup_20240101_0_59.jpg"), stills[59])
	assert.Equal(t, filepath.Join(f.dirs.Stills, "bean_soup_20240101_1_0.jpg"), stills[60])
	assert.Equal(t, filepath.Join(f.dirs.Stills, "bean_soup_20240101_1_59.jpg"), stills[119])
	assert.Equal(t, 120, f.sleeps)

	// one camera per segment, configured, stopped and released
	require.Len(t, f.backend.cams, 2)
	for _, c := range f.backend.cams {
		assert.Equal(t, 25.0, c.frameRate)
		assert.Equal(t, 10000000, c.bitrate)
		assert.Equal(t, 1, c.stopped)
		assert.True(t, c.closed)
	}
}

func TestVideoSessionContinuesSequence(t *testing.T) {
	f := newFixture(t)
	f.index.Add(f.dirs.RawVideo, "x_20240101_0.h264", "x_20240101_1.h264")

	report, err := f.session.Run(context.Background(), runContext(t, "x", layout.FormatVideo, 60))
	require.NoError(t, err)

	assert.Equal(t, 2, report.StartIndex)
	require.Len(t, report.Segments, 1)
	assert.Equal(t, filepath.Join(f.dirs.RawVideo, "x_20240101_2.h264"), report.Segments[0].Path)
}

func TestVideoSessionPartialSegmentDropped(t *testing.T) {
	f := newFixture(t)

	report, err := f.session.Run(context.Background(), runContext(t, "bean_soup", layout.FormatVideo, 90))
	require.NoError(t, err)
	assert.Len(t, report.Segments, 1)

	report, err = f.session.Run(context.Background(), runContext(t, "bean_soup", layout.FormatVideo, 59))
	require.NoError(t, err)
	assert.Empty(t, report.Segments)
}

func TestVideoSessionHardwareFailureContinues(t *testing.T) {
	f := newFixture(t)
	f.backend.failStart = map[int]bool{0: true}

	report, err := f.session.Run(context.Background(), runContext(t, "bean_soup", layout.FormatVideo, 120))
	require.Error(t, err)

	assert.True(t, apperr.Is(err, apperr.KindHardware))
	assert.Equal(t, apperr.ExitPartial, apperr.ExitCode(err))

	require.Len(t, report.Segments, 2)
	assert.Error(t, report.Segments[0].Err)
	assert.NoError(t, report.Segments[1].Err)
	assert.Equal(t, 60, report.Stills())

	// the failed segment still released the camera, so the next one could open it
	require.Len(t, f.backend.cams, 2)
	assert.True(t, f.backend.cams[0].closed)
}

func TestVideoSessionStillFailureStopsRecording(t *testing.T) {
	f := newFixture(t)
	f.backend.failStill = map[int]bool{0: true}

	report, err := f.session.Run(context.Background(), runContext(t, "bean_soup", layout.FormatVideo, 60))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindHardware))

	cam := f.backend.cams[0]
	assert.Equal(t, 1, cam.stopped)
	assert.True(t, cam.closed)
	assert.Equal(t, 0, report.Stills())
}

func TestVideoSessionOpenFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.openErr = errors.New("no such device")

	report, err := f.session.Run(context.Background(), runContext(t, "bean_soup", layout.FormatVideo, 120))
	require.Error(t, err)
	assert.Equal(t, 2, report.Failed())
	assert.True(t, apperr.Is(err, apperr.KindHardware))
}

func TestSessionListingFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.index = dirindex.NewMem()
	f.session.index = f.index

	report, err := f.session.Run(context.Background(), runContext(t, "bean_soup", layout.FormatVideo, 120))
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, apperr.Is(err, apperr.KindFilesystem))
	assert.Empty(t, f.backend.cams)
}

func TestVideoSessionCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.session.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps++
		if f.sleeps == 10 {
			cancel()
		}
		return ctx.Err()
	}

	report, err := f.session.Run(ctx, runContext(t, "bean_soup", layout.FormatVideo, 120))
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, report.Segments, 1)
	assert.Equal(t, 10, report.Stills())
	cam := f.backend.cams[0]
	assert.Equal(t, 1, cam.stopped)
	assert.True(t, cam.closed)
}

func TestStillsSession(t *testing.T) {
	f := newFixture(t)
	f.index.Add(f.dirs.Stills, "chicken_teriyaki_20240101_0.jpg")

	report, err := f.session.Run(context.Background(), runContext(t, "chicken_teriyaki", layout.FormatStills, 3))
	require.NoError(t, err)

	assert.Equal(t, 1, report.StartIndex)
	require.Len(t, report.Segments, 3)
	for i, seg := range report.Segments {
		assert.Equal(t, filepath.Join(f.dirs.Stills, fmt.Sprintf("chicken_teriyaki_20240101_%d.jpg", i+1)), seg.Path)
	}
	// a fresh handle per still
	require.Len(t, f.backend.cams, 3)
	for _, c := range f.backend.cams {
		assert.Len(t, c.stills, 1)
		assert.Empty(t, c.recording)
		assert.True(t, c.closed)
	}
	assert.Equal(t, 3, f.sleeps)
}

func TestStillsSessionFailureContinues(t *testing.T) {
	f := newFixture(t)
	f.backend.failStill = map[int]bool{1: true}

	report, err := f.session.Run(context.Background(), runContext(t, "bean_soup", layout.FormatStills, 3))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindHardware))
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 2, report.Stills())
}

func TestSessionRejectsZeroSegment(t *testing.T) {
	f := newFixture(t)
	f.session.opts.SegmentSeconds = 0

	_, err := f.session.Run(context.Background(), runContext(t, "bean_soup", layout.FormatVideo, 120))
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}
