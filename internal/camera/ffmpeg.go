package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/kitchencam/internal/ffmpeg"
	"github.com/keagan/kitchencam/pkg/util"
)

const (
	stillPoll    = 50 * time.Millisecond
	stillTimeout = 3 * time.Second
)

// FFmpegBackend drives a V4L2 (or other ffmpeg input) device.
type FFmpegBackend struct {
	exec   *ffmpeg.Executor
	device ffmpeg.DeviceOptions
	qscale int
	logger zerolog.Logger
}

// NewFFmpegBackend builds a backend for the given device.
func NewFFmpegBackend(logger zerolog.Logger, exec *ffmpeg.Executor, device ffmpeg.DeviceOptions, stillQScale int) *FFmpegBackend {
	return &FFmpegBackend{
		exec:   exec,
		device: device,
		qscale: stillQScale,
		logger: logger.With().Str("component", "camera").Logger(),
	}
}

func (b *FFmpegBackend) Name() string {
	return "ffmpeg:" + b.device.Device
}

// Open checks the device node and prepares a scratch directory for the
// frame that stills are copied from while recording.
func (b *FFmpegBackend) Open(ctx context.Context) (Camera, error) {
	if b.device.Device == "" {
		return nil, errors.New("no capture device configured")
	}
	if filepath.IsAbs(b.device.Device) && !util.FileExists(b.device.Device) {
		return nil, fmt.Errorf("capture device %s not found", b.device.Device)
	}

	scratch, err := os.MkdirTemp("", "kitchencam-cam-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	return &ffmpegCamera{
		backend: b,
		device:  b.device,
		scratch: scratch,
	}, nil
}

type ffmpegCamera struct {
	backend *FFmpegBackend
	device  ffmpeg.DeviceOptions
	bitrate int
	scratch string

	recording *ffmpeg.Process
	latest    string
}

func (c *ffmpegCamera) Configure(frameRate float64, bitrate int) error {
	if frameRate <= 0 {
		return fmt.Errorf("invalid frame rate %v", frameRate)
	}
	if c.recording != nil {
		return errors.New("cannot configure while recording")
	}
	c.device.FrameRate = frameRate
	c.bitrate = bitrate
	return nil
}

func (c *ffmpegCamera) StartRecording(ctx context.Context, path string) error {
	if c.recording != nil {
		return errors.New("already recording")
	}

	latest := filepath.Join(c.scratch, "latest.jpg")
	_ = util.RemoveIfExists(latest)

	proc, err := c.backend.exec.StartRecording(ctx, ffmpeg.RecordOptions{
		DeviceOptions: c.device,
		Bitrate:       c.bitrate,
		Output:        path,
		Latest:        latest,
		StillQScale:   c.backend.qscale,
	})
	if err != nil {
		return err
	}
	c.recording = proc
	c.latest = latest
	return nil
}

func (c *ffmpegCamera) CaptureStill(ctx context.Context, path string) error {
	if c.recording == nil {
		return c.backend.exec.CaptureFrame(ctx, c.device, path, c.backend.qscale)
	}

	// the first frame lands shortly after the device starts streaming
	deadline := time.Now().Add(stillTimeout)
	for !util.FileExists(c.latest) {
		if time.Now().After(deadline) {
			return fmt.Errorf("no frame from %s after %v", c.device.Device, stillTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stillPoll):
		}
	}
	return util.CopyFile(c.latest, path)
}

func (c *ffmpegCamera) StopRecording() error {
	if c.recording == nil {
		return ErrNotRecording
	}
	proc := c.recording
	c.recording = nil
	return proc.Stop()
}

func (c *ffmpegCamera) Close() error {
	var err error
	if c.recording != nil {
		err = c.StopRecording()
	}
	if rmErr := os.RemoveAll(c.scratch); rmErr != nil {
		c.backend.logger.Warn().Err(rmErr).Str("dir", c.scratch).Msg("failed to remove scratch dir")
	}
	return err
}
