package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
)

// ErrCorruptStream marks a decode that ended somewhere other than a clean
// end of stream.
var ErrCorruptStream = errors.New("corrupt video stream")

// FrameStream yields decoded frames of one video in order.
type FrameStream struct {
	path   string
	info   *VideoInfo
	proc   *Process
	frame  []byte
	done   bool
	closed bool
}

// OpenFrames probes path and starts decoding it to raw RGBA frames.
func (e *Executor) OpenFrames(ctx context.Context, path string) (*FrameStream, error) {
	info, err := e.ProbeVideo(ctx, path)
	if err != nil {
		return nil, err
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: %s reports %dx%d", ErrCorruptStream, path, info.Width, info.Height)
	}

	e.logger.Debug().EmbedObject(info).Msg("decoding video")

	proc, err := e.Start(ctx, RunOptions{
		Args:          decodeArgs(path),
		CaptureStdout: true,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("decode output")
		},
	})
	if err != nil {
		return nil, err
	}

	return &FrameStream{
		path:  path,
		info:  info,
		proc:  proc,
		frame: make([]byte, info.Width*info.Height*4),
	}, nil
}

func decodeArgs(path string) []string {
	return []string{
		"-i", path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		// one output frame per decoded frame, even for variable frame rate input
		"-fps_mode", "passthrough",
		"pipe:1",
	}
}

// FPS is the stream's nominal frame rate.
func (s *FrameStream) FPS() float64 {
	return s.info.FPS
}

// Next returns the next frame. It returns io.EOF once ffmpeg has delivered
// every frame and exited cleanly, and an error wrapping ErrCorruptStream
// for a truncated frame or a failed decode.
func (s *FrameStream) Next() (image.Image, error) {
	if s.done {
		return nil, io.EOF
	}

	_, err := io.ReadFull(s.proc.Stdout(), s.frame)
	switch {
	case err == nil:
		img := &image.RGBA{
			Pix:    make([]byte, len(s.frame)),
			Stride: s.info.Width * 4,
			Rect:   image.Rect(0, 0, s.info.Width, s.info.Height),
		}
		copy(img.Pix, s.frame)
		return img, nil
	case errors.Is(err, io.EOF):
		s.done = true
		if werr := s.proc.Wait(); werr != nil {
			if errors.Is(werr, context.Canceled) {
				return nil, werr
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStream, s.path, werr)
		}
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		s.proc.Kill()
		return nil, fmt.Errorf("%w: %s: truncated frame", ErrCorruptStream, s.path)
	default:
		s.done = true
		s.proc.Kill()
		return nil, fmt.Errorf("read frame from %s: %w", s.path, err)
	}
}

// Close stops decoding and releases the process.
func (s *FrameStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.done {
		s.done = true
		s.proc.Kill()
	}
	return nil
}
