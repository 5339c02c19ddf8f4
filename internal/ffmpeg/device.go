package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
)

// StartRecording begins recording the device to opts.Output and refreshing
// opts.Latest once per second. Stop the returned process to finish the
// segment.
func (e *Executor) StartRecording(ctx context.Context, opts RecordOptions) (*Process, error) {
	if opts.Output == "" {
		return nil, fmt.Errorf("output path is required")
	}

	e.logger.Debug().
		Str("device", opts.Device).
		Str("output", opts.Output).
		Int("bitrate", opts.Bitrate).
		Msg("starting recording")

	return e.Start(ctx, RunOptions{
		Args: recordArgs(opts),
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("record output")
		},
	})
}

// CaptureFrame grabs a single frame from the device into output.
func (e *Executor) CaptureFrame(ctx context.Context, opts DeviceOptions, output string, qscale int) error {
	args := inputArgs(opts)
	args = append(args, "-frames:v", "1")
	args = append(args, stillArgs(qscale)...)
	args = append(args, output)

	if err := e.Run(ctx, RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("still output")
		},
	}); err != nil {
		return fmt.Errorf("frame capture failed: %w", err)
	}
	return nil
}

func inputArgs(opts DeviceOptions) []string {
	var args []string
	if opts.InputFormat != "" {
		args = append(args, "-f", opts.InputFormat)
	}
	if opts.FrameRate > 0 {
		args = append(args, "-framerate", strconv.FormatFloat(opts.FrameRate, 'f', -1, 64))
	}
	if opts.Width > 0 && opts.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", opts.Width, opts.Height))
	}
	return append(args, "-i", opts.Device)
}

func stillArgs(qscale int) []string {
	if qscale <= 0 {
		qscale = DefaultStillQScale
	}
	return []string{"-q:v", strconv.Itoa(qscale), "-update", "1"}
}

func recordArgs(opts RecordOptions) []string {
	args := inputArgs(opts.DeviceOptions)

	args = append(args, "-map", "0:v", "-c:v", DefaultVideoCodec)
	if opts.Bitrate > 0 {
		args = append(args, "-b:v", strconv.Itoa(opts.Bitrate))
	}
	args = append(args, "-f", "h264", opts.Output)

	if opts.Latest != "" {
		filter := NewFilterBuilder().FPS(1).Build()
		args = append(args, "-map", "0:v", "-vf", filter)
		args = append(args, stillArgs(opts.StillQScale)...)
		// readers copy the file while ffmpeg keeps replacing it
		args = append(args, "-atomic_writing", "1", opts.Latest)
	}
	return args
}
