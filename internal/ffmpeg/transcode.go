package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
)

// Transcoder converts raw camera streams into compressed video with a
// fixed set of encoder options.
type Transcoder struct {
	exec *Executor
	opts TranscodeOptions
}

// NewTranscoder binds encoder options to an executor.
func (e *Executor) NewTranscoder(opts TranscodeOptions) *Transcoder {
	return &Transcoder{exec: e, opts: opts}
}

// Transcode blocks until output is fully written. A non-zero ffmpeg exit
// is returned as an error; cleaning up a partial output is left to the
// caller.
func (t *Transcoder) Transcode(ctx context.Context, input, output string) error {
	if input == "" || output == "" {
		return fmt.Errorf("input and output paths are required")
	}

	t.exec.logger.Debug().
		Str("input", input).
		Str("output", output).
		Msg("transcoding")

	runOpts := RunOptions{
		Args:            transcodeArgs(input, output, t.opts),
		ProgressHandler: t.opts.ProgressFunc,
		LogHandler: func(line string) {
			t.exec.logger.Trace().Str("ffmpeg", line).Msg("transcode output")
		},
	}

	if err := t.exec.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("transcode failed: %w", err)
	}
	return nil
}

func transcodeArgs(input, output string, opts TranscodeOptions) []string {
	var args []string
	if opts.InputFrameRate > 0 {
		args = append(args, "-framerate", strconv.FormatFloat(opts.InputFrameRate, 'f', -1, 64))
	}
	args = append(args, "-i", input)

	// Video codec settings
	videoCodec := opts.VideoCodec
	if videoCodec == "" {
		videoCodec = DefaultVideoCodec
	}
	args = append(args, "-c:v", videoCodec)

	// Audio codec settings
	audioCodec := opts.AudioCodec
	if audioCodec == "" {
		audioCodec = DefaultAudioCodec
	}
	args = append(args, "-c:a", audioCodec)

	// Quality settings
	crf := opts.CRF
	if crf == 0 {
		crf = DefaultCRF
	}
	args = append(args, "-crf", strconv.Itoa(crf))

	if opts.Preset != "" {
		args = append(args, "-preset", opts.Preset)
	}

	return append(args, output)
}
