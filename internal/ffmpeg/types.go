package ffmpeg

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	Frames     int64
	Bitrate    int64
	VideoCodec string
	HasAudio   bool
	AudioCodec string
}

// MarshalZerologObject logs the probe result as flat fields.
func (v *VideoInfo) MarshalZerologObject(e *zerolog.Event) {
	e.Str("path", v.FilePath).
		Dur("duration", v.Duration).
		Int64("frames", v.Frames).
		Float64("fps", v.FPS).
		Str("size", fmt.Sprintf("%dx%d", v.Width, v.Height)).
		Str("video_codec", v.VideoCodec).
		Int64("bitrate", v.Bitrate)
	if v.HasAudio {
		e.Str("audio_codec", v.AudioCodec)
	}
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
}

func (p *Progress) MarshalZerologObject(e *zerolog.Event) {
	e.Int("frame", p.Frame).
		Float64("fps", p.FPS).
		Str("bitrate", p.Bitrate).
		Str("time", p.Time).
		Str("speed", p.Speed)
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
	// CaptureStdout hands stdout to the caller through Process.Stdout
	// instead of logging it line by line.
	CaptureStdout bool
}

// Default encoding settings
const (
	DefaultCRF         = 20
	DefaultPreset      = "medium"
	DefaultVideoCodec  = "libx264"
	DefaultAudioCodec  = "copy"
	DefaultStillQScale = 2
)

// TranscodeOptions configures raw to compressed conversion.
type TranscodeOptions struct {
	VideoCodec string
	AudioCodec string
	CRF        int
	Preset     string
	// InputFrameRate is declared for raw elementary streams, which carry
	// no container timing. Zero leaves it to ffmpeg.
	InputFrameRate float64
	ProgressFunc   ProgressFunc
}

// DeviceOptions describes a capture device.
type DeviceOptions struct {
	Device      string
	InputFormat string
	Width       int
	Height      int
	FrameRate   float64
}

// RecordOptions configures a recording started on a capture device.
type RecordOptions struct {
	DeviceOptions
	Bitrate int
	// Output receives the raw h264 elementary stream.
	Output string
	// Latest is rewritten once per second with the newest frame.
	Latest      string
	StillQScale int
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called periodically with progress information as the operation executes.
type ProgressFunc func(*Progress)
