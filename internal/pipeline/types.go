package pipeline

import (
	"github.com/keagan/kitchencam/internal/camera"
	"github.com/keagan/kitchencam/internal/capture"
	"github.com/keagan/kitchencam/internal/dirindex"
	"github.com/keagan/kitchencam/internal/layout"
	"github.com/keagan/kitchencam/internal/sampler"
	"github.com/keagan/kitchencam/internal/transcode"
)

// Deps are the collaborators a pipeline drives. Nil fields are built from
// the configuration by New.
type Deps struct {
	Camera     camera.Opener
	Transcoder transcode.Transcoder
	Source     sampler.Source
	Writer     sampler.ImageWriter
	Index      dirindex.Index
	// Sleep paces capture stills; nil uses the wall clock.
	Sleep capture.SleepFunc
}

// CaptureResult reports a capture run.
type CaptureResult struct {
	Dirs    layout.OutputDirs
	Session *capture.Report
	// Sweep is nil when no transcode sweep ran.
	Sweep *transcode.Result
}

// ExtractResult reports a stills extraction run.
type ExtractResult struct {
	// Compressed is nil when the source directory was absent.
	Compressed *transcode.Result
	Dirs       []DirSample
}

// DirSample is the sampling outcome for one compressed-video directory.
type DirSample struct {
	CompressedDir string
	StillsDir     string
	Result        *sampler.Result
}

// Written counts stills written across all directories.
func (r *ExtractResult) Written() int {
	n := 0
	for _, d := range r.Dirs {
		if d.Result != nil {
			n += d.Result.Written()
		}
	}
	return n
}
