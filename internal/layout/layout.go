package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/keagan/kitchencam/internal/apperr"
)

// Directory and extension conventions shared by every component.
const (
	RawVideoDirName        = "videos"
	CompressedVideoDirName = "compressed_videos"
	StillsDirName          = "stills"
	LogsDirName            = "logs"

	RawVideoExt        = ".h264"
	CompressedVideoExt = ".mp4"
	StillExt           = ".jpg"

	DateLayout = "20060102"
)

// ImageExts are the extensions that count as an already populated stills directory.
var ImageExts = []string{".jpg", ".jpeg", ".png"}

// Format selects what a capture run produces.
type Format string

const (
	FormatVideo  Format = "v"
	FormatStills Format = "s"
)

// ParseFormat accepts the CLI spellings of a capture format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "v", "video":
		return FormatVideo, nil
	case "s", "stills":
		return FormatStills, nil
	default:
		return "", fmt.Errorf("unknown format %q (want v or s)", s)
	}
}

func (f Format) String() string {
	if f == FormatStills {
		return "stills"
	}
	return "video"
}

// RunContext describes one capture invocation. It is built once and not mutated.
type RunContext struct {
	DateStamp       string
	Recipe          string
	Format          Format
	DurationSeconds int
}

// NewRunContext validates and builds a RunContext for the given day.
func NewRunContext(day time.Time, recipe string, format Format, durationSeconds int) (RunContext, error) {
	if strings.TrimSpace(recipe) == "" {
		return RunContext{}, apperr.Configuration("build run context", fmt.Errorf("recipe is required"))
	}
	if durationSeconds < 0 {
		return RunContext{}, apperr.Configuration("build run context", fmt.Errorf("duration must be >= 0, got %d", durationSeconds))
	}
	return RunContext{
		DateStamp:       DateStamp(day),
		Recipe:          recipe,
		Format:          format,
		DurationSeconds: durationSeconds,
	}, nil
}

// DateStamp formats day as YYYYMMDD.
func DateStamp(day time.Time) string {
	return day.Format(DateLayout)
}

// OutputDirs are the per-date output directories.
type OutputDirs struct {
	RawVideo        string
	CompressedVideo string
	Stills          string
}

// DirsFor derives the output directories for dateStamp under root.
func DirsFor(root, dateStamp string) OutputDirs {
	day := filepath.Join(root, dateStamp)
	return OutputDirs{
		RawVideo:        filepath.Join(day, RawVideoDirName),
		CompressedVideo: filepath.Join(day, CompressedVideoDirName),
		Stills:          filepath.Join(day, StillsDirName),
	}
}

// All returns the directories in creation order.
func (d OutputDirs) All() []string {
	return []string{d.RawVideo, d.CompressedVideo, d.Stills}
}

// Ensure creates every output directory with mkdir -p semantics.
func (d OutputDirs) Ensure() error {
	for _, dir := range d.All() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.Filesystem("create output directory", dir, err)
		}
	}
	return nil
}

// LogFile returns <root>/logs/<date>/data_gather_<date>.log.
func LogFile(root, dateStamp string) string {
	return filepath.Join(root, LogsDirName, dateStamp, "data_gather_"+dateStamp+".log")
}

// SequencedFile names one numbered output of a recipe run.
type SequencedFile struct {
	Recipe    string
	DateStamp string
	Index     int
	Ext       string
}

// Base is the file name without extension.
func (f SequencedFile) Base() string {
	return f.Recipe + "_" + f.DateStamp + "_" + strconv.Itoa(f.Index)
}

// Name is the full file name.
func (f SequencedFile) Name() string {
	return f.Base() + f.Ext
}

// StillName names the still taken elapsed seconds into the segment.
func (f SequencedFile) StillName(elapsed int) string {
	return f.Base() + "_" + strconv.Itoa(elapsed) + StillExt
}

// Template returns the naming function used by the sequence allocator.
func Template(recipe, dateStamp, ext string) func(int) string {
	return func(i int) string {
		return SequencedFile{Recipe: recipe, DateStamp: dateStamp, Index: i, Ext: ext}.Name()
	}
}

// StillsDirFor maps a compressed-video directory to its sibling stills
// directory by replacing every compressed_videos path segment. It is the
// only place that derives the mapping.
func StillsDirFor(compressedDir string) string {
	clean := filepath.Clean(compressedDir)
	sep := string(filepath.Separator)
	parts := strings.Split(clean, sep)
	for i, p := range parts {
		if p == CompressedVideoDirName {
			parts[i] = StillsDirName
		}
	}
	return strings.Join(parts, sep)
}

// HasCompressedSegment reports whether path contains the compressed_videos segment.
func HasCompressedSegment(path string) bool {
	for _, p := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if p == CompressedVideoDirName {
			return true
		}
	}
	return false
}

// CompressedName maps a raw video file name to its compressed counterpart.
func CompressedName(rawName string) string {
	if HasExt(rawName, RawVideoExt) {
		rawName = rawName[:len(rawName)-len(RawVideoExt)]
	}
	return rawName + CompressedVideoExt
}

// SampledName names the still taken at intervalIndex from video.
func SampledName(videoName string, intervalIndex int) string {
	return strings.TrimSuffix(videoName, filepath.Ext(videoName)) + "_" + strconv.Itoa(intervalIndex) + StillExt
}

// HasExt reports whether name ends with one of exts, ignoring case.
func HasExt(name string, exts ...string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
