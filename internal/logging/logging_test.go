package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/kitchencam/internal/layout"
)

func TestFileWriterLineFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(NewLogger(FileWriter(&buf)), "capture")

	logger.Info().Int("segment", 0).Msg("segment started")

	line := buf.String()
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} - capture - INFO - segment started`), line)
	assert.Contains(t, line, "segment=0")
	assert.NotContains(t, line, "component=")
}

func TestFileWriterDefaultComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(FileWriter(&buf))

	logger.Warn().Msg("no component")

	assert.Contains(t, buf.String(), " - dataGather - WARN - no component")
}

func TestInitWritesDailyLogFile(t *testing.T) {
	root := t.TempDir()
	day := time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)

	logger, closer, err := Init(Options{Root: root, Day: day})
	require.NoError(t, err)

	logger.Debug().Msg("hidden at info level")
	sweepLogger := WithComponent(logger, "sweep")
	sweepLogger.Info().Msg("visible")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(root, layout.LogsDirName, "20240101", "data_gather_20240101.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), " - sweep - INFO - visible")
	assert.Contains(t, string(data), "run_id=")
	assert.NotContains(t, string(data), "hidden at info level")
}

func TestInitDebugEchoesToConsole(t *testing.T) {
	var console bytes.Buffer

	logger, closer, err := Init(Options{Root: t.TempDir(), Debug: true, Console: &console})
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug().Msg("echoed")
	assert.Contains(t, console.String(), "echoed")
}

func TestInitAppends(t *testing.T) {
	root := t.TempDir()
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.Local)

	for _, msg := range []string{"first", "second"} {
		logger, closer, err := Init(Options{Root: root, Day: day})
		require.NoError(t, err)
		logger.Info().Msg(msg)
		require.NoError(t, closer.Close())
	}

	data, err := os.ReadFile(layout.LogFile(root, "20240102"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")
	assert.Contains(t, string(data), "second")
}
