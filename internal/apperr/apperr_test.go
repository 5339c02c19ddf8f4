package apperr

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"configuration", Configuration("parse flags", errors.New("bad recipe")), ExitConfiguration},
		{"filesystem", Filesystem("list", "/tmp/x", os.ErrPermission), ExitPartial},
		{"hardware", Hardware("capture still", "a.jpg", errors.New("timeout")), ExitPartial},
		{"transcode", Transcode("transcode", "a.h264", errors.New("exit status 1")), ExitPartial},
		{"plain", errors.New("boom"), ExitPartial},
		{"wrapped configuration", fmt.Errorf("load: %w", Configuration("validate", errors.New("x"))), ExitConfiguration},
		{"joined with configuration", errors.Join(Hardware("open", "", errors.New("busy")), Configuration("validate", errors.New("x"))), ExitConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestKindOfJoined(t *testing.T) {
	err := errors.Join(
		Transcode("transcode", "a.h264", errors.New("exit status 1")),
		StreamDecode("read frame", "b.mp4", errors.New("truncated")),
	)

	assert.Equal(t, KindTranscode, KindOf(err))
	assert.True(t, Is(err, KindStreamDecode))
	assert.False(t, Is(err, KindHardware))
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	err := Filesystem("list directory", "/data/videos", os.ErrNotExist)

	assert.Equal(t, `list directory "/data/videos": file does not exist`, err.Error())
	assert.ErrorIs(t, err, os.ErrNotExist)

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "filesystem", e.Kind.String())
}
