package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the top level can pick an exit code.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindFilesystem
	KindHardware
	KindTranscode
	KindStreamDecode
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindFilesystem:
		return "filesystem"
	case KindHardware:
		return "hardware"
	case KindTranscode:
		return "transcode"
	case KindStreamDecode:
		return "stream_decode"
	default:
		return "unknown"
	}
}

// Exit codes returned by the CLI.
const (
	ExitOK            = 0
	ExitPartial       = 1
	ExitConfiguration = 2
)

// Error is the typed error returned at component boundaries.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op, path string, err error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Configuration wraps err as a configuration failure (bad flags or config file).
func Configuration(op string, err error) error {
	return newError(KindConfiguration, op, "", err)
}

// Filesystem wraps err as a filesystem failure on path.
func Filesystem(op, path string, err error) error {
	return newError(KindFilesystem, op, path, err)
}

// Hardware wraps err as a camera failure.
func Hardware(op, path string, err error) error {
	return newError(KindHardware, op, path, err)
}

// Transcode wraps err as a transcoder failure for path.
func Transcode(op, path string, err error) error {
	return newError(KindTranscode, op, path, err)
}

// StreamDecode wraps err as a video read failure for path.
func StreamDecode(op, path string, err error) error {
	return newError(KindStreamDecode, op, path, err)
}

// KindOf returns the kind of the first *Error found in err's tree.
// Joined errors report the most severe kind they contain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		kind := KindUnknown
		for _, e := range joined.Unwrap() {
			if k := KindOf(e); k == KindConfiguration {
				return k
			} else if kind == KindUnknown {
				kind = k
			}
		}
		return kind
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether any error in err's tree carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if Is(e, kind) {
				return true
			}
		}
		return false
	}
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ExitCode maps err to the process exit code: 0 success, 2 configuration
// error, 1 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if KindOf(err) == KindConfiguration {
		return ExitConfiguration
	}
	return ExitPartial
}
