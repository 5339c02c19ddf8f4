package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const stopGrace = 5 * time.Second

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// Options locates the binaries. Empty paths are looked up in PATH.
type Options struct {
	BinaryPath string
	ProbePath  string
	Threads    int
}

// New creates a new ffmpeg executor
func New(logger zerolog.Logger, opts Options) (*Executor, error) {
	ffmpegPath, err := lookPath(opts.BinaryPath, "ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	ffprobePath, err := lookPath(opts.ProbePath, "ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     opts.Threads,
	}, nil
}

func lookPath(configured, fallback string) (string, error) {
	if configured == "" {
		configured = fallback
	}
	return exec.LookPath(configured)
}

// Run executes ffmpeg with the given arguments and streams progress
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	p, err := e.Start(ctx, opts)
	if err != nil {
		return err
	}
	return p.Wait()
}

// Start launches ffmpeg without waiting for it. The caller must end the
// process with Wait, Stop or Kill.
func (e *Executor) Start(ctx context.Context, opts RunOptions) (*Process, error) {
	if len(opts.Args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}

	// Build args with threads BEFORE other arguments
	baseArgs := []string{"-y", "-nostdin", "-hide_banner", "-loglevel", "info"}

	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", fmt.Sprintf("%d", e.threads))
	}

	baseArgs = append(baseArgs, "-progress", "pipe:2")
	args := append(baseArgs, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	// ffmpeg finalizes its outputs on SIGINT
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = stopGrace

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	p := &Process{ctx: ctx, cmd: cmd, logger: e.logger}

	// Stream stderr (progress + logs)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		e.streamOutput(stderr, opts.ProgressHandler, func(line string) {
			p.setLastLine(line)
			if opts.LogHandler != nil {
				opts.LogHandler(line)
			}
		})
	}()

	if opts.CaptureStdout {
		p.stdout = stdout
		return p, nil
	}

	// Stream stdout
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if opts.LogHandler != nil {
				opts.LogHandler(scanner.Text())
			}
		}
	}()

	return p, nil
}

// Process is a running ffmpeg invocation.
type Process struct {
	ctx    context.Context
	cmd    *exec.Cmd
	logger zerolog.Logger
	stdout io.ReadCloser
	wg     sync.WaitGroup

	mu       sync.Mutex
	lastLine string
	stopping bool

	waitOnce sync.Once
	waitErr  error
}

// Stdout is the raw output pipe, set only when RunOptions.CaptureStdout is
// true. It must be drained before Wait.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

func (p *Process) setLastLine(line string) {
	if strings.Contains(line, "=") && !strings.Contains(line, " ") {
		// -progress key=value lines carry no diagnostics
		return
	}
	p.mu.Lock()
	p.lastLine = line
	p.mu.Unlock()
}

// Wait blocks until ffmpeg exits. A non-zero exit is an error carrying the
// last diagnostic line, except after Stop where ffmpeg exits non-zero on
// the interrupt it was sent.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		p.wg.Wait()
		err := p.cmd.Wait()

		p.mu.Lock()
		stopping, last := p.stopping, p.lastLine
		p.mu.Unlock()

		switch {
		case err == nil:
			p.logger.Debug().Msg("ffmpeg execution completed")
		case errors.Is(p.ctx.Err(), context.Canceled):
			p.waitErr = p.ctx.Err()
		case stopping:
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				p.waitErr = fmt.Errorf("ffmpeg stop failed: %w", err)
			}
		default:
			if last != "" {
				p.waitErr = fmt.Errorf("ffmpeg execution failed: %w: %s", err, last)
			} else {
				p.waitErr = fmt.Errorf("ffmpeg execution failed: %w", err)
			}
		}
	})
	return p.waitErr
}

// Stop asks ffmpeg to finish its outputs and exit, then waits for it.
func (p *Process) Stop() error {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = p.cmd.Process.Kill()
	}
	return p.Wait()
}

// Kill terminates ffmpeg immediately and reaps it.
func (p *Process) Kill() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	_ = p.cmd.Process.Kill()
	if p.stdout != nil {
		_, _ = io.Copy(io.Discard, p.stdout)
	}
	_ = p.Wait()
}

// streamOutput parses ffmpeg output and calls handlers
func (e *Executor) streamOutput(r io.Reader, progressHandler func(*Progress), logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	progressData := &Progress{}

	for scanner.Scan() {
		line := scanner.Text()

		if logHandler != nil {
			logHandler(line)
		}

		// Parse progress lines
		if strings.HasPrefix(line, "frame=") {
			fmt.Sscanf(line, "frame=%d", &progressData.Frame)
		} else if strings.HasPrefix(line, "fps=") {
			fmt.Sscanf(line, "fps=%f", &progressData.FPS)
		} else if strings.HasPrefix(line, "bitrate=") {
			progressData.Bitrate = progressValue(line)
		} else if strings.HasPrefix(line, "out_time=") {
			progressData.Time = progressValue(line)
		} else if strings.HasPrefix(line, "speed=") {
			progressData.Speed = progressValue(line)
		} else if strings.HasPrefix(line, "progress=") {
			// End of progress block
			if progressHandler != nil && progressData.Frame > 0 {
				progressHandler(progressData)
			}
			progressData = &Progress{}
		}
	}
}

func progressValue(line string) string {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
