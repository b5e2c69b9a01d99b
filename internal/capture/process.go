// Package capture runs and supervises ffmpeg processes that pull a camera's
// RTSP stream into a clip or a single still frame.
package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/logger"
	"github.com/reowatch/reowatch/internal/privacy"
)

// DefaultFfmpegPath is used when Config.FfmpegPath is empty
const DefaultFfmpegPath = "ffmpeg"

// waitDelay bounds how long Wait keeps draining stderr after the process
// exited, in case a grandchild still holds the pipe open
const waitDelay = time.Second

// Config describes one capture process.
type Config struct {
	FfmpegPath string
	URL        string
	Output     string
	Mode       Mode
}

// GetLogger returns the capture module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("capture")
}

// Process is a handle to one running ffmpeg instance. All methods are safe
// for concurrent use.
type Process struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stderr    *tailBuffer
	done      chan struct{}
	startedAt time.Time
	mode      Mode
	safeURL   string

	mu       sync.Mutex
	exitCode int
	waitErr  error

	closeOnce sync.Once
	closeErr  error
}

// Spawn starts ffmpeg for cfg. The process is not bound to ctx; ctx only
// aborts the spawn itself. Callers stop the process through the handle.
func Spawn(ctx context.Context, cfg Config) (*Process, error) {
	safeURL := privacy.SanitizeRTSPUrl(cfg.URL)

	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryCancellation).
			Context("operation", "spawn").
			Build()
	}
	if cfg.URL == "" || cfg.Output == "" {
		return nil, errors.Newf("capture requires both an input URL and an output path").
			Component("capture").
			Category(errors.CategoryValidation).
			Context("operation", "spawn").
			Context("mode", cfg.Mode.String()).
			Build()
	}

	ffmpegPath := cfg.FfmpegPath
	if ffmpegPath == "" {
		ffmpegPath = DefaultFfmpegPath
	}

	args := BuildArgs(cfg)
	cmd := exec.Command(ffmpegPath, args...) //nolint:gosec // G204: ffmpeg path from validated settings, args built internally
	setupProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	cmd.Stdout = nil

	stderr := newTailBuffer(stderrBufferSize)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to create stdin pipe: %w", err)).
			Component("capture").
			Category(errors.CategorySystem).
			Context("operation", "spawn").
			Context("url", safeURL).
			Build()
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, errors.New(fmt.Errorf("failed to start ffmpeg: %w", err)).
			Component("capture").
			Category(errors.CategoryCommandExecution).
			Context("operation", "spawn").
			Context("ffmpeg_path", ffmpegPath).
			Context("url", safeURL).
			Build()
	}

	p := &Process{
		cmd:       cmd,
		stdin:     stdin,
		stderr:    stderr,
		done:      make(chan struct{}),
		startedAt: time.Now(),
		mode:      cfg.Mode,
		safeURL:   safeURL,
		exitCode:  -1,
	}
	go p.wait()

	GetLogger().Debug("ffmpeg started",
		logger.Int("pid", cmd.Process.Pid),
		logger.String("mode", cfg.Mode.String()),
		logger.String("url", safeURL),
		logger.String("output", cfg.Output))

	return p, nil
}

// wait reaps the process and publishes its exit status
func (p *Process) wait() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.waitErr = err
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	p.mu.Unlock()

	close(p.done)
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// StartedAt returns when the process was spawned.
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// Done returns a channel that is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Alive reports whether the process is still running.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the process exits or timeout elapses. It reports
// whether the process exited.
func (p *Process) Wait(timeout time.Duration) bool {
	if !p.Alive() {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

// ExitCode returns the exit status. It is -1 while the process runs and
// when it was ended by a signal.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Err returns the error reported by the operating system when the process
// was reaped, or nil for a clean exit.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// StderrTail returns up to n of the last lines ffmpeg wrote to stderr.
func (p *Process) StderrTail(n int) []string {
	return p.stderr.Lines(n)
}

// RequestGracefulStop writes "q" to ffmpeg's stdin, which makes it flush
// and finalize the output file before exiting.
func (p *Process) RequestGracefulStop() error {
	if !p.Alive() {
		return nil
	}
	if _, err := io.WriteString(p.stdin, "q"); err != nil {
		return errors.New(fmt.Errorf("failed to send quit command: %w", err)).
			Component("capture").
			Category(errors.CategoryProcess).
			Context("operation", "graceful_stop").
			Context("pid", p.PID()).
			Build()
	}
	return nil
}

// Terminate sends SIGTERM to the process.
func (p *Process) Terminate() error {
	if !p.Alive() {
		return nil
	}
	if err := terminateProcess(p.cmd); err != nil {
		return errors.New(fmt.Errorf("failed to terminate ffmpeg: %w", err)).
			Component("capture").
			Category(errors.CategoryProcess).
			Context("operation", "terminate").
			Context("pid", p.PID()).
			Build()
	}
	return nil
}

// Kill sends SIGKILL to the whole process group.
func (p *Process) Kill() error {
	if !p.Alive() {
		return nil
	}
	if err := killProcessGroup(p.cmd); err != nil {
		return errors.New(fmt.Errorf("failed to kill ffmpeg process group: %w", err)).
			Component("capture").
			Category(errors.CategoryProcess).
			Context("operation", "kill").
			Context("pid", p.PID()).
			Build()
	}
	return nil
}

// Close releases the stdin pipe. Stdout and stderr are released by the
// runtime once the process has been reaped. Close is idempotent.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			p.closeErr = err
		}
	})
	return p.closeErr
}

// isProcessGone reports whether err means the process already exited
func isProcessGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
