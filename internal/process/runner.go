package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// maxCapturedOutput bounds how much of each stream is kept per command.
const maxCapturedOutput = 64 * 1024

// defaultGracefulTimeout is how long a cancelled command gets between
// SIGTERM and SIGKILL.
const defaultGracefulTimeout = 3 * time.Second

// ErrEmptyBinary is returned when a Command has no binary.
var ErrEmptyBinary = errors.New("process: binary is required")

// Command describes one external program invocation.
type Command struct {
	// Name is a human-readable identifier for logging (e.g. "arecord").
	Name string

	// Binary is the executable name or path.
	Binary string

	// Args are passed verbatim; no shell is involved.
	Args []string

	// Timeout bounds the run. Zero means only ctx bounds it.
	Timeout time.Duration

	// Dir is the working directory. Empty inherits the parent's.
	Dir string
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Runner executes short-lived external programs: audio capture, still
// capture and video encoding.
//
// Each command runs in its own process group so cancellation reaches any
// children it spawns (ffmpeg can fork helpers).
type Runner struct {
	logger          Logger
	gracefulTimeout time.Duration
}

// NewRunner creates a Runner. A nil logger discards output.
func NewRunner(logger Logger) *Runner {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Runner{logger: logger, gracefulTimeout: defaultGracefulTimeout}
}

// Run starts the command and waits for it to exit.
//
// Parameters:
//   - ctx: Cancelling ctx sends SIGTERM to the process group, then SIGKILL
//     after a short grace period
//   - c: The command to run
//
// Returns:
//   - Result: Captured stdout/stderr (truncated) and wall time
//   - error: Non-nil if the program could not start, exited non-zero, or
//     was cancelled; the stderr tail is included in the message
func (r *Runner) Run(ctx context.Context, c Command) (Result, error) {
	if c.Binary == "" {
		return Result{}, ErrEmptyBinary
	}
	name := c.Name
	if name == "" {
		name = c.Binary
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Binary, c.Args...) //nolint:gosec // Binaries come from config, not requests
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = r.gracefulTimeout
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}

	stdout := &limitedBuffer{limit: maxCapturedOutput}
	stderr := &limitedBuffer{limit: maxCapturedOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Debug("running command", "name", name, "binary", c.Binary, "args", c.Args)

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if res.Stderr != "" {
		r.logger.Debug("command output", "name", name, "stream", "stderr", "output", res.Stderr)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("%s: %w", name, ctxErr)
		}
		if tail := lastLine(res.Stderr); tail != "" {
			return res, fmt.Errorf("%s: %w: %s", name, err, tail)
		}
		return res, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

// limitedBuffer keeps the first limit bytes written and discards the rest.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
