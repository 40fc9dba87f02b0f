package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sameehj/vaultd/pkg/pathguard"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxOutput = 100000
)

// ErrEmptyCommand is returned when Run is called without a command line.
var ErrEmptyCommand = errors.New("command is required")

// SafeExecutor runs shell command lines with their working directory pinned to
// a vault. It bounds wall-clock time and captured output, and kills the whole
// process group on timeout or cancellation.
//
// The working directory is the only confinement. Commands can still address
// absolute paths or ".." and reach files outside the vault.
type SafeExecutor struct {
	// Roots are the canonical directories a working directory must live under.
	Roots     []string
	Timeout   time.Duration
	MaxOutput int
	// Shell overrides the interpreter, "sh" by default.
	Shell string
	// PassEnv lists extra environment variables forwarded to commands.
	PassEnv []string

	logger *slog.Logger
}

// SetLogger attaches a logger for spawn and timeout events.
func (e *SafeExecutor) SetLogger(logger *slog.Logger) {
	e.logger = logger
}

// Run executes commandLine through the shell inside dir. Non-zero exits,
// timeouts, truncation and spawn failures are reported in the Result; an
// error is returned only for rejected input, a dir outside every root, or
// cancellation of ctx by the caller.
func (e *SafeExecutor) Run(ctx context.Context, dir, commandLine string) (*Result, error) {
	if strings.TrimSpace(commandLine) == "" {
		return nil, ErrEmptyCommand
	}
	workDir, err := pathguard.EnsureWithin(e.Roots, dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(workDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", pathguard.ErrOutsideRoot, dir)
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxOutput := e.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	command := e.shellCommand(runCtx, commandLine)
	command.Dir = workDir
	command.Env = commandEnv(workDir, e.PassEnv)
	command.Stdin = nil
	setupProcessGroup(command)

	stdoutBuf := newLimitedBuffer(maxOutput)
	stderrBuf := newLimitedBuffer(maxOutput)
	command.Stdout = stdoutBuf
	command.Stderr = stderrBuf

	start := time.Now()
	err = command.Run()
	duration := time.Since(start)
	// Background children outlive the shell; they must not outlive the request.
	killProcessGroup(command)

	stdout, outTrunc := stdoutBuf.Text()
	stderr, errTrunc := stderrBuf.Text()
	res := &Result{
		Stdout:    stdout,
		Stderr:    stderr,
		Truncated: outTrunc || errTrunc,
		Duration:  duration,
	}

	if ctx.Err() != nil {
		res.ExitCode = -1
		e.logWarn("command_cancelled", "dir", workDir, "duration", duration)
		return res, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.ExitCode = -1
		res.TimedOut = true
		e.logWarn("command_timed_out", "dir", workDir, "timeout", timeout)
		return res, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// The shell exited but a background child held the output pipes
		// past WaitDelay.
		if errors.Is(err, exec.ErrWaitDelay) && command.ProcessState != nil {
			res.ExitCode = command.ProcessState.ExitCode()
			e.logWarn("command_pipes_held", "dir", workDir, "exit_code", res.ExitCode)
			return res, nil
		}
		e.logError("command_spawn_failed", "dir", workDir, "error", err)
		res.ExitCode = -1
		res.SpawnError = "failed to start process"
		return res, nil
	}
	return res, nil
}

func (e *SafeExecutor) shellCommand(ctx context.Context, commandLine string) *exec.Cmd {
	if e.Shell != "" {
		return exec.CommandContext(ctx, e.Shell, "-c", commandLine)
	}
	base := ShellCommand(commandLine)
	return exec.CommandContext(ctx, base.Path, base.Args[1:]...)
}

// ShellCommand returns the platform shell invocation for command.
func ShellCommand(command string) *exec.Cmd {
	switch runtime.GOOS {
	case "windows":
		return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", command)
	default:
		return exec.Command("sh", "-c", command)
	}
}

func (e *SafeExecutor) logWarn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func (e *SafeExecutor) logError(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Error(msg, args...)
	}
}

// limitedBuffer keeps at most limit characters. It stores up to
// limit*utf8.UTFMax bytes, which always covers limit complete runes.
type limitedBuffer struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func newLimitedBuffer(chars int) *limitedBuffer {
	return &limitedBuffer{limit: chars}
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	byteLimit := l.limit * utf8.UTFMax
	remaining := byteLimit - l.buf.Len()
	if remaining <= 0 {
		if len(p) > 0 {
			l.overflow = true
		}
		return len(p), nil
	}
	if len(p) > remaining {
		l.overflow = true
		_, _ = l.buf.Write(p[:remaining])
		return len(p), nil
	}
	return l.buf.Write(p)
}

// Text returns the captured output as valid UTF-8 capped at limit runes and
// whether anything was dropped.
func (l *limitedBuffer) Text() (string, bool) {
	text := strings.ToValidUTF8(l.buf.String(), "\uFFFD")
	out, cut := truncateRunes(text, l.limit)
	return out, cut || l.overflow
}

func truncateRunes(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i], true
		}
		count++
	}
	return s, false
}

var _ io.Writer = (*limitedBuffer)(nil)
