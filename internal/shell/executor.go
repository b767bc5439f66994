package shell

import (
	"context"
	"errors"
	"log"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"siecore/apps/console/internal/domain"
)

const (
	DefaultTimeout = 60 * time.Second
	MaxOutputBytes = 64 * 1024

	ExitCodeSpawnFailure = -1
	ExitCodeTimeout      = 124
	ExitCodeBlocked      = 126

	waitDelay = 2 * time.Second
)

var (
	ErrCommandMissing      = errors.New("shell_command_missing")
	ErrExecutorUnavailable = errors.New("shell_executor_unavailable")
)

type Options struct {
	Root      string
	Timeout   time.Duration
	Allowlist []string
}

// Executor runs operator or AI-suggested commands with the project root as
// working directory. Failures are reported in-band through the result.
type Executor struct {
	root     string
	timeout  time.Duration
	guard    *Guard
	goos     string
	lookPath func(file string) (string, error)
}

func New(opts Options) *Executor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		root:     opts.Root,
		timeout:  timeout,
		guard:    NewGuard(opts.Allowlist),
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
	}
}

func (e *Executor) Run(ctx context.Context, command string) domain.ShellResult {
	command = strings.TrimSpace(command)
	result := domain.ShellResult{Command: command}
	if command == "" {
		result.ExitCode = ExitCodeSpawnFailure
		result.Error = ErrCommandMissing.Error()
		return result
	}
	if reason := e.guard.Check(command); reason != "" {
		log.Printf("shell command refused command=%q reason=%q", command, reason)
		result.ExitCode = ExitCodeBlocked
		result.Error = reason
		result.Blocked = true
		return result
	}

	program, baseArgs, err := resolveShellExecutor(e.goos, e.lookPath)
	if err != nil {
		result.ExitCode = ExitCodeSpawnFailure
		result.Error = err.Error()
		return result
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := append(append([]string{}, baseArgs...), command)
	cmd := exec.CommandContext(runCtx, program, args...)
	cmd.Dir = e.root
	cmd.WaitDelay = waitDelay
	stdout := &cappedBuffer{limit: MaxOutputBytes}
	stderr := &cappedBuffer{limit: MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now()
	runErr := cmd.Run()
	result.Output = stdout.String()
	result.Error = stderr.String()

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			result.ExitCode = ExitCodeTimeout
			result.Error = appendLine(result.Error, "command timed out after "+e.timeout.String())
		case errors.As(runErr, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			result.ExitCode = ExitCodeSpawnFailure
			result.Error = appendLine(result.Error, runErr.Error())
		}
	}
	log.Printf("shell command finished command=%q exit_code=%d duration=%s", command, result.ExitCode, time.Since(started).Round(time.Millisecond))
	return result
}

func appendLine(existing, line string) string {
	if strings.TrimSpace(existing) == "" {
		return line
	}
	return strings.TrimRight(existing, "\n") + "\n" + line
}

// cappedBuffer keeps the first limit bytes and drops the rest.
type cappedBuffer struct {
	limit     int
	buf       []byte
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - len(b.buf)
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return string(b.buf) + "\n... (output truncated)"
	}
	return string(b.buf)
}

func resolveShellExecutor(goos string, lookPath func(file string) (string, error)) (string, []string, error) {
	if strings.EqualFold(strings.TrimSpace(goos), "windows") {
		if hasExecutable(lookPath, "powershell", "powershell.exe") {
			return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command"}, nil
		}
		if hasExecutable(lookPath, "cmd", "cmd.exe") {
			return "cmd", []string{"/C"}, nil
		}
		return "", nil, ErrExecutorUnavailable
	}

	if hasExecutable(lookPath, "sh") {
		return "sh", []string{"-c"}, nil
	}
	if hasExecutable(lookPath, "bash") {
		return "bash", []string{"-c"}, nil
	}
	return "", nil, ErrExecutorUnavailable
}

func hasExecutable(lookPath func(file string) (string, error), candidates ...string) bool {
	for _, name := range candidates {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if _, err := lookPath(name); err == nil {
			return true
		}
	}
	return false
}
