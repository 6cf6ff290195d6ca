// Package runner executes the external crawler binary as a supervised
// subprocess. The crawler is a black box: the runner's job is to start it
// with a deadline, stream its combined output into the log, kill the whole
// process group if the deadline passes, and report how it ended.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// tailLines bounds how much subprocess output an Outcome retains for
// diagnostics.
const tailLines = 50

// Command describes one subprocess invocation.
type Command struct {
	Binary string
	Args   []string
	Dir    string
}

// Outcome reports how a subprocess run ended. A timeout is not an error:
// partial artifacts produced before the kill are still usable.
type Outcome struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
	Tail     []string
}

// Succeeded reports a clean zero-exit run.
func (o Outcome) Succeeded() bool { return !o.TimedOut && o.ExitCode == 0 }

// Runner abstracts subprocess execution so orchestration can be tested
// without spawning processes.
type Runner interface {
	Run(ctx context.Context, cmd Command, timeout time.Duration) (Outcome, error)
}

// Exec runs commands with os/exec, killing the subprocess's entire process
// group on timeout so the crawler's own children do not linger.
type Exec struct {
	logger *zap.Logger
}

// New constructs an Exec runner.
func New(logger *zap.Logger) *Exec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exec{logger: logger}
}

// Run starts the command and blocks until it exits or the timeout fires.
// Startup failures (binary missing, pipe errors) return an error; any run
// that actually started returns a nil error and an Outcome.
func (e *Exec) Run(ctx context.Context, c Command, timeout time.Duration) (Outcome, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Binary, c.Args...)
	cmd.Dir = c.Dir
	// New process group; Cancel kills the group, not just the leader.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("starting %s: %w", c.Binary, err)
	}
	e.logger.Info("crawler subprocess started",
		zap.String("binary", c.Binary),
		zap.Strings("args", c.Args),
		zap.Duration("timeout", timeout),
		zap.Int("pid", cmd.Process.Pid),
	)

	tail := make([]string, 0, tailLines)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		e.logger.Debug("crawler", zap.String("line", line))
		if len(tail) == tailLines {
			copy(tail, tail[1:])
			tail = tail[:tailLines-1]
		}
		tail = append(tail, line)
	}

	waitErr := cmd.Wait()
	outcome := Outcome{
		Duration: time.Since(start),
		Tail:     tail,
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		outcome.TimedOut = true
		outcome.ExitCode = -1
		e.logger.Warn("crawler subprocess killed on timeout",
			zap.Duration("after", outcome.Duration),
		)
	case waitErr == nil:
		e.logger.Info("crawler subprocess finished",
			zap.Duration("after", outcome.Duration),
		)
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
		} else {
			return outcome, fmt.Errorf("waiting for %s: %w", c.Binary, waitErr)
		}
		e.logger.Warn("crawler subprocess exited with failure",
			zap.Int("exit_code", outcome.ExitCode),
			zap.Duration("after", outcome.Duration),
		)
	}
	return outcome, nil
}
