// Package harness runs exploit attempts in a sandboxed child process and
// reduces each run to a single immutable ExecutionResult. Exactly one
// result is produced per attempt: the process-exit path and the timeout
// path race, and the first to settle wins.
package harness

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"vulnforge/internal/logging"
	"vulnforge/internal/types"
)

const (
	// DefaultTimeout bounds one attempt's execution.
	DefaultTimeout = 60 * time.Second
	// DefaultGrace is how long the watchdog waits after a polite
	// termination signal before force-killing the process group.
	DefaultGrace = 5 * time.Second
	// DefaultMaxOutput caps captured output. The tail is kept: failures
	// report at the end of a test run.
	DefaultMaxOutput = 256 * 1024
)

// Config parameterizes a Sandbox.
type Config struct {
	// Command is the harness invocation. A "{file}" placeholder is
	// replaced by the attempt artifact path; without one the path is
	// appended as the final argument.
	Command   []string
	WorkDir   string
	Timeout   time.Duration
	Grace     time.Duration
	MaxOutput int
}

// Sandbox executes attempt artifacts.
type Sandbox struct {
	cfg Config
}

// NewSandbox creates a Sandbox, filling zero config fields with defaults.
func NewSandbox(cfg Config) (*Sandbox, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("harness command required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = DefaultMaxOutput
	}
	return &Sandbox{cfg: cfg}, nil
}

// Execute runs one attempt artifact and returns its result. A timeout is
// a result (Success=false, TimedOut=true), not an error; errors are
// reserved for failures to launch the process at all.
func (s *Sandbox) Execute(ctx context.Context, artifactPath string) (types.ExecutionResult, error) {
	args := s.buildArgs(artifactPath)
	logging.Harness("Executing: %s (timeout %s)", strings.Join(args, " "), s.cfg.Timeout)

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = s.cfg.WorkDir
	// Own process group so the watchdog can kill grandchildren too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	out := &boundedWriter{limit: s.cfg.MaxOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return types.ExecutionResult{}, fmt.Errorf("failed to start harness: %w", err)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var (
		once    sync.Once
		result  types.ExecutionResult
		settled = make(chan struct{})
	)
	settle := func(r types.ExecutionResult) {
		once.Do(func() {
			result = r
			close(settled)
		})
	}

	kill := func() {
		// Negative pid targets the whole process group.
		syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		time.AfterFunc(s.cfg.Grace, func() {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		})
	}

	timeoutTimer := time.AfterFunc(s.cfg.Timeout, func() {
		logging.Harness("Attempt timed out after %s, terminating process group", s.cfg.Timeout)
		kill()
		settle(types.ExecutionResult{
			Success:  false,
			Output:   out.String(),
			ExitCode: -1,
			Elapsed:  time.Since(start),
			TimedOut: true,
		})
	})
	defer timeoutTimer.Stop()

	go func() {
		select {
		case <-ctx.Done():
			kill()
			settle(types.ExecutionResult{
				Success:  false,
				Output:   out.String(),
				ExitCode: -1,
				Elapsed:  time.Since(start),
				Canceled: true,
			})
		case <-settled:
		}
	}()

	go func() {
		err := <-waitDone
		exitCode := 0
		if err != nil {
			if ee, ok := err.(*exec.ExitError); ok {
				exitCode = ee.ExitCode()
			} else {
				exitCode = -1
			}
		}
		output := out.String()
		settle(types.ExecutionResult{
			Success:  judgeSuccess(exitCode, output),
			Output:   output,
			ExitCode: exitCode,
			Elapsed:  time.Since(start),
			TimedOut: false,
		})
	}()

	<-settled
	logging.Harness("Result: success=%v exit=%d elapsed=%s timed_out=%v canceled=%v",
		result.Success, result.ExitCode, result.Elapsed.Round(time.Millisecond), result.TimedOut, result.Canceled)
	return result, nil
}

func (s *Sandbox) buildArgs(artifactPath string) []string {
	args := make([]string, 0, len(s.cfg.Command)+1)
	replaced := false
	for _, a := range s.cfg.Command {
		if strings.Contains(a, "{file}") {
			a = strings.ReplaceAll(a, "{file}", artifactPath)
			replaced = true
		}
		args = append(args, a)
	}
	if !replaced {
		args = append(args, artifactPath)
	}
	return args
}

// boundedWriter keeps the tail of everything written to it.
type boundedWriter struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	if len(w.buf) > w.limit {
		w.buf = w.buf[len(w.buf)-w.limit:]
		w.truncated = true
	}
	return len(p), nil
}

func (w *boundedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.truncated {
		return "[earlier output truncated]\n" + string(w.buf)
	}
	return string(w.buf)
}
