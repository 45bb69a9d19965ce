// Package process wraps external program invocations behind a handle that
// bounds their run time and guarantees termination.
package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/normanking/talkinghead/internal/errs"
)

// waitDelay bounds how long Wait lingers on pipes held open by grandchildren
// after the direct child is gone.
const waitDelay = 500 * time.Millisecond

// Spec describes one invocation.
type Spec struct {
	Path    string
	Args    []string
	Timeout time.Duration // zero means no bound beyond the context
}

// Result is the captured output of a process that exited with status 0.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Handle is a started process. Kill must be called on every path; it is a
// no-op once the process has exited.
type Handle struct {
	spec    Spec
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	started time.Time

	done    chan struct{}
	waitErr error

	closeOnce sync.Once
}

// Start launches the program described by spec.
func Start(spec Spec) (*Handle, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.WaitDelay = waitDelay

	h := &Handle{spec: spec, cmd: cmd, done: make(chan struct{})}
	cmd.Stdout = &h.stdout
	cmd.Stderr = &h.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &errs.LaunchError{Program: h.name(), Err: err}
	}
	h.stdin = stdin

	if err := cmd.Start(); err != nil {
		return nil, &errs.LaunchError{Program: h.name(), Err: err}
	}
	h.started = time.Now()

	go func() {
		h.waitErr = cmd.Wait()
		close(h.done)
	}()

	return h, nil
}

// Write sends p to the process input.
func (h *Handle) Write(p []byte) (int, error) {
	return h.stdin.Write(p)
}

// CloseInput closes the process input, signalling end of text.
func (h *Handle) CloseInput() error {
	var err error
	h.closeOnce.Do(func() {
		err = h.stdin.Close()
	})
	return err
}

// Wait blocks until the process exits, the timeout elapses or ctx is done.
// On timeout or cancellation the process is killed before Wait returns.
func (h *Handle) Wait(ctx context.Context) (*Result, error) {
	var timeout <-chan time.Time
	if h.spec.Timeout > 0 {
		timer := time.NewTimer(h.spec.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-h.done:
	case <-timeout:
		h.Kill()
		return nil, &errs.TimeoutError{Program: h.name(), After: h.spec.Timeout}
	case <-ctx.Done():
		h.Kill()
		return nil, ctx.Err()
	}

	if h.waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(h.waitErr, &exitErr) {
			return nil, &errs.ExitError{
				Program: h.name(),
				Code:    exitErr.ExitCode(),
				Stderr:  string(bytes.TrimSpace(h.stderr.Bytes())),
			}
		}
		return nil, &errs.LaunchError{Program: h.name(), Err: h.waitErr}
	}

	return &Result{
		Stdout:   h.stdout.Bytes(),
		Stderr:   h.stderr.Bytes(),
		Duration: time.Since(h.started),
	}, nil
}

// Kill terminates the process if it is still running and waits for it to
// be reaped.
func (h *Handle) Kill() {
	select {
	case <-h.done:
		return
	default:
	}
	_ = h.CloseInput()
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	<-h.done
}

func (h *Handle) name() string {
	return filepath.Base(h.spec.Path)
}

// Run starts the program, feeds it input, closes its input and waits for it.
// The process never outlives the call.
func Run(ctx context.Context, spec Spec, input []byte) (*Result, error) {
	h, err := Start(spec)
	if err != nil {
		return nil, err
	}
	defer h.Kill()

	// A child that never reads must not stall us past the timeout.
	go func() {
		_, _ = h.Write(input)
		_ = h.CloseInput()
	}()

	return h.Wait(ctx)
}
