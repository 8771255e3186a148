// Package procrun spawns the external media tool (ffmpeg/ffprobe) with a
// bounded deadline, capturing its combined output and forcibly killing the
// whole process group if the deadline is exceeded.
package procrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned when the subprocess did not finish before its
// deadline and was killed.
var ErrTimeout = errors.New("procrun: timeout")

// ErrSpawn is returned when the binary could not be launched at all.
var ErrSpawn = errors.New("procrun: spawn failed")

// Result carries everything the caller needs after a run, even when the
// run ultimately failed: callers parse stderr for container info
// regardless of exit status.
type Result struct {
	Output   []byte
	ExitCode int
}

// Runner invokes an external media tool binary. It is an interface so
// tests can substitute a fake without spawning real subprocesses.
type Runner interface {
	Run(ctx context.Context, bin string, args []string, timeout time.Duration) (*Result, error)
}

// ProcessGroupRunner is the production Runner: it spawns the child in its
// own process group so a timeout kill reaches any grandchildren too.
type ProcessGroupRunner struct{}

func NewProcessGroupRunner() *ProcessGroupRunner { return &ProcessGroupRunner{} }

func (r *ProcessGroupRunner) Run(ctx context.Context, bin string, args []string, timeout time.Duration) (*Result, error) {
	corrID := uuid.NewString()
	log.Printf("procrun[%s]: spawning %s %v (timeout %v)", corrID, bin, args, timeout)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		res := &Result{Output: buf.Bytes(), ExitCode: exitCode(cmd)}
		if err != nil {
			if _, ok := err.(*exec.ExitError); ok {
				return res, nil
			}
			log.Printf("procrun[%s]: %s failed: %v", corrID, bin, err)
			return res, err
		}
		return res, nil
	case <-time.After(timeout):
		killGroup(cmd)
		<-done
		log.Printf("procrun[%s]: %s killed after %v", corrID, bin, timeout)
		return &Result{Output: buf.Bytes(), ExitCode: -1}, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}

func killGroup(cmd *exec.Cmd) {
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		return
	}
	_ = cmd.Process.Kill()
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}
