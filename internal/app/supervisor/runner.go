package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Runner launches one worker instance. The returned channel yields the
// exit error (nil for a clean exit) once and is then closed. Launch errors
// are spawn failures.
type Runner interface {
	Launch(ctx context.Context, stdout, stderr io.Writer) (<-chan error, error)
}

// Task runs a worker in-process. Cancelling ctx asks it to stop.
type Task func(ctx context.Context, out io.Writer) error

func (t Task) Launch(ctx context.Context, stdout, _ io.Writer) (<-chan error, error) {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("worker panic: %v", r)
			}
		}()
		done <- t(ctx, stdout)
	}()
	return done, nil
}

// Command runs a worker as a child process. Cancellation sends SIGTERM and
// kills the process if it has not exited after StopTimeout.
type Command struct {
	Path        string
	Args        []string
	Env         []string
	StopTimeout time.Duration
}

func (c *Command) Launch(ctx context.Context, stdout, stderr io.Writer) (<-chan error, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = c.StopTimeout
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 10 * time.Second
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- cmd.Wait()
	}()
	return done, nil
}
