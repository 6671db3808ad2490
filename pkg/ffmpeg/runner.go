package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Process represents a running ffmpeg process with lifecycle management.
type Process struct {
	cmd      *exec.Cmd
	pid      int
	stdin    io.WriteCloser
	stopOnce sync.Once
	done     chan struct{}
	err      error
	stderr   bytes.Buffer
}

// PID returns the process ID, or 0 if not started.
func (p *Process) PID() int {
	return p.pid
}

// Wait blocks until the process completes and returns any error.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Stop asks ffmpeg to finish gracefully by writing "q" to its stdin.
// ffmpeg finalizes the output container before exiting, so a stopped
// download still yields a playable file.
func (p *Process) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		if p.stdin == nil {
			err = fmt.Errorf("ffmpeg: no stdin attached")
			return
		}
		if _, werr := io.WriteString(p.stdin, "q"); werr != nil {
			err = fmt.Errorf("ffmpeg: request stop: %w", werr)
			return
		}
		err = p.stdin.Close()
	})
	return err
}

// Kill sends SIGKILL to the process.
func (p *Process) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Done returns a channel that closes when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Stderr returns the captured stderr output (available after Wait).
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// Start starts an ffmpeg process and returns a Process handle for lifecycle
// management. When progress is non-nil the channel receives parsed
// -progress output and is closed when the process exits.
// The caller is responsible for calling Wait() or Kill() to clean up.
func Start(ctx context.Context, bin string, args []string, progress chan<- Progress) (*Process, error) {
	if strings.TrimSpace(bin) == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, args...)

	p := &Process{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	cmd.Stderr = &p.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: failed to create stdin pipe: %w", err)
	}
	p.stdin = stdin

	var stdout io.ReadCloser
	if progress != nil {
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("ffmpeg: failed to create stdout pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: failed to start: %w", err)
	}
	p.pid = cmd.Process.Pid

	go func() {
		defer close(p.done)

		if progress != nil {
			scanner := bufio.NewScanner(stdout)
			ParseProgressOutput(scanner, progress)
		}

		p.err = cmd.Wait()
		if p.err != nil {
			p.err = &Error{
				Args:   args,
				Stderr: p.stderr.String(),
				Err:    p.err,
			}
		}
		if progress != nil {
			close(progress)
		}
	}()

	return p, nil
}

// Error represents an ffmpeg execution error with context.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

// Error implements error.
func (e *Error) Error() string {
	// Extract just the last few lines of stderr for the error message
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	var lastLines string
	if len(lines) > 3 {
		lastLines = strings.Join(lines[len(lines)-3:], "\n")
	} else {
		lastLines = strings.Join(lines, "\n")
	}

	if lastLines != "" {
		return fmt.Sprintf("ffmpeg: %v: %s", e.Err, lastLines)
	}
	return fmt.Sprintf("ffmpeg: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Command returns the command that was executed.
func (e *Error) Command() string {
	return "ffmpeg " + strings.Join(e.Args, " ")
}
