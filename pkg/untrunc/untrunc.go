// Package untrunc wraps the external untrunc binary, which restores a
// truncated mp4 by rebuilding its index against a known-good reference
// file recorded with the same encoder settings.
package untrunc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrReferenceMissing reports that the known-good reference video needed
// by untrunc is not on disk.
var ErrReferenceMissing = errors.New("untrunc: reference video unavailable")

type ExecError struct {
	Cmd      string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Cause    error
}

func (e *ExecError) Error() string {
	cmdline := strings.TrimSpace(e.Cmd + " " + strings.Join(e.Args, " "))
	if e.ExitCode != 0 {
		return fmt.Sprintf("untrunc: command failed (exit %d): %s", e.ExitCode, cmdline)
	}
	return fmt.Sprintf("untrunc: command failed: %s", cmdline)
}

func (e *ExecError) Unwrap() error { return e.Cause }

type Client struct {
	// Path to the untrunc executable. Defaults to "untrunc" (PATH lookup).
	Path string

	// Reference is the known-good video untrunc analyzes to learn the
	// stream layout of the broken file.
	Reference string
}

func New(path, reference string) *Client {
	return &Client{Path: path, Reference: reference}
}

// BinaryAvailable reports whether the untrunc executable can be resolved.
func (c *Client) BinaryAvailable() bool {
	p := strings.TrimSpace(c.Path)
	if p == "" {
		p = "untrunc"
	}
	if strings.ContainsRune(p, os.PathSeparator) {
		_, err := os.Stat(p)
		return err == nil
	}
	_, err := exec.LookPath(p)
	return err == nil
}

// ReferenceAvailable reports whether the reference video exists on disk.
func (c *Client) ReferenceAvailable() bool {
	_, err := os.Stat(c.Reference)
	return err == nil
}

// FixedPath returns the output path untrunc produces for a broken file:
// "<file>_fixed.<ext>" next to the original, e.g. "v.mp4" -> "v.mp4_fixed.mp4".
func FixedPath(brokenPath string) string {
	return brokenPath + "_fixed.mp4"
}

// Repair runs untrunc against brokenPath. On success the restored video is
// written to FixedPath(brokenPath); the broken original is left untouched.
func (c *Client) Repair(ctx context.Context, brokenPath string) error {
	if !c.ReferenceAvailable() {
		return ErrReferenceMissing
	}

	name := strings.TrimSpace(c.Path)
	if name == "" {
		name = "untrunc"
	}
	args := []string{c.Reference, brokenPath}

	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		exitCode := 0
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exitCode = ee.ExitCode()
		}
		return &ExecError{
			Cmd:      name,
			Args:     args,
			ExitCode: exitCode,
			Stdout:   strings.TrimSpace(outBuf.String()),
			Stderr:   strings.TrimSpace(errBuf.String()),
			Cause:    err,
		}
	}
	return nil
}
