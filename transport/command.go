package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/nixxel-company-limited/kot-dispatch/escpos"
)

// TempFileName is the fixed name of the job file handed to the OS print
// utility. It lives in os.TempDir and is removed after every call.
const TempFileName = "kot_print.txt"

// tempMu serializes use of the shared job file.
var tempMu sync.Mutex

// RunFunc runs a program and returns its captured output. A non-nil error
// with an *exec.ExitError cause means the program ran and exited non-zero.
type RunFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// Command submits the payload through the operating system's print utility
// (print on Windows, lp elsewhere).
type Command struct {
	device string
	dir    string
	run    RunFunc
	logger *zap.Logger
}

// NewCommand creates an OS print command attempt targeting device.
func NewCommand(device string, logger *zap.Logger) *Command {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Command{
		device: device,
		dir:    os.TempDir(),
		run:    execRun,
		logger: logger.Named("command"),
	}
}

// WithRunner replaces the process runner and the directory used for the
// job file.
func (c *Command) WithRunner(run RunFunc, dir string) *Command {
	c.run = run
	if dir != "" {
		c.dir = dir
	}
	return c
}

// Method implements Attempt.
func (c *Command) Method() string {
	return MethodCommand
}

// Send implements Attempt.
func (c *Command) Send(ctx context.Context, payload []byte) error {
	tempMu.Lock()
	defer tempMu.Unlock()

	path := filepath.Join(c.dir, TempFileName)
	job := append([]byte(escpos.Init), payload...)

	if err := os.WriteFile(path, job, 0o600); err != nil {
		c.logger.Error("failed to create print file", zap.String("path", path), zap.Error(err))
		return failure(ClassUSB, MethodCommand, fmt.Sprintf("Failed to create print file: %v", err), err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove print file", zap.String("path", path), zap.Error(err))
		}
	}()

	name, args := printCommand(c.device, path)
	stdout, stderr, err := c.run(ctx, name, args...)
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		c.logger.Error("failed to execute print command", zap.String("command", name), zap.Error(err))
		return failure(ClassUSB, MethodCommand, fmt.Sprintf("Failed to execute print command: %v", err), err)
	}

	msg := fmt.Sprintf("Print command failed. Status: %s. Stderr: %s. Stdout: %s",
		exitErr.ProcessState, bytes.TrimSpace(stderr), bytes.TrimSpace(stdout))
	c.logger.Error("print command failed",
		zap.Int("exit_code", exitErr.ExitCode()),
		zap.ByteString("stderr", stderr),
		zap.ByteString("stdout", stdout))
	return failure(ClassUSB, MethodCommand, msg, err)
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
