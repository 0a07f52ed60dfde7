package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/codefionn/flagrunner/internal/logger"
)

const maxCommandOutput = 64 * 1024

// CommandTool runs a shell command line and returns its combined output.
// It stands in for the analysis tools of a real deployment.
type CommandTool struct {
	shell      string
	workingDir string
	env        map[string]string
	timeout    time.Duration
}

// CommandToolConfig captures options required to build a CommandTool.
type CommandToolConfig struct {
	Shell      string
	WorkingDir string
	Env        map[string]string
	Timeout    time.Duration
}

// commandInput is the optional JSON form of the payload.
type commandInput struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// NewCommandTool constructs a CommandTool from the provided configuration.
func NewCommandTool(cfg CommandToolConfig) *CommandTool {
	shell := cfg.Shell
	if shell == "" {
		shell = "sh"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	envCopy := make(map[string]string, len(cfg.Env))
	for k, v := range cfg.Env {
		envCopy[k] = v
	}

	return &CommandTool{
		shell:      shell,
		workingDir: cfg.WorkingDir,
		env:        envCopy,
		timeout:    timeout,
	}
}

func (c *CommandTool) Name() string { return ToolNameSystemCommand }

func (c *CommandTool) Description() string {
	return "Execute a shell command (file, strings, xxd, base64, python3 -c, nc, curl ...) and return its combined stdout and stderr."
}

func (c *CommandTool) InputDescription() string {
	return `The command line to run, or {"command": "...", "timeout_seconds": N}`
}

// Invoke runs the command under the tool's timeout.
func (c *CommandTool) Invoke(ctx context.Context, input string) Result {
	command, timeout := c.parseInput(input)
	if command == "" {
		return Fail("Missing command")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.shell, "-c", command)
	if c.workingDir != "" {
		cmd.Dir = c.workingDir
	}
	cmd.Env = os.Environ()
	for key, val := range c.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, val))
	}

	configureProcessGroup(cmd)
	cmd.Cancel = func() error {
		if pgid := getProcessGroupID(cmd); pgid > 0 {
			if err := signalProcessGroup(pgid, syscall.SIGKILL); err == nil {
				return nil
			}
		}
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = time.Second

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	text := truncateOutput(output.String())

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logger.Warn("system_command: %q timed out after %s", command, timeout)
		return Fail("command timed out after %s\n%s", timeout, text)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Fail("exit status %d\n%s", exitErr.ExitCode(), text)
		}
		return Fail("failed to run command: %v", err)
	}
	return OK(text)
}

func (c *CommandTool) parseInput(input string) (string, time.Duration) {
	input = strings.TrimSpace(input)
	timeout := c.timeout
	if strings.HasPrefix(input, "{") {
		var payload commandInput
		if err := json.Unmarshal([]byte(input), &payload); err == nil && payload.Command != "" {
			if payload.TimeoutSeconds > 0 {
				requested := time.Duration(payload.TimeoutSeconds) * time.Second
				if requested < timeout {
					timeout = requested
				}
			}
			return strings.TrimSpace(payload.Command), timeout
		}
	}
	return input, timeout
}

func truncateOutput(s string) string {
	if len(s) <= maxCommandOutput {
		return s
	}
	return s[:maxCommandOutput] + fmt.Sprintf("\n... (%d bytes truncated)", len(s)-maxCommandOutput)
}
