// Package taskw runs the Taskwarrior binary: the pass-through executor,
// the version query and JSON export of matching tasks.
package taskw

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mokrunka/taskwarrior-capsules/internal/errors"
)

// DefaultBinary is used when no task_binary is configured.
const DefaultBinary = "task"

// Tool is the dispatcher's view of the external tool.
type Tool interface {
	// Version returns the tool's self-reported version string.
	Version(ctx context.Context) (string, error)
	// Run executes the tool with argv and returns its exit status. A
	// non-zero status is not an error.
	Run(ctx context.Context, argv []string) (int, error)
}

// Exporter is implemented by tools that can list matching tasks.
type Exporter interface {
	Export(ctx context.Context, filter []string) ([]Task, error)
}

// Task is one exported task, as decoded from task's JSON.
type Task map[string]any

// TimeFormat is the layout of Taskwarrior's date attributes.
const TimeFormat = "20060102T150405Z"

// epoch stands in for tasks that carry neither a modified nor an entry date.
var epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Modified returns when the task last changed: its modified date, else its
// entry date, else 2000-01-01.
func (t Task) Modified() time.Time {
	for _, key := range []string{"modified", "entry"} {
		s, ok := t[key].(string)
		if !ok {
			continue
		}
		if at, err := ParseTime(s); err == nil {
			return at
		}
	}
	return epoch
}

// ParseTime accepts Taskwarrior's compact UTC form or RFC 3339.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if at, err := time.Parse(TimeFormat, s); err == nil {
		return at, nil
	}
	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want %s or RFC 3339", s, TimeFormat)
	}
	return at.UTC(), nil
}

// ChangedSince keeps the tasks modified at or after since.
func ChangedSince(tasks []Task, since time.Time) []Task {
	out := []Task{}
	for _, t := range tasks {
		if !t.Modified().Before(since) {
			out = append(out, t)
		}
	}
	return out
}

// Client runs a task binary with inherited stdio.
type Client struct {
	Binary string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a Client for binary, wired to the process's stdio.
func New(binary string) *Client {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	return &Client{Binary: binary, Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Version runs "task --version" and returns its trimmed output.
func (c *Client) Version(ctx context.Context) (string, error) {
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Binary, "--version")
	cmd.Stdout = &stdout
	cmd.Stderr = c.Stderr

	code, err := c.wait(cmd)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", fmt.Errorf("%s --version exited with status %d", c.Binary, code)
	}
	v := strings.TrimSpace(stdout.String())
	if v == "" {
		return "", fmt.Errorf("%s --version printed nothing", c.Binary)
	}
	return v, nil
}

// Run executes task with argv, inheriting stdio, and returns its exit
// status unchanged.
func (c *Client) Run(ctx context.Context, argv []string) (int, error) {
	cmd := exec.CommandContext(ctx, c.Binary, argv...)
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	return c.wait(cmd)
}

// Export returns the pending tasks matching filter, via
// "task <filter> status:pending export".
func (c *Client) Export(ctx context.Context, filter []string) ([]Task, error) {
	argv := make([]string, 0, len(filter)+3)
	argv = append(argv, "rc.json.array=on")
	argv = append(argv, filter...)
	argv = append(argv, "status:pending", "export")

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Binary, argv...)
	cmd.Stdout = &stdout
	cmd.Stderr = c.Stderr

	code, err := c.wait(cmd)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("%s export exited with status %d", c.Binary, code)
	}
	return DecodeTasks(stdout.Bytes())
}

// ChangedSince returns the pending tasks modified at or after since.
func (c *Client) ChangedSince(ctx context.Context, since time.Time) ([]Task, error) {
	tasks, err := c.Export(ctx, nil)
	if err != nil {
		return nil, err
	}
	return ChangedSince(tasks, since), nil
}

// DecodeTasks decodes task export output. Empty output means no tasks.
func DecodeTasks(data []byte) ([]Task, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Task{}, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("export output is not valid JSON")
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("export output is not a JSON array")
	}

	tasks := []Task{}
	for _, item := range parsed.Array() {
		m, ok := item.Value().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("export output contains a non-object entry")
		}
		tasks = append(tasks, Task(m))
	}
	return tasks, nil
}

// wait runs cmd and maps its outcome to an exit status. Only a failure to
// start the binary is an error.
func (c *Client) wait(cmd *exec.Cmd) (int, error) {
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	if code, ok := ExitStatus(err); ok {
		return code, nil
	}
	return 0, errors.NewToolUnavailable(c.Binary, err)
}

// ExitStatus maps the error from running a process to its exit status,
// following the shell convention of 128+N for death by signal N. It
// reports false when err is not an exit error.
func ExitStatus(err error) (int, bool) {
	var exitErr *exec.ExitError
	if !stderrors.As(err, &exitErr) {
		return 0, false
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), true
	}
	return exitErr.ExitCode(), true
}
