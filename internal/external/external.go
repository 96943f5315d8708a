// Package external runs capsules installed as executables. The preprocess
// and postprocess hooks exchange one JSON document each way over
// stdin/stdout; handle runs with the terminal attached and receives the
// request through the environment.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
	"github.com/mokrunka/taskwarrior-capsules/internal/errors"
	"github.com/mokrunka/taskwarrior-capsules/internal/meta"
	"github.com/mokrunka/taskwarrior-capsules/internal/registry"
	"github.com/mokrunka/taskwarrior-capsules/internal/taskw"
)

// RequestEnv carries the JSON request to the handle hook.
const RequestEnv = "TW_CAPSULE_REQUEST"

// Response statuses.
const (
	StatusOK            = "ok"
	StatusNotApplicable = "not_applicable"
	StatusError         = "error"
	// StatusUnsupported means the executable does not implement the hook.
	StatusUnsupported = "unsupported"
)

// Request is sent to every hook.
type Request struct {
	Hook     string          `json:"hook"`
	RunID    string          `json:"run_id"`
	Capsule  string          `json:"capsule"`
	Context  capsule.Context `json:"context"`
	Result   *int            `json:"result,omitempty"`
	Config   map[string]any  `json:"config"`
	Metadata meta.Document   `json:"metadata"`
}

// Response is read back from preprocess and postprocess.
type Response struct {
	Status   string           `json:"status"`
	Context  *capsule.Context `json:"context,omitempty"`
	Metadata *meta.Document   `json:"metadata,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Runtime is the registry runtime for "exec" manifests.
func Runtime(m *registry.Manifest) (capsule.Factory, error) {
	entrypoint, err := m.EntrypointPath()
	if err != nil {
		return nil, err
	}
	dir := m.Dir()
	return func(env capsule.Env) (capsule.Capsule, error) {
		return &Capsule{Instance: capsule.NewInstance(env), entrypoint: entrypoint, dir: dir}, nil
	}, nil
}

// Capsule is an executable capsule bound to one invocation.
type Capsule struct {
	*capsule.Instance
	entrypoint string
	dir        string
}

func (c *Capsule) Preprocess(ctx context.Context, in capsule.Context) (capsule.Context, error) {
	resp, err := c.exchange(ctx, "preprocess", in, nil)
	if err != nil {
		return in, err
	}
	if resp.Status == StatusOK && resp.Context != nil {
		out := resp.Context.Clone()
		if out.FilterArgs == nil {
			out.FilterArgs = []string{}
		}
		if out.ExtraArgs == nil {
			out.ExtraArgs = []string{}
		}
		return out, nil
	}
	return in, nil
}

func (c *Capsule) Postprocess(ctx context.Context, in capsule.Context, result int) error {
	_, err := c.exchange(ctx, "postprocess", in, &result)
	return err
}

// Handle runs "<entrypoint> handle <extra args...>" attached to the
// terminal. Its exit status is the result.
func (c *Capsule) Handle(ctx context.Context, in capsule.Context) (capsule.Result, error) {
	req, err := c.request(ctx, "handle", in, nil)
	if err != nil {
		return capsule.Result{}, err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return capsule.Result{}, errors.NewInternal(err)
	}

	cmd := exec.CommandContext(ctx, c.entrypoint, append([]string{"handle"}, in.ExtraArgs...)...)
	cmd.Dir = c.dir
	cmd.Env = append(c.environ(), RequestEnv+"="+string(data))
	cmd.Stdin = c.Stdin()
	cmd.Stdout = c.Stdout()
	cmd.Stderr = c.Stderr()

	err = cmd.Run()
	if err == nil {
		return capsule.Handled(0), nil
	}
	if code, ok := taskw.ExitStatus(err); ok {
		return capsule.Handled(code), nil
	}
	return capsule.Result{}, errors.NewCapsuleRuntime(c.Name(), fmt.Errorf("start %s: %w", c.entrypoint, err))
}

func (c *Capsule) request(ctx context.Context, hook string, in capsule.Context, result *int) (*Request, error) {
	doc, err := c.Metadata(ctx)
	if err != nil {
		return nil, errors.NewCapsuleRuntime(c.Name(), err)
	}
	return &Request{
		Hook:     hook,
		RunID:    c.RunID(),
		Capsule:  c.Name(),
		Context:  in,
		Result:   result,
		Config:   c.Config(),
		Metadata: doc,
	}, nil
}

// exchange runs a JSON hook and applies the common response handling:
// error statuses become errors, returned metadata is persisted.
func (c *Capsule) exchange(ctx context.Context, hook string, in capsule.Context, result *int) (*Response, error) {
	req, err := c.request(ctx, hook, in, result)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, c.entrypoint, hook)
	cmd.Dir = c.dir
	cmd.Env = c.environ()
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = c.Stderr()

	if err := cmd.Run(); err != nil {
		return nil, errors.NewCapsuleRuntime(c.Name(), fmt.Errorf("%s hook failed: %w", hook, err))
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, errors.NewCapsuleRuntime(c.Name(), fmt.Errorf("decode %s response: %w (output: %s)",
			hook, err, strings.TrimSpace(stdout.String())))
	}

	switch resp.Status {
	case StatusOK, StatusNotApplicable:
	case StatusError:
		msg := resp.Error
		if msg == "" {
			msg = hook + " failed"
		}
		return nil, errors.NewCapsuleFailure(c.Name(), msg)
	case StatusUnsupported:
		return nil, errors.NewMissingHandler(c.Name(), roleFor(hook), hook)
	default:
		return nil, errors.NewCapsuleRuntime(c.Name(), fmt.Errorf("unknown %s response status %q", hook, resp.Status))
	}

	if resp.Metadata != nil {
		if err := c.SaveMetadata(ctx, *resp.Metadata); err != nil {
			return nil, errors.NewCapsuleRuntime(c.Name(), err)
		}
	}
	return &resp, nil
}

func (c *Capsule) environ() []string {
	return append(os.Environ(),
		"TW_CAPSULE_NAME="+c.Name(),
		"TW_CAPSULE_RUN_ID="+c.RunID(),
	)
}

func roleFor(hook string) string {
	for _, r := range capsule.Roles {
		if r.Handler() == hook {
			return string(r)
		}
	}
	return hook
}
