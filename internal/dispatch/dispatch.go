// Package dispatch runs one command line through the capsule pipeline:
// partition, preprocess, execute (capsule or pass-through), postprocess.
package dispatch

import (
	"context"
	"crypto/rand"
	"io"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
	"github.com/mokrunka/taskwarrior-capsules/internal/cmdline"
	"github.com/mokrunka/taskwarrior-capsules/internal/config"
	"github.com/mokrunka/taskwarrior-capsules/internal/errors"
	"github.com/mokrunka/taskwarrior-capsules/internal/logging"
	"github.com/mokrunka/taskwarrior-capsules/internal/meta"
	"github.com/mokrunka/taskwarrior-capsules/internal/registry"
	"github.com/mokrunka/taskwarrior-capsules/internal/taskw"
)

// Options configures a Pipeline. Registry and Tool are required. Without a
// Validator one is built from Version and the tool.
type Options struct {
	Version   string
	Registry  *registry.Registry
	Validator *capsule.Validator
	Tool      taskw.Tool
	Store     meta.Store
	Config    *config.Config
	Logger    *zap.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Pipeline dispatches command lines. It is not safe for concurrent use.
type Pipeline struct {
	registry  *registry.Registry
	validator *capsule.Validator
	tool      taskw.Tool
	store     meta.Store
	cfg       *config.Config
	logger    *zap.Logger
	reporter  *Reporter
	known     cmdline.KnownSet

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	newRunID func() string
}

// New builds a pipeline. The known command set is fixed here, so capsules
// must be registered before New is called.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		registry:  opts.Registry,
		validator: opts.Validator,
		tool:      opts.Tool,
		store:     opts.Store,
		cfg:       opts.Config,
		logger:    opts.Logger,
		stdin:     opts.Stdin,
		stdout:    opts.Stdout,
		stderr:    opts.Stderr,
		newRunID:  newRunID,
	}
	if p.cfg == nil {
		p.cfg = config.DefaultConfig()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.validator == nil {
		p.validator = capsule.NewValidator(opts.Version, p.tool, p.cfg.SkipToolVersionCheck)
	}
	if p.stdin == nil {
		p.stdin = os.Stdin
	}
	if p.stdout == nil {
		p.stdout = os.Stdout
	}
	if p.stderr == nil {
		p.stderr = os.Stderr
	}
	p.reporter = NewReporter(p.stderr)
	p.known = cmdline.NewKnownSet(cmdline.BuiltinCommands, p.cfg.KnownCommands, p.registry.CommandNames())
	return p
}

func newRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}

// run is the state of one dispatch.
type run struct {
	id     string
	logger *zap.Logger
}

// Run dispatches args and returns the process exit status.
func (p *Pipeline) Run(ctx context.Context, args []string) int {
	r := &run{id: p.newRunID()}
	r.logger = p.logger.With(zap.String("run_id", r.id))

	in := cmdline.Partition(args, p.known)
	r.logger.Debug("dispatch started",
		zap.Strings("filter", in.FilterArgs),
		zap.String("command", in.CommandName),
		zap.Strings("extra", in.ExtraArgs))

	cur, err := p.preprocess(ctx, r, in)
	if err != nil {
		p.reporter.Report(err)
		return errors.ExitCode(err)
	}

	result, err := p.execute(ctx, r, cur)
	if err != nil {
		p.reporter.Report(err)
		return errors.ExitCode(err)
	}

	p.postprocess(ctx, r, cur, result)
	r.logger.Debug("dispatch finished",
		zap.Stringer("command_line", cur),
		zap.Int("result", result))
	return result
}

func (p *Pipeline) preprocess(ctx context.Context, r *run, in capsule.Context) (capsule.Context, error) {
	cur := in
	for _, reg := range p.registry.Registrations(capsule.RolePreprocessor) {
		name := reg.Descriptor.Name
		if err := p.validate(ctx, r, reg.Descriptor); err != nil {
			p.skip(r, name, err)
			continue
		}

		c, err := p.instantiate(r, reg)
		if err != nil {
			return in, err
		}
		pre, ok := c.(capsule.Preprocessor)
		if !ok {
			return in, missingHandler(name, capsule.RolePreprocessor)
		}
		out, err := pre.Preprocess(ctx, cur.Clone())
		if err != nil {
			logging.CapsuleFailed(r.logger, name, string(capsule.RolePreprocessor), err)
			return in, attribute(name, err)
		}
		cur = out
	}
	return cur, nil
}

// execute produces the Result: a command capsule that handles the context,
// or the external tool run with the reconstructed command line.
func (p *Pipeline) execute(ctx context.Context, r *run, cur capsule.Context) (int, error) {
	if reg, ok := p.commandFor(cur.CommandName); ok {
		name := reg.Descriptor.Name
		if err := p.validate(ctx, r, reg.Descriptor); err != nil {
			return 0, err
		}
		c, err := p.instantiate(r, reg)
		if err != nil {
			return 0, err
		}
		cmd, ok := c.(capsule.Commander)
		if !ok {
			return 0, missingHandler(name, capsule.RoleCommand)
		}
		res, err := cmd.Handle(ctx, cur.Clone())
		if err != nil {
			logging.CapsuleFailed(r.logger, name, string(capsule.RoleCommand), err)
			return 0, attribute(name, err)
		}
		if res.IsHandled() {
			return res.Code, nil
		}
		r.logger.Debug("command capsule not applicable", zap.String("capsule", name))
	}

	code, err := p.tool.Run(ctx, cur.Args())
	if err != nil {
		if _, ok := errors.As(err); ok {
			return 0, err
		}
		return 0, errors.NewInternal(err)
	}
	return code, nil
}

func (p *Pipeline) commandFor(name string) (registry.Registration, bool) {
	if name == "" {
		return registry.Registration{}, false
	}
	reg, ok := p.registry.Get(name)
	if !ok || !reg.Descriptor.HasRole(capsule.RoleCommand) {
		return registry.Registration{}, false
	}
	return reg, true
}

// postprocess runs every postprocessor. Failures are reported and never
// change the result.
func (p *Pipeline) postprocess(ctx context.Context, r *run, cur capsule.Context, result int) {
	for _, reg := range p.registry.Registrations(capsule.RolePostprocessor) {
		name := reg.Descriptor.Name
		if err := p.validate(ctx, r, reg.Descriptor); err != nil {
			p.skip(r, name, err)
			continue
		}

		c, err := p.instantiate(r, reg)
		if err != nil {
			p.fail(r, name, capsule.RolePostprocessor, err)
			continue
		}
		post, ok := c.(capsule.Postprocessor)
		if !ok {
			p.fail(r, name, capsule.RolePostprocessor, missingHandler(name, capsule.RolePostprocessor))
			continue
		}
		if err := post.Postprocess(ctx, cur.Clone(), result); err != nil {
			p.fail(r, name, capsule.RolePostprocessor, attribute(name, err))
		}
	}
}

func (p *Pipeline) validate(ctx context.Context, r *run, d capsule.Descriptor) error {
	warnings, err := p.validator.Validate(ctx, d)
	for _, w := range warnings {
		logging.CompatibilityWarning(r.logger, d.Name, w)
	}
	return err
}

// instantiate builds a fresh capsule for this run.
func (p *Pipeline) instantiate(r *run, reg registry.Registration) (capsule.Capsule, error) {
	name := reg.Descriptor.Name
	c, err := reg.Factory(capsule.Env{
		Name:    name,
		RunID:   r.id,
		Meta:    p.store,
		Config:  p.cfg.Section(name),
		Tool:    p.tool,
		Catalog: p.registry,
		Logger:  r.logger,
		Stdin:   p.stdin,
		Stdout:  p.stdout,
		Stderr:  p.stderr,
	})
	if err != nil {
		return nil, attribute(name, err)
	}
	return c, nil
}

// skip reports a capsule left out of this run.
func (p *Pipeline) skip(r *run, name string, err error) {
	logging.InvocationSkipped(r.logger, name, err)
	p.reporter.Report(attribute(name, err))
}

func (p *Pipeline) fail(r *run, name string, role capsule.Role, err error) {
	logging.CapsuleFailed(r.logger, name, string(role), err)
	p.reporter.Report(err)
}

func missingHandler(name string, role capsule.Role) error {
	return errors.NewMissingHandler(name, string(role), role.Handler())
}

// attribute ties err to the capsule that raised it, wrapping errors that
// carry no kind as CAPSULE_RUNTIME.
func attribute(name string, err error) error {
	if ce, ok := errors.As(err); ok {
		if ce.Capsule == "" {
			ce.Capsule = name
		}
		return ce
	}
	return errors.NewCapsuleRuntime(name, err)
}
