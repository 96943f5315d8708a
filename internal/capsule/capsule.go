// Package capsule defines the extension contract of the dispatcher: the
// roles a capsule can play, its immutable descriptor, the dispatch context
// threaded through the pipeline and the handler interfaces for each role.
package capsule

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Role is the position a capsule occupies around command execution.
type Role string

const (
	RolePreprocessor  Role = "preprocessor"
	RoleCommand       Role = "command"
	RolePostprocessor Role = "postprocessor"
)

// Roles lists every role in pipeline order.
var Roles = []Role{RolePreprocessor, RoleCommand, RolePostprocessor}

// ParseRole parses a role name as written in manifests.
func ParseRole(s string) (Role, error) {
	r := Role(Normalize(s))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q (want preprocessor, command or postprocessor)", s)
	}
	return r, nil
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RolePreprocessor || r == RoleCommand || r == RolePostprocessor
}

// Handler returns the hook name a capsule must implement for the role.
func (r Role) Handler() string {
	switch r {
	case RolePreprocessor:
		return "preprocess"
	case RoleCommand:
		return "handle"
	case RolePostprocessor:
		return "postprocess"
	}
	return ""
}

// Descriptor is the identity and compatibility declaration of a capsule.
// It is created once at discovery time and never modified afterwards.
type Descriptor struct {
	// Name is unique across all roles and always normalized.
	Name string

	Roles []Role

	// Description is markdown; its first paragraph is the summary.
	Description string

	// MinVersion and MaxVersion bound the dispatcher versions the capsule
	// supports. Empty means unchecked.
	MinVersion string
	MaxVersion string

	// CheckToolVersion gates the capsule on the task binary's version too.
	CheckToolVersion bool
	MinToolVersion   string
	MaxToolVersion   string

	// Source is "builtin" or the path of the manifest the capsule came from.
	Source string
}

// SourceBuiltin marks capsules compiled into the binary.
const SourceBuiltin = "builtin"

// HasRole reports whether the capsule is registered for r.
func (d Descriptor) HasRole(r Role) bool {
	return slices.Contains(d.Roles, r)
}

// RoleNames returns the roles as plain strings, for logging and display.
func (d Descriptor) RoleNames() []string {
	names := make([]string, len(d.Roles))
	for i, r := range d.Roles {
		names[i] = string(r)
	}
	return names
}

// Context is the dispatch context: the user's command line split around
// the resolved command name.
type Context struct {
	FilterArgs  []string `json:"filter_args"`
	CommandName string   `json:"command_name"`
	ExtraArgs   []string `json:"extra_args"`
}

// Args reconstructs the command line: FilterArgs, CommandName (when set)
// and ExtraArgs, in that order.
func (c Context) Args() []string {
	args := make([]string, 0, len(c.FilterArgs)+1+len(c.ExtraArgs))
	args = append(args, c.FilterArgs...)
	if c.CommandName != "" {
		args = append(args, c.CommandName)
	}
	return append(args, c.ExtraArgs...)
}

// Clone returns a deep copy so a capsule cannot mutate the caller's slices.
func (c Context) Clone() Context {
	return Context{
		FilterArgs:  slices.Clone(c.FilterArgs),
		CommandName: c.CommandName,
		ExtraArgs:   slices.Clone(c.ExtraArgs),
	}
}

// String renders the context as a shell-ish command line.
func (c Context) String() string {
	return strings.Join(c.Args(), " ")
}

// Result is the outcome of a command capsule: either handled with an exit
// code, or not applicable, in which case the dispatcher passes the command
// through to task.
type Result struct {
	Code    int
	handled bool
}

// Handled returns a result carrying the exit code of a handled command.
func Handled(code int) Result {
	return Result{Code: code, handled: true}
}

// NotApplicable returns a result telling the dispatcher to pass through.
func NotApplicable() Result {
	return Result{}
}

// IsHandled reports whether the capsule produced the exit code.
func (r Result) IsHandled() bool {
	return r.handled
}

// Capsule is what a Factory builds. The role interfaces below are checked
// with type assertions against the roles in the Descriptor.
type Capsule interface {
	Name() string
}

// Preprocessor may rewrite the dispatch context before execution.
type Preprocessor interface {
	Capsule
	Preprocess(ctx context.Context, in Context) (Context, error)
}

// Commander replaces task's handling of a command.
type Commander interface {
	Capsule
	Handle(ctx context.Context, in Context) (Result, error)
}

// Postprocessor observes the context and the final exit code.
type Postprocessor interface {
	Capsule
	Postprocess(ctx context.Context, in Context, result int) error
}

// Factory builds a fresh capsule for one dispatch invocation.
type Factory func(env Env) (Capsule, error)

// Catalog gives capsules read access to everything discovery found.
type Catalog interface {
	// Ordered returns the descriptors registered for role, sorted by name.
	Ordered(role Role) []Descriptor
	// Lookup finds a descriptor by (normalized) name.
	Lookup(name string) (Descriptor, bool)
}
