package builtin

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
)

const ContextName = "context"

const contextDescription = `Prepends a configured filter to selected commands.

Configuration:

- filter: tokens inserted before the user's own filter
- commands: command names the filter applies to; every command when empty`

// ContextFilter prepends the configured filter tokens to FilterArgs.
type ContextFilter struct {
	*capsule.Instance
}

func NewContextFilter(env capsule.Env) *ContextFilter {
	return &ContextFilter{Instance: capsule.NewInstance(env)}
}

func (c *ContextFilter) Preprocess(_ context.Context, in capsule.Context) (capsule.Context, error) {
	filter := c.ConfigStrings("filter")
	if len(filter) == 0 {
		return in, nil
	}
	if commands := c.ConfigStrings("commands"); len(commands) > 0 && !slices.Contains(commands, in.CommandName) {
		return in, nil
	}

	out := in.Clone()
	out.FilterArgs = append(slices.Clone(filter), in.FilterArgs...)
	c.Logger().Debug("filter applied", zap.Strings("filter", filter), zap.String("command", in.CommandName))
	return out, nil
}
