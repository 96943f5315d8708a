// Package cmdline splits a raw command line into the dispatch context.
package cmdline

import (
	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
)

// BuiltinCommands are Taskwarrior's own command names. Recognizing them
// keeps filter tokens before a built-in command out of a capsule's reach.
var BuiltinCommands = []string{
	"active", "add", "all", "annotate", "append", "blocked", "blocking",
	"burndown.daily", "burndown.monthly", "burndown.weekly", "calc",
	"calendar", "colors", "columns", "commands", "completed", "config",
	"context", "count", "delete", "denotate", "diagnostics", "done",
	"duplicate", "edit", "execute", "export", "ghistory.annual",
	"ghistory.monthly", "help", "history.annual", "history.monthly",
	"ids", "import", "information", "list", "log", "logo", "long", "ls",
	"minimal", "modify", "newest", "next", "oldest", "overdue", "prepend",
	"projects", "purge", "ready", "recurring", "reports", "show", "start",
	"stats", "stop", "summary", "synchronize", "tags", "timesheet", "udas",
	"unblocked", "undo", "uuids", "version", "waiting",
}

// KnownSet is a set of recognized command names.
type KnownSet map[string]struct{}

// NewKnownSet builds a set from any number of name lists. Names are
// matched exactly; empty names are ignored.
func NewKnownSet(lists ...[]string) KnownSet {
	set := make(KnownSet)
	for _, list := range lists {
		for _, name := range list {
			if name != "" {
				set[name] = struct{}{}
			}
		}
	}
	return set
}

// Has reports whether name is a known command.
func (k KnownSet) Has(name string) bool {
	_, ok := k[name]
	return ok
}

// Partition splits args around the last token that is a known command
// name. Tokens before it are the filter, tokens after it the trailing
// arguments. Without a match the command name is empty and every token is
// a trailing argument, so the reconstructed line equals the input.
//
// The returned slices never alias args.
func Partition(args []string, known KnownSet) capsule.Context {
	idx := -1
	for i, arg := range args {
		if known.Has(arg) {
			idx = i
		}
	}

	if idx < 0 {
		return capsule.Context{
			FilterArgs: []string{},
			ExtraArgs:  append([]string{}, args...),
		}
	}
	return capsule.Context{
		FilterArgs:  append([]string{}, args[:idx]...),
		CommandName: args[idx],
		ExtraArgs:   append([]string{}, args[idx+1:]...),
	}
}
