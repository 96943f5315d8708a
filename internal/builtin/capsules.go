package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
	"github.com/mokrunka/taskwarrior-capsules/internal/errors"
	"github.com/mokrunka/taskwarrior-capsules/internal/meta"
	"github.com/mokrunka/taskwarrior-capsules/internal/style"
	"github.com/mokrunka/taskwarrior-capsules/internal/version"
)

const CapsulesName = "capsules"

const capsulesDescription = `Lists and inspects installed capsules.

Subcommands: list, info <name>, meta [name [path]], history [--limit N].
Subcommand names are case-insensitive.`

// Capsules is the "capsules" command.
type Capsules struct {
	*capsule.Instance
}

func NewCapsules(env capsule.Env) *Capsules {
	return &Capsules{Instance: capsule.NewInstance(env)}
}

func (c *Capsules) Handle(ctx context.Context, in capsule.Context) (capsule.Result, error) {
	app := c.newApp()
	argv := append([]string{CapsulesName}, in.ExtraArgs...)
	if len(argv) > 1 {
		argv[1] = strings.ToLower(argv[1])
	}
	if err := app.RunContext(ctx, argv); err != nil {
		if _, ok := errors.As(err); ok {
			return capsule.Result{}, err
		}
		return capsule.Result{}, errors.NewCapsuleFailure(CapsulesName, err.Error())
	}
	return capsule.Handled(0), nil
}

func (c *Capsules) newApp() *cli.App {
	app := &cli.App{
		Name:      CapsulesName,
		Usage:     "Inspect installed capsules",
		HelpName:  "tw " + CapsulesName,
		Writer:    c.Stdout(),
		ErrWriter: c.Stderr(),
		Commands: []*cli.Command{
			c.listCmd(),
			c.infoCmd(),
			c.metaCmd(),
			c.historyCmd(),
		},
		Action: func(cc *cli.Context) error {
			if cc.NArg() == 0 {
				return fmt.Errorf("No context command specified")
			}
			return fmt.Errorf("Command '%s' is not defined.", cc.Args().First())
		},
	}
	// Errors are reported by the dispatcher.
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func (c *Capsules) listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List installed capsules by role",
		Action: func(cc *cli.Context) error {
			catalog := c.Catalog()
			if catalog == nil {
				return errors.NewInternal(fmt.Errorf("no capsule catalog available"))
			}
			out := c.Stdout()
			for i, role := range capsule.Roles {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintln(out, style.Heading.Render(roleHeading(role)))
				descriptors := catalog.Ordered(role)
				if len(descriptors) == 0 {
					fmt.Fprintln(out, style.Dim.Render("  (none)"))
					continue
				}
				rows := make([][]string, 0, len(descriptors))
				for _, d := range descriptors {
					rows = append(rows, []string{"  " + d.Name, capsule.SummaryOrDefault(d.Description)})
				}
				fmt.Fprint(out, style.Columns(rows))
			}
			return nil
		},
	}
}

func roleHeading(role capsule.Role) string {
	switch role {
	case capsule.RolePreprocessor:
		return "Preprocessors"
	case capsule.RoleCommand:
		return "Commands"
	case capsule.RolePostprocessor:
		return "Postprocessors"
	}
	return string(role)
}

func (c *Capsules) infoCmd() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show a capsule's roles, source and compatibility",
		ArgsUsage: "<name>",
		Action: func(cc *cli.Context) error {
			d, err := c.lookup(cc)
			if err != nil {
				return err
			}
			out := c.Stdout()
			rows := [][]string{
				{style.Label.Render("Name"), d.Name},
				{style.Label.Render("Roles"), strings.Join(d.RoleNames(), ", ")},
				{style.Label.Render("Source"), d.Source},
				{style.Label.Render("Version"), describeRange(d.MinVersion, d.MaxVersion)},
			}
			if d.CheckToolVersion {
				rows = append(rows, []string{style.Label.Render("Taskwarrior"), describeRange(d.MinToolVersion, d.MaxToolVersion)})
			}
			fmt.Fprint(out, style.Columns(rows))
			if desc := strings.TrimSpace(d.Description); desc != "" {
				fmt.Fprintf(out, "\n%s\n", desc)
			}
			return nil
		},
	}
}

func describeRange(min, max string) string {
	r, err := version.ParseRange(min, max)
	switch {
	case err != nil:
		return "invalid (" + err.Error() + ")"
	case !r.Declared():
		return "unspecified"
	case r.Min != nil && r.Max != nil:
		return fmt.Sprintf(">= %s, <= %s", r.Min, r.Max)
	case r.Min != nil:
		return ">= " + r.Min.String()
	default:
		return "<= " + r.Max.String()
	}
}

func (c *Capsules) metaCmd() *cli.Command {
	return &cli.Command{
		Name:      "meta",
		Usage:     "Print a capsule's persisted metadata, or list stored documents",
		ArgsUsage: "[name [path]]",
		Action: func(cc *cli.Context) error {
			store := c.Store()
			if store == nil {
				return errors.NewInternal(fmt.Errorf("metadata store unavailable"))
			}
			if cc.NArg() == 0 {
				return c.listMeta(cc.Context, store)
			}
			d, err := c.lookup(cc)
			if err != nil {
				return err
			}
			doc, err := store.Get(cc.Context, d.Name)
			if err != nil {
				return errors.NewInternal(err)
			}

			if cc.NArg() < 2 {
				fmt.Fprintln(c.Stdout(), strings.TrimSpace(doc.Pretty()))
				return nil
			}
			path := cc.Args().Get(1)
			r := doc.Get(path)
			if !r.Exists() {
				return fmt.Errorf("No metadata at '%s' for capsule '%s'.", path, d.Name)
			}
			if r.IsObject() || r.IsArray() {
				fmt.Fprintln(c.Stdout(), strings.TrimSpace(doc.Get(path+"|@pretty").Raw))
				return nil
			}
			fmt.Fprintln(c.Stdout(), r.String())
			return nil
		},
	}
}

func (c *Capsules) listMeta(ctx context.Context, store meta.Store) error {
	entries, err := store.Names(ctx)
	if err != nil {
		return errors.NewInternal(err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.Stdout(), style.Dim.Render("No capsule metadata stored."))
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		updated := ""
		if !e.UpdatedAt.IsZero() {
			updated = e.UpdatedAt.Local().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{e.Name, fmt.Sprintf("%d bytes", e.Bytes), style.Dim.Render(updated)})
	}
	fmt.Fprint(c.Stdout(), style.Columns(rows))
	return nil
}

func (c *Capsules) historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent dispatches recorded by the journal capsule",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 10, Usage: "Number of entries to show"},
		},
		Action: func(cc *cli.Context) error {
			limit := cc.Int("limit")
			if limit < 1 {
				return errors.NewInvalidRequest("limit must be positive")
			}
			store := c.Store()
			if store == nil {
				return errors.NewInternal(fmt.Errorf("metadata store unavailable"))
			}
			doc, err := store.Get(cc.Context, JournalName)
			if err != nil {
				return errors.NewInternal(err)
			}

			var entries []JournalEntry
			if raw := doc.Get("entries").Raw; raw != "" {
				if err := json.Unmarshal([]byte(raw), &entries); err != nil {
					return errors.NewInternal(fmt.Errorf("decode journal: %w", err))
				}
			}
			if len(entries) == 0 {
				fmt.Fprintln(c.Stdout(), style.Dim.Render("No journal entries. Enable the journal capsule to record runs."))
				return nil
			}
			if len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			writeHistory(c.Stdout(), entries)
			return nil
		},
	}
}

func writeHistory(w io.Writer, entries []JournalEntry) {
	rows := make([][]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		rows = append(rows, []string{
			style.Dim.Render(e.At.Local().Format("2006-01-02 15:04:05")),
			strconv.Itoa(e.ExitCode),
			strings.Join(e.Args, " "),
		})
	}
	fmt.Fprint(w, style.Columns(rows))
}

func (c *Capsules) lookup(cc *cli.Context) (capsule.Descriptor, error) {
	if cc.NArg() < 1 {
		return capsule.Descriptor{}, errors.NewInvalidRequest("a capsule name is required")
	}
	name := capsule.Normalize(cc.Args().First())
	if catalog := c.Catalog(); catalog != nil {
		if d, ok := catalog.Lookup(name); ok {
			return d, nil
		}
	}
	return capsule.Descriptor{}, fmt.Errorf("Capsule '%s' is not installed.", name)
}
