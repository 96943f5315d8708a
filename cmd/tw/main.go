package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mokrunka/taskwarrior-capsules/internal/builtin"
	"github.com/mokrunka/taskwarrior-capsules/internal/config"
	"github.com/mokrunka/taskwarrior-capsules/internal/dispatch"
	"github.com/mokrunka/taskwarrior-capsules/internal/external"
	"github.com/mokrunka/taskwarrior-capsules/internal/logging"
	"github.com/mokrunka/taskwarrior-capsules/internal/luacap"
	"github.com/mokrunka/taskwarrior-capsules/internal/meta"
	"github.com/mokrunka/taskwarrior-capsules/internal/registry"
	"github.com/mokrunka/taskwarrior-capsules/internal/taskw"
)

// Version is set via -ldflags at build time.
var Version = "0.3.0"

// exitStartup is returned when tw cannot get as far as dispatching.
const exitStartup = 1

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	home, err := config.HomeDir()
	if err != nil {
		fmt.Fprintf(stderr, "error: could not determine home directory: %v\n", err)
		return exitStartup
	}

	var cfg *config.Config
	if wd, werr := os.Getwd(); werr == nil {
		cfg, err = config.LoadWithRepo(home, wd)
	} else {
		cfg, err = config.Load(home)
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: failed to load config: %v\n", err)
		return exitStartup
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(stderr, "error: failed to set up logging: %v\n", err)
		return exitStartup
	}
	defer func() { _ = logger.Sync() }()

	reg, err := discover(home, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitStartup
	}

	store := meta.NewSQLStore(home)
	defer store.Close()

	tool := taskw.New(cfg.TaskBinary)
	tool.Stdin, tool.Stdout, tool.Stderr = stdin, stdout, stderr

	p := dispatch.New(dispatch.Options{
		Version:  Version,
		Registry: reg,
		Tool:     tool,
		Store:    store,
		Config:   cfg,
		Logger:   logger,
		Stdin:    stdin,
		Stdout:   stdout,
		Stderr:   stderr,
	})
	return p.Run(ctx, args)
}

// discover registers the built-in capsules, then every installed capsule
// under <home>/capsules and the configured capsule_dirs.
func discover(home string, cfg *config.Config, logger *zap.Logger) (*registry.Registry, error) {
	reg := registry.New(logger)
	if err := builtin.Install(reg); err != nil {
		return nil, err
	}
	reg.UseRuntime(registry.RuntimeExec, external.Runtime)
	reg.UseRuntime(registry.RuntimeLua, luacap.Runtime)

	dirs := []string{filepath.Join(home, "capsules")}
	for _, dir := range cfg.CapsuleDirs {
		if filepath.IsAbs(dir) {
			dirs = append(dirs, dir)
		}
	}
	for _, dir := range dirs {
		if _, err := reg.LoadDir(dir); err != nil {
			logging.CapsuleSkipped(logger, dir, err)
		}
	}

	reg.Disable(cfg.DisabledCapsules...)
	return reg, nil
}
