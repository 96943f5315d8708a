package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mokrunka/taskwarrior-capsules/internal/config"
)

// setupHome points TW_CAPSULES_HOME at a temp dir holding a config whose
// task binary is a script recording its arguments, one per line, in
// <home>/task.log. The script exits with $FAKE_TASK_EXIT.
func setupHome(t *testing.T, extra map[string]any) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake task binary needs a POSIX shell")
	}
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)
	t.Chdir(home)

	script := filepath.Join(home, "task")
	body := "#!/bin/sh\n" +
		"if [ \"$1\" = \"--version\" ]; then echo 2.6.2; exit 0; fi\n" +
		"for a in \"$@\"; do echo \"$a\" >> \"" + filepath.Join(home, "task.log") + "\"; done\n" +
		"echo ran\n" +
		"exit ${FAKE_TASK_EXIT:-0}\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))

	cfg := map[string]any{"task_binary": script, "log_level": "error"}
	for k, v := range extra {
		cfg[k] = v
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.json"), data, 0644))
	return home
}

func taskLog(t *testing.T, home string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(home, "task.log"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func runTW(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_PassThrough(t *testing.T) {
	home := setupHome(t, nil)
	t.Setenv("FAKE_TASK_EXIT", "3")

	code, stdout, _ := runTW("+home", "project:x", "list")
	require.Equal(t, 3, code)
	require.Equal(t, "ran\n", stdout)
	require.Equal(t, []string{"+home", "project:x", "list"}, taskLog(t, home))
}

func TestRun_CapsulesList(t *testing.T) {
	home := setupHome(t, nil)

	code, stdout, stderr := runTW("capsules", "list")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "capsules")
	require.Contains(t, stdout, "journal")
	require.Nil(t, taskLog(t, home), "task must not run for a handled command")
}

func TestRun_BuiltinsAcceptBuildVersions(t *testing.T) {
	setupHome(t, nil)
	saved := Version
	t.Cleanup(func() { Version = saved })

	for _, v := range []string{"0.3.0-2-gabc123", "dev"} {
		Version = v
		code, stdout, stderr := runTW("capsules", "list")
		require.Equal(t, 0, code, "version %s: %s", v, stderr)
		require.Contains(t, stdout, "journal")
	}
}

func TestRun_CapsulesWithoutSubcommand(t *testing.T) {
	setupHome(t, nil)

	code, _, stderr := runTW("capsules")
	require.Equal(t, 90, code)
	require.Contains(t, stderr, "The capsules capsule encountered an error processing your request: No context command specified")
}

func TestRun_ContextAndJournal(t *testing.T) {
	home := setupHome(t, map[string]any{
		"capsules": map[string]any{
			"context": map[string]any{"filter": []string{"+work"}, "commands": []string{"next"}},
			"journal": map[string]any{"enabled": true},
		},
	})

	code, _, stderr := runTW("project:x", "next")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, []string{"+work", "project:x", "next"}, taskLog(t, home))

	code, stdout, stderr := runTW("capsules", "history")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "+work project:x next")
}

func TestRun_ToolMissing(t *testing.T) {
	setupHome(t, map[string]any{"task_binary": "/nonexistent/task"})

	code, _, stderr := runTW("list")
	require.Equal(t, 127, code)
	require.NotEmpty(t, stderr)
}

func TestRun_InstalledLuaCapsule(t *testing.T) {
	home := setupHome(t, nil)
	dir := filepath.Join(home, "capsules", "hello")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "capsule.yaml"), []byte(`
name: hello
description: Greets.
roles: [command]
entrypoint: main.lua
min_version: "0.1"
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.lua"), []byte(`
function handle(ctx)
  capsule.print("hello " .. (ctx.extra_args[1] or "world"))
  return 6
end`), 0644))

	code, stdout, stderr := runTW("hello", "tw")
	require.Equal(t, 6, code, stderr)
	require.Equal(t, "hello tw\n", stdout)
	require.Nil(t, taskLog(t, home))
}

func TestRun_InstalledExecCapsule(t *testing.T) {
	home := setupHome(t, nil)
	dir := filepath.Join(home, "capsules", "tagger")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "capsule.json"), []byte(`{
  "name": "tagger",
  "roles": ["preprocessor"],
  "entrypoint": "run.sh",
  "min_version": "0.1"
}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte(`#!/bin/sh
cat > /dev/null
echo '{"status":"ok","context":{"filter_args":["+tagged"],"command_name":"list","extra_args":[]}}'
`), 0755))

	code, _, stderr := runTW("list")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, []string{"+tagged", "list"}, taskLog(t, home))
}

func TestRun_DisabledInstalledCapsule(t *testing.T) {
	home := setupHome(t, map[string]any{"disabled_capsules": []string{"hello"}})
	dir := filepath.Join(home, "capsules", "hello")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "capsule.json"), []byte(`{"name":"hello","roles":["command"],"entrypoint":"main.lua"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.lua"), []byte(`function handle(ctx) return 6 end`), 0644))

	code, _, _ := runTW("hello")
	require.Equal(t, 0, code)
	require.Equal(t, []string{"hello"}, taskLog(t, home))
}
