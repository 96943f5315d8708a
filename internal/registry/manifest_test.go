package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
)

func TestParseManifest_JSONAndYAMLAgree(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "capsule.json")
	yamlPath := filepath.Join(dir, "capsule.yaml")

	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"name": "Deploy",
		"description": "Deploys.\n\nMore.",
		"roles": ["command", "postprocessor", "command"],
		"entrypoint": "deploy.sh",
		"min_version": "0.1",
		"max_version": "1.0",
		"check_tool_version": true,
		"min_tool_version": "2.5",
		"max_tool_version": "3.0"
	}`), 0644))
	require.NoError(t, os.WriteFile(yamlPath, []byte(`name: Deploy
description: |-
  Deploys.

  More.
roles: [command, postprocessor, command]
entrypoint: deploy.sh
min_version: "0.1"
max_version: "1.0"
check_tool_version: true
min_tool_version: "2.5"
max_tool_version: "3.0"
`), 0644))

	fromJSON, err := ParseManifest(jsonPath)
	require.NoError(t, err)
	fromYAML, err := ParseManifest(yamlPath)
	require.NoError(t, err)

	dj, dy := fromJSON.Descriptor(), fromYAML.Descriptor()
	dj.Source, dy.Source = "", ""
	require.Equal(t, dj, dy)

	require.Equal(t, "deploy", dj.Name)
	require.Equal(t, []capsule.Role{capsule.RoleCommand, capsule.RolePostprocessor}, dj.Roles, "roles deduplicated")
	require.Equal(t, "Deploys.\n\nMore.", dj.Description)
	require.Equal(t, RuntimeExec, fromJSON.RuntimeName())
	require.Equal(t, dir, fromJSON.Dir())
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"bad json", "capsule.json", `{"name":`},
		{"bad yaml", "capsule.yaml", "name: [unclosed"},
		{"missing name", "capsule.json", `{"roles":["command"],"entrypoint":"x"}`},
		{"name with colon", "capsule.json", `{"name":"a:b","roles":["command"],"entrypoint":"x"}`},
		{"missing entrypoint", "capsule.json", `{"name":"a","roles":["command"]}`},
		{"unknown runtime", "capsule.json", `{"name":"a","roles":["command"],"entrypoint":"x","runtime":"jvm"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0644))
			_, err := ParseManifest(path)
			require.Error(t, err)
		})
	}
}

func TestRuntimeName(t *testing.T) {
	require.Equal(t, RuntimeLua, (&Manifest{Entrypoint: "main.LUA"}).RuntimeName())
	require.Equal(t, RuntimeExec, (&Manifest{Entrypoint: "main.py"}).RuntimeName())
	require.Equal(t, RuntimeExec, (&Manifest{Entrypoint: "main.lua", Runtime: " Exec "}).RuntimeName())
}

func TestFindManifest_Precedence(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, "", FindManifest(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "capsule.yml"), []byte("x"), 0644))
	require.Equal(t, filepath.Join(dir, "capsule.yml"), FindManifest(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "capsule.json"), []byte("x"), 0644))
	require.Equal(t, filepath.Join(dir, "capsule.json"), FindManifest(dir))
}

func TestEntrypointPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "run"), []byte("x"), 0755))

	m := &Manifest{Entrypoint: "bin/run", Path: filepath.Join(dir, "capsule.json")}
	got, err := m.EntrypointPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "bin", "run"), got)

	for _, bad := range []string{"../run", "bin/../../x", "/bin/sh", "missing", "bin"} {
		m.Entrypoint = bad
		_, err := m.EntrypointPath()
		require.Error(t, err, "entrypoint %q", bad)
	}
}
