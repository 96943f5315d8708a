package meta

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDocument(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"object", `{"a":1}`, false},
		{"blank", "  ", false},
		{"array", `[1,2]`, true},
		{"scalar", `"x"`, true},
		{"garbage", `{nope`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDocument(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

func TestDocument_ZeroValueIsEmptyObject(t *testing.T) {
	var d Document
	require.Equal(t, "{}", d.Raw())
	require.True(t, d.IsEmpty())
	require.Empty(t, d.Map())
}

func TestDocument_SetGet(t *testing.T) {
	d := NewDocument()

	d2, err := d.Set("last_run.exit", 3)
	require.NoError(t, err)
	d2, err = d2.Set("last_run.command", "deploy")
	require.NoError(t, err)

	require.Equal(t, int64(3), d2.Get("last_run.exit").Int())
	require.Equal(t, "deploy", d2.Get("last_run.command").String())
	require.False(t, d2.IsEmpty())

	// Set returns a copy
	require.True(t, d.IsEmpty())
}

func TestDocument_AppendAndCount(t *testing.T) {
	d, err := NewDocument().SetRaw("entries", "[]")
	require.NoError(t, err)
	for _, cmd := range []string{"list", "next", "done"} {
		d, err = d.Set("entries.-1", map[string]any{"command": cmd})
		require.NoError(t, err)
	}

	require.Equal(t, int64(3), d.Get("entries.#").Int())
	require.Equal(t, "done", d.Get("entries.2.command").String())
}

func TestDocument_SetRawAndDelete(t *testing.T) {
	d, err := NewDocument().SetRaw("filter", `["+work","project:x"]`)
	require.NoError(t, err)
	require.Equal(t, "+work", d.Get("filter.0").String())

	_, err = d.SetRaw("bad", `{nope`)
	require.Error(t, err)

	d, err = d.Delete("filter")
	require.NoError(t, err)
	require.True(t, d.IsEmpty())

	d, err = d.Delete("missing.path")
	require.NoError(t, err)
	require.True(t, d.IsEmpty())
}

func TestDocument_JSON(t *testing.T) {
	d, err := NewDocument().Set("n", 1)
	require.NoError(t, err)

	data, err := json.Marshal(struct {
		Metadata Document `json:"metadata"`
	}{d})
	require.NoError(t, err)
	require.JSONEq(t, `{"metadata":{"n":1}}`, string(data))

	var back struct {
		Metadata Document `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, int64(1), back.Metadata.Get("n").Int())

	var null struct {
		Metadata Document `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"metadata":null}`), &null))
	require.True(t, null.Metadata.IsEmpty())

	require.Error(t, json.Unmarshal([]byte(`{"metadata":[1]}`), &back))
}

func TestDocument_Pretty(t *testing.T) {
	d, err := ParseDocument(`{"a":{"b":1}}`)
	require.NoError(t, err)
	require.Contains(t, d.Pretty(), "\n")
	require.JSONEq(t, d.Raw(), d.Pretty())
}
