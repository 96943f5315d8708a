package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
	"github.com/mokrunka/taskwarrior-capsules/internal/meta"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
}

func TestJournal_DisabledByDefault(t *testing.T) {
	ctx := context.Background()
	env, store, _ := testEnv(t, JournalName, nil)

	require.NoError(t, NewJournal(env).Postprocess(ctx, capsule.Context{CommandName: "list"}, 0))

	doc, err := store.Get(ctx, JournalName)
	require.NoError(t, err)
	require.True(t, doc.IsEmpty())
}

func TestJournal_RecordsEntry(t *testing.T) {
	ctx := context.Background()
	env, store, _ := testEnv(t, JournalName, map[string]any{"enabled": true})
	j := NewJournal(env)
	j.now = fixedClock()

	in := capsule.Context{FilterArgs: []string{"+work"}, CommandName: "list", ExtraArgs: []string{}}
	require.NoError(t, j.Postprocess(ctx, in, 2))

	doc, err := store.Get(ctx, JournalName)
	require.NoError(t, err)

	var entries []JournalEntry
	require.NoError(t, json.Unmarshal([]byte(doc.Get("entries").Raw), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, JournalEntry{
		RunID:    "01RUNID",
		Command:  "list",
		Args:     []string{"+work", "list"},
		ExitCode: 2,
		At:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}, entries[0])
}

func TestJournal_Limit(t *testing.T) {
	ctx := context.Background()
	env, store, _ := testEnv(t, JournalName, map[string]any{"enabled": "yes", "limit": 3})

	for i := range 5 {
		e := env
		e.RunID = fmt.Sprintf("run-%d", i)
		require.NoError(t, NewJournal(e).Postprocess(ctx, capsule.Context{CommandName: "list"}, i))
	}

	doc, err := store.Get(ctx, JournalName)
	require.NoError(t, err)
	entries := doc.Get("entries").Array()
	require.Len(t, entries, 3)
	require.Equal(t, "run-2", entries[0].Get("run_id").String())
	require.Equal(t, "run-4", entries[2].Get("run_id").String())
	require.Equal(t, int64(4), entries[2].Get("exit_code").Int())
}

func TestJournal_KeepsEarlierEntriesVerbatim(t *testing.T) {
	ctx := context.Background()
	env, store, _ := testEnv(t, JournalName, map[string]any{"enabled": true})
	seed, err := meta.ParseDocument(`{"entries":[{"run_id":"old","note":"hand edited"}],"other":1}`)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, JournalName, seed))

	require.NoError(t, NewJournal(env).Postprocess(ctx, capsule.Context{CommandName: "next"}, 0))

	doc, err := store.Get(ctx, JournalName)
	require.NoError(t, err)
	require.Equal(t, "hand edited", doc.Get("entries.0.note").String())
	require.Equal(t, "next", doc.Get("entries.1.command").String())
	require.Equal(t, int64(1), doc.Get("other").Int())
}

func TestJournal_BadLimitFallsBack(t *testing.T) {
	ctx := context.Background()
	env, store, _ := testEnv(t, JournalName, map[string]any{"enabled": true, "limit": 0})

	for range 3 {
		require.NoError(t, NewJournal(env).Postprocess(ctx, capsule.Context{}, 0))
	}
	doc, err := store.Get(ctx, JournalName)
	require.NoError(t, err)
	require.Len(t, doc.Get("entries").Array(), 3)
}
