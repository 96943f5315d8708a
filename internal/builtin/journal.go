package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
)

const (
	JournalName = "journal"

	// DefaultJournalLimit caps the number of kept entries.
	DefaultJournalLimit = 50
)

const journalDescription = `Records every dispatch in the journal's metadata.

Disabled unless "enabled" is set in its configuration section. At most
"limit" entries are kept, oldest dropped first.`

// JournalEntry is one recorded dispatch.
type JournalEntry struct {
	RunID    string    `json:"run_id"`
	Command  string    `json:"command"`
	Args     []string  `json:"args"`
	ExitCode int       `json:"exit_code"`
	At       time.Time `json:"at"`
}

// Journal appends a JournalEntry after every run.
type Journal struct {
	*capsule.Instance
	now func() time.Time
}

func NewJournal(env capsule.Env) *Journal {
	return &Journal{Instance: capsule.NewInstance(env), now: time.Now}
}

func (j *Journal) Postprocess(ctx context.Context, in capsule.Context, result int) error {
	if !j.ConfigBool("enabled") {
		return nil
	}
	limit := j.ConfigInt("limit", DefaultJournalLimit)
	if limit < 1 {
		limit = DefaultJournalLimit
	}

	doc, err := j.Metadata(ctx)
	if err != nil {
		return err
	}

	entry, err := json.Marshal(JournalEntry{
		RunID:    j.RunID(),
		Command:  in.CommandName,
		Args:     in.Args(),
		ExitCode: result,
		At:       j.now().UTC().Truncate(time.Second),
	})
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	// Earlier entries are carried over verbatim.
	existing := doc.Get("entries").Array()
	entries := make([]json.RawMessage, 0, len(existing)+1)
	for _, e := range existing {
		entries = append(entries, json.RawMessage(e.Raw))
	}
	entries = append(entries, entry)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode journal: %w", err)
	}
	doc, err = doc.SetRaw("entries", string(raw))
	if err != nil {
		return err
	}
	return j.SaveMetadata(ctx, doc)
}
